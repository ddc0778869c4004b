// Package tower – character handling.
//
// This file owns text normalization and the look-alike (confusable) registry.
// Inbound message text is NFC-normalized before comparison so that visually
// identical but differently-composed sequences (e.g. a precomposed accent vs
// combining marks) compare equal. The variant table maps each target character
// to homoglyphs that are accepted while building but rejected by the final
// exact-spelling check.
package tower

import "golang.org/x/text/unicode/norm"

// Normalize brings inbound message text to NFC form. Matching is otherwise
// exact: case and whitespace are significant, one message must be exactly one
// expected character.
func Normalize(s string) string {
	return norm.NFC.String(s)
}

// splitChars splits the target into its individual characters. The target is
// normalized first so positions line up with normalized inbound text.
func splitChars(target string) []string {
	target = Normalize(target)
	out := make([]string, 0, len(target))
	for _, r := range target {
		out = append(out, string(r))
	}
	return out
}

// VariantTable maps a target character to the look-alike characters accepted
// in its place during building.
type VariantTable map[string][]string

// DefaultVariants returns the registered homoglyphs for the Latin uppercase
// alphabet: the usual Cyrillic doubles plus the click-letter stand-in for the
// exclamation mark.
func DefaultVariants() VariantTable {
	return VariantTable{
		"A": {"А"}, // U+0410 CYRILLIC CAPITAL A
		"B": {"В"}, // U+0412 CYRILLIC CAPITAL VE
		"C": {"С"}, // U+0421 CYRILLIC CAPITAL ES
		"E": {"Е"}, // U+0415 CYRILLIC CAPITAL IE
		"H": {"Н"}, // U+041D CYRILLIC CAPITAL EN
		"K": {"К"}, // U+041A CYRILLIC CAPITAL KA
		"M": {"М"}, // U+041C CYRILLIC CAPITAL EM
		"O": {"О"}, // U+041E CYRILLIC CAPITAL O
		"P": {"Р"}, // U+0420 CYRILLIC CAPITAL ER
		"T": {"Т"}, // U+0422 CYRILLIC CAPITAL TE
		"X": {"Х"}, // U+0425 CYRILLIC CAPITAL HA
		"Y": {"У"}, // U+0423 CYRILLIC CAPITAL U
		"!": {"ǃ"}, // U+01C3 LATIN LETTER RETROFLEX CLICK
	}
}
