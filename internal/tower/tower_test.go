package tower

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/tbourn/go-tower-backend/internal/domain"
)

const testTarget = "TOWER!"

// ----- Fake probe -----

type fakeProbe struct {
	mu      sync.Mutex
	calls   []int64
	missing map[int64]bool
	err     error
}

func (p *fakeProbe) Exists(ctx context.Context, roomID, messageID int64) (bool, error) {
	p.mu.Lock()
	p.calls = append(p.calls, messageID)
	p.mu.Unlock()
	if p.err != nil {
		return false, p.err
	}
	return !p.missing[messageID], nil
}

// buildFull accepts the whole target with distinct authors and message ids.
func buildFull(t *testing.T, tw *Tower) {
	t.Helper()
	for i := 0; i < tw.TargetLen(); i++ {
		ev := Event{
			Kind:      KindNew,
			RoomID:    1,
			AuthorID:  int64(100 + i),
			MessageID: int64(1000 + i),
			Text:      string([]rune(testTarget)[i]),
		}
		if out := tw.CheckEvent(ev); out != Accept {
			t.Fatalf("letter %d: outcome = %v, want Accept", i, out)
		}
		tw.Append(domain.Letter{Char: Normalize(ev.Text), AuthorID: ev.AuthorID, MessageID: ev.MessageID})
	}
}

func TestCheckEvent_AcceptsPrefixInOrder(t *testing.T) {
	tw := New(testTarget, DefaultChecks(), DefaultVariants())
	for i, r := range testTarget {
		ev := Event{Kind: KindNew, AuthorID: int64(i + 1), MessageID: int64(i + 10), Text: string(r)}
		if out := tw.CheckEvent(ev); out != Accept {
			t.Fatalf("position %d: outcome = %v, want Accept", i, out)
		}
		tw.Append(domain.Letter{Char: string(r), AuthorID: ev.AuthorID, MessageID: ev.MessageID})
		if got, want := tw.String(), testTarget[:len(tw.String())]; got != want {
			t.Fatalf("after %d letters tower = %q, want %q", i+1, got, want)
		}
	}
	if !tw.Complete() {
		t.Fatalf("tower not complete at target length %d", tw.TargetLen())
	}
}

func TestCheckEvent_WrongCharacterFalls(t *testing.T) {
	tw := New(testTarget, DefaultChecks(), nil)
	cases := []string{"O", "t", "TO", "", " T", "hello"}
	for _, text := range cases {
		if out := tw.CheckEvent(Event{Kind: KindNew, AuthorID: 1, MessageID: 1, Text: text}); out != Fall {
			t.Fatalf("text %q: outcome = %v, want Fall", text, out)
		}
	}
}

func TestCheckEvent_EditOutsideTowerIgnored(t *testing.T) {
	tw := New(testTarget, DefaultChecks(), nil)
	tw.Append(domain.Letter{Char: "T", AuthorID: 1, MessageID: 10})

	out := tw.CheckEvent(Event{Kind: KindEdited, AuthorID: 9, MessageID: 999, Text: "zzz"})
	if out != Ignore {
		t.Fatalf("irrelevant edit: outcome = %v, want Ignore", out)
	}
	if tw.Len() != 1 {
		t.Fatalf("ignore changed tower length to %d", tw.Len())
	}
}

func TestCheckEvent_EditOfTowerMessageFalls(t *testing.T) {
	tw := New(testTarget, DefaultChecks(), nil)
	tw.Append(domain.Letter{Char: "T", AuthorID: 1, MessageID: 10})

	out := tw.CheckEvent(Event{Kind: KindEdited, AuthorID: 1, MessageID: 10, Text: "X"})
	if out != FallEdited {
		t.Fatalf("tampering edit: outcome = %v, want FallEdited", out)
	}
}

func TestCheckEvent_EditPolicyOffIgnoresTampering(t *testing.T) {
	checks := DefaultChecks()
	checks.Edits = false
	tw := New(testTarget, checks, nil)
	tw.Append(domain.Letter{Char: "T", AuthorID: 1, MessageID: 10})

	if out := tw.CheckEvent(Event{Kind: KindEdited, MessageID: 10}); out != Ignore {
		t.Fatalf("edit with policy off: outcome = %v, want Ignore", out)
	}
}

func TestCheckEvent_RepeatedAuthorFalls(t *testing.T) {
	tw := New(testTarget, DefaultChecks(), nil)
	tw.Append(domain.Letter{Char: "T", AuthorID: 1, MessageID: 10})

	out := tw.CheckEvent(Event{Kind: KindNew, AuthorID: 1, MessageID: 11, Text: "O"})
	if out != FallRepetition {
		t.Fatalf("repeat author: outcome = %v, want FallRepetition", out)
	}

	// Same event is fine from a different author.
	if out := tw.CheckEvent(Event{Kind: KindNew, AuthorID: 2, MessageID: 11, Text: "O"}); out != Accept {
		t.Fatalf("distinct author: outcome = %v, want Accept", out)
	}
}

func TestCheckEvent_UniquenessOffAllowsRepeats(t *testing.T) {
	checks := DefaultChecks()
	checks.Uniqueness = false
	tw := New(testTarget, checks, nil)
	tw.Append(domain.Letter{Char: "T", AuthorID: 1, MessageID: 10})

	if out := tw.CheckEvent(Event{Kind: KindNew, AuthorID: 1, MessageID: 11, Text: "O"}); out != Accept {
		t.Fatalf("repeat with policy off: outcome = %v, want Accept", out)
	}
}

func TestCheckEvent_VariantAcceptedWhileBuilding(t *testing.T) {
	tw := New(testTarget, DefaultChecks(), DefaultVariants())

	// U+0422 CYRILLIC CAPITAL TE in place of Latin T.
	out := tw.CheckEvent(Event{Kind: KindNew, AuthorID: 1, MessageID: 10, Text: "Т"})
	if out != Accept {
		t.Fatalf("variant: outcome = %v, want Accept", out)
	}

	// With the policy off the same character is just a wrong message.
	checks := DefaultChecks()
	checks.Variants = false
	strict := New(testTarget, checks, DefaultVariants())
	if out := strict.CheckEvent(Event{Kind: KindNew, AuthorID: 1, MessageID: 10, Text: "Т"}); out != Fall {
		t.Fatalf("variant with policy off: outcome = %v, want Fall", out)
	}
}

func TestCheckEvent_FullTowerAcceptsNothing(t *testing.T) {
	tw := New("A", DefaultChecks(), nil)
	tw.Append(domain.Letter{Char: "A", AuthorID: 1, MessageID: 1})

	if out := tw.CheckEvent(Event{Kind: KindNew, AuthorID: 2, MessageID: 2, Text: "A"}); out != Fall {
		t.Fatalf("event on full tower: outcome = %v, want Fall", out)
	}
}

func TestCheckCompletion_CleanTowerPasses(t *testing.T) {
	tw := New(testTarget, DefaultChecks(), DefaultVariants())
	buildFull(t, tw)

	probe := &fakeProbe{}
	if out := tw.CheckCompletion(context.Background(), probe, 1); out != Accept {
		t.Fatalf("completion: outcome = %v, want Accept", out)
	}
	if len(probe.calls) != tw.TargetLen() {
		t.Fatalf("probe called %d times, want %d", len(probe.calls), tw.TargetLen())
	}
}

func TestCheckCompletion_VariantSpellingFailsSimilar(t *testing.T) {
	tw := New(testTarget, DefaultChecks(), DefaultVariants())
	buildFull(t, tw)
	// Swap the first recorded letter for its Cyrillic double.
	tw.letters[0].Char = "Т"

	probe := &fakeProbe{}
	if out := tw.CheckCompletion(context.Background(), probe, 1); out != FallSimilar {
		t.Fatalf("look-alike spelling: outcome = %v, want FallSimilar", out)
	}
	// The similar check runs first; no probes should have been issued.
	if len(probe.calls) != 0 {
		t.Fatalf("probe called %d times before similar check failed", len(probe.calls))
	}
}

func TestCheckCompletion_DeletedMessageFalls(t *testing.T) {
	tw := New(testTarget, DefaultChecks(), nil)
	buildFull(t, tw)

	probe := &fakeProbe{missing: map[int64]bool{1002: true}}
	if out := tw.CheckCompletion(context.Background(), probe, 1); out != FallDeleted {
		t.Fatalf("deleted message: outcome = %v, want FallDeleted", out)
	}
}

func TestCheckCompletion_ProbeErrorIsConservativeFailure(t *testing.T) {
	tw := New(testTarget, DefaultChecks(), nil)
	buildFull(t, tw)

	probe := &fakeProbe{err: errors.New("platform unreachable")}
	if out := tw.CheckCompletion(context.Background(), probe, 1); out != FallDeleted {
		t.Fatalf("probe error: outcome = %v, want FallDeleted", out)
	}
}

func TestCheckCompletion_DeletionPolicyOffSkipsProbe(t *testing.T) {
	checks := DefaultChecks()
	checks.Deletion = false
	tw := New(testTarget, checks, nil)
	buildFull(t, tw)

	probe := &fakeProbe{err: errors.New("must not be called")}
	if out := tw.CheckCompletion(context.Background(), probe, 1); out != Accept {
		t.Fatalf("deletion off: outcome = %v, want Accept", out)
	}
	if len(probe.calls) != 0 {
		t.Fatalf("probe called %d times with policy off", len(probe.calls))
	}
}

func TestRestore_TruncatesOverflow(t *testing.T) {
	letters := make(domain.Letters, 0, 10)
	for i := 0; i < 10; i++ {
		letters = append(letters, domain.Letter{Char: "A", AuthorID: int64(i), MessageID: int64(i)})
	}
	tw := Restore("AB", DefaultChecks(), nil, letters)
	if tw.Len() != 2 {
		t.Fatalf("restored length = %d, want 2", tw.Len())
	}
}

func TestReset_EmptiesLog(t *testing.T) {
	tw := New(testTarget, DefaultChecks(), nil)
	tw.Append(domain.Letter{Char: "T", AuthorID: 1, MessageID: 1})
	tw.Reset()
	if tw.Len() != 0 || tw.String() != "" {
		t.Fatalf("reset left %d letters", tw.Len())
	}
}

func TestOutcome_Strings(t *testing.T) {
	for _, tc := range []struct {
		o    Outcome
		want string
	}{
		{Accept, "accept"}, {Ignore, "ignore"}, {Fall, "fall"},
		{FallEdited, "fall_edited"}, {FallRepetition, "fall_repetition"},
		{FallDeleted, "fall_deleted"}, {FallSimilar, "fall_similar"},
		{Outcome(99), "unknown"},
	} {
		if got := tc.o.String(); got != tc.want {
			t.Fatalf("Outcome(%d).String() = %q, want %q", tc.o, got, tc.want)
		}
	}
	if Accept.IsFall() || Ignore.IsFall() || !Fall.IsFall() || !FallSimilar.IsFall() {
		t.Fatal("IsFall misclassifies outcomes")
	}
}

func TestNormalize_NFC(t *testing.T) {
	// "É" as E + COMBINING ACUTE must normalize to the precomposed form.
	composed := "É"
	decomposed := "É"
	if Normalize(decomposed) != composed {
		t.Fatalf("Normalize(%q) = %q, want %q", decomposed, Normalize(decomposed), composed)
	}
}

func ExampleTower_String() {
	tw := New("AB", DefaultChecks(), nil)
	tw.Append(domain.Letter{Char: "A", AuthorID: 1, MessageID: 1})
	fmt.Println(tw.String())
	// Output: A
}
