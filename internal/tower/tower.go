// Package tower implements the validation engine for one room's in-progress
// construction attempt. The Tower is an ordered log of accepted characters; it
// decides, for each inbound chat event, whether the attempt survives, has
// failed (and why), or is one letter closer to the target.
//
// The engine is pure except for one injected dependency: the integrity Probe
// used at completion time to verify that no recorded message was deleted from
// the chat after acceptance. That check is deferred to completion because it
// costs one remote call per letter; running it on every keystroke would be
// prohibitively expensive, while checking only at the finish line bounds the
// cost to once per attempt and still closes the delete-after-win exploit.
package tower

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-tower-backend/internal/domain"
)

// EventKind discriminates new messages from edits of existing ones.
type EventKind string

// Supported event kinds. The transport connector tags every update it
// forwards with exactly one of these.
const (
	KindNew    EventKind = "new"
	KindEdited EventKind = "edited"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool { return k == KindNew || k == KindEdited }

// Event is one inbound chat event as delivered by the transport layer.
type Event struct {
	Kind      EventKind
	RoomID    int64
	AuthorID  int64
	MessageID int64
	Text      string
}

// Outcome is the result of validating one event (or of the completion check).
// Outcomes drive the room state machine; they are values, never errors.
type Outcome int

const (
	// Accept means the event is the next expected letter; the caller must
	// append it to the log.
	Accept Outcome = iota
	// Ignore means the event is irrelevant (an edit of a message outside the
	// tower) and must cause no state change.
	Ignore
	// Fall means the message was not the expected next character.
	Fall
	// FallEdited means a message already recorded in the tower was edited.
	FallEdited
	// FallRepetition means the author already contributed a letter.
	FallRepetition
	// FallDeleted means a recorded message no longer exists in the chat.
	FallDeleted
	// FallSimilar means the tower reached full length but spelled a
	// look-alike variant of the target rather than the target itself.
	FallSimilar
)

// String returns the stable wire name of the outcome.
func (o Outcome) String() string {
	switch o {
	case Accept:
		return "accept"
	case Ignore:
		return "ignore"
	case Fall:
		return "fall"
	case FallEdited:
		return "fall_edited"
	case FallRepetition:
		return "fall_repetition"
	case FallDeleted:
		return "fall_deleted"
	case FallSimilar:
		return "fall_similar"
	default:
		return "unknown"
	}
}

// IsFall reports whether the outcome invalidates the current attempt.
func (o Outcome) IsFall() bool { return o != Accept && o != Ignore }

// Checks is the policy value object toggling the independent validation
// predicates. Each policy is consulted exactly where it applies instead of
// being branched on across the state machine.
type Checks struct {
	// Uniqueness rejects a second letter from the same author in one attempt.
	Uniqueness bool
	// Deletion verifies at completion time that no recorded message was
	// deleted from the chat.
	Deletion bool
	// Edits invalidates the attempt when a recorded message is edited.
	// When off, every edit is ignored.
	Edits bool
	// Variants accepts registered look-alike characters while building, but
	// rejects the finished tower unless it spells the exact target.
	Variants bool
}

// DefaultChecks enables every policy, matching production behavior.
func DefaultChecks() Checks {
	return Checks{Uniqueness: true, Deletion: true, Edits: true, Variants: true}
}

// Probe is the injected integrity check: it reports whether a message still
// exists in the given room. An error from the probe is treated as a failed
// check by the caller, never as success.
type Probe interface {
	Exists(ctx context.Context, roomID, messageID int64) (bool, error)
}

// Tower tracks one room's current attempt against a fixed target string.
// It holds no I/O and is not safe for concurrent use; the room controller
// serializes access.
type Tower struct {
	target   []string
	checks   Checks
	variants VariantTable
	letters  domain.Letters
}

// New creates an empty tower for the given target. The variants table is only
// consulted when the Variants policy is on; pass nil to use none.
func New(target string, checks Checks, variants VariantTable) *Tower {
	return &Tower{
		target:   splitChars(target),
		checks:   checks,
		variants: variants,
	}
}

// Restore creates a tower pre-populated with letters reloaded from the store.
// Letters beyond the target length are dropped defensively; the invariant
// len(letters) <= len(target) holds for every tower this package produces.
func Restore(target string, checks Checks, variants VariantTable, letters domain.Letters) *Tower {
	t := New(target, checks, variants)
	if len(letters) > len(t.target) {
		letters = letters[:len(t.target)]
	}
	t.letters = append(domain.Letters{}, letters...)
	return t
}

// Len returns the number of letters already accepted.
func (t *Tower) Len() int { return len(t.letters) }

// TargetLen returns the number of characters in the target string.
func (t *Tower) TargetLen() int { return len(t.target) }

// Letters returns the accepted log. The slice must not be mutated.
func (t *Tower) Letters() domain.Letters { return t.letters }

// String returns the concatenation of the accepted characters.
func (t *Tower) String() string {
	var b strings.Builder
	for _, l := range t.letters {
		b.WriteString(l.Char)
	}
	return b.String()
}

// Complete reports whether the letter count has reached the target length.
// Under the Variants policy this does not guarantee the exact target was
// spelled; CheckCompletion decides that.
func (t *Tower) Complete() bool { return len(t.letters) == len(t.target) }

// CheckEvent validates one inbound event against the current attempt.
// Check order matters and is fixed:
//
//  1. edits of recorded messages invalidate the attempt (policy-gated),
//     any other edit is ignored;
//  2. the text must be exactly one member of the expected set for the next
//     position (the required character plus registered variants);
//  3. the author must not already be in the log (policy-gated).
//
// CheckEvent never mutates the tower; on Accept the caller persists the new
// letter and then calls Append.
func (t *Tower) CheckEvent(ev Event) Outcome {
	if ev.Kind == KindEdited {
		if t.checks.Edits && t.hasMessage(ev.MessageID) {
			return FallEdited
		}
		return Ignore
	}

	if t.Complete() {
		// A full tower accepts nothing; the controller resets before this
		// can happen, but a stray event must not index past the target.
		return Fall
	}

	text := Normalize(ev.Text)
	if !t.expectedAt(len(t.letters)).contains(text) {
		return Fall
	}

	if t.checks.Uniqueness && t.hasAuthor(ev.AuthorID) {
		return FallRepetition
	}
	return Accept
}

// Append records an accepted letter. It must only be called after CheckEvent
// returned Accept and the letter was durably persisted.
func (t *Tower) Append(l domain.Letter) {
	if len(t.letters) < len(t.target) {
		t.letters = append(t.letters, l)
	}
}

// Reset empties the log, starting a fresh attempt.
func (t *Tower) Reset() { t.letters = t.letters[:0] }

// CheckCompletion runs the two finish-line checks once the tower is full.
// Order matters:
//
//  1. with the Variants policy on, the recorded characters must spell the
//     exact target; a look-alike substitution anywhere yields FallSimilar;
//  2. with the Deletion policy on, every recorded message must still exist.
//     The existence probes are issued concurrently and all must pass; a probe
//     error counts as a failed check (conservative, never retried).
//
// Accept means the tower is genuinely complete.
func (t *Tower) CheckCompletion(ctx context.Context, probe Probe, roomID int64) Outcome {
	if t.checks.Variants && t.String() != strings.Join(t.target, "") {
		return FallSimilar
	}

	if t.checks.Deletion && probe != nil {
		g, gctx := errgroup.WithContext(ctx)
		for _, l := range t.letters {
			msgID := l.MessageID
			g.Go(func() error {
				ok, err := probe.Exists(gctx, roomID, msgID)
				if err != nil {
					return err
				}
				if !ok {
					return errMessageGone
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return FallDeleted
		}
	}
	return Accept
}

var errMessageGone = errors.New("tower message deleted")

func (t *Tower) hasMessage(id int64) bool {
	for _, l := range t.letters {
		if l.MessageID == id {
			return true
		}
	}
	return false
}

func (t *Tower) hasAuthor(id int64) bool {
	for _, l := range t.letters {
		if l.AuthorID == id {
			return true
		}
	}
	return false
}

// expectedAt computes the expected character set for position i: the required
// target character plus its registered variants when the policy is on.
func (t *Tower) expectedAt(i int) charSet {
	want := t.target[i]
	set := charSet{want}
	if t.checks.Variants {
		set = append(set, t.variants[want]...)
	}
	return set
}

// charSet is a small expected-character set; linear scan beats a map at the
// sizes involved (one required character plus a handful of variants).
type charSet []string

func (s charSet) contains(c string) bool {
	for _, v := range s {
		if v == c {
			return true
		}
	}
	return false
}
