package domain

import (
	"testing"
)

func TestLetters_ValueRoundTrip(t *testing.T) {
	in := Letters{
		{Char: "I", AuthorID: 10, MessageID: 100},
		{Char: "T", AuthorID: 11, MessageID: 101},
	}
	v, err := in.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	s, ok := v.(string)
	if !ok {
		t.Fatalf("Value type = %T, want string", v)
	}

	var out Letters
	if err := out.Scan(s); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Fatalf("round-trip mismatch: %+v", out)
	}
}

func TestLetters_ValueNilSerializesAsEmptyArray(t *testing.T) {
	var l Letters
	v, err := l.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v.(string) != "[]" {
		t.Fatalf("nil letters serialized as %q, want []", v)
	}
}

func TestLetters_ScanNullAndEmpty(t *testing.T) {
	var l Letters
	if err := l.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if len(l) != 0 {
		t.Fatalf("Scan(nil) -> %+v, want empty", l)
	}

	if err := l.Scan([]byte("")); err != nil {
		t.Fatalf("Scan(empty): %v", err)
	}
	if len(l) != 0 {
		t.Fatalf("Scan(empty) -> %+v, want empty", l)
	}
}

func TestLetters_ScanRejectsUnknownType(t *testing.T) {
	var l Letters
	if err := l.Scan(42); err == nil {
		t.Fatal("expected error scanning int")
	}
}

func TestRoomState_CloneIsDeep(t *testing.T) {
	s := NewRoomState(7)
	s.Letters = Letters{{Char: "A", AuthorID: 1, MessageID: 2}}
	s.CrashCount = 3
	s.BuiltToday = true

	cp := s.Clone()
	cp.Letters[0].Char = "B"
	cp.CrashCount = 9

	if s.Letters[0].Char != "A" || s.CrashCount != 3 {
		t.Fatalf("clone mutated original: %+v", s)
	}
	if !cp.BuiltToday || cp.RoomID != 7 {
		t.Fatalf("clone lost fields: %+v", cp)
	}
}

func TestTableNames(t *testing.T) {
	if got := (RoomState{}).TableName(); got != "rooms" {
		t.Fatalf("RoomState table = %q", got)
	}
	if got := (TrackedRoom{}).TableName(); got != "tracked_rooms" {
		t.Fatalf("TrackedRoom table = %q", got)
	}
	if got := (ProcessedUpdate{}).TableName(); got != "processed_updates" {
		t.Fatalf("ProcessedUpdate table = %q", got)
	}
}
