package room

import (
	"testing"
)

func TestRandomStrategy(t *testing.T) {
	t.Parallel()

	s := NewRandomStrategy(42)

	t.Run("skips non-listening", func(t *testing.T) {
		candidates := []Candidate{
			{ID: "ag-1", Name: "Nia", Listening: false},
			{ID: "ag-2", Name: "Rex", Listening: true},
		}
		for i := 0; i < 20; i++ {
			id, ok := s.Select("anything", candidates)
			if !ok || id != "ag-2" {
				t.Fatalf("pick %d = %q %v, want ag-2", i, id, ok)
			}
		}
	})

	t.Run("nobody listening", func(t *testing.T) {
		if _, ok := s.Select("anything", []Candidate{{ID: "ag-1"}}); ok {
			t.Error("selected from non-listening candidates")
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, ok := s.Select("anything", nil); ok {
			t.Error("selected from empty candidates")
		}
	})
}

func TestAddressedStrategy(t *testing.T) {
	t.Parallel()

	candidates := []Candidate{
		{ID: "ag-1", Name: "Sophia", Listening: true},
		{ID: "ag-2", Name: "Rex", Listening: true},
	}

	t.Run("exact name", func(t *testing.T) {
		s := &AddressedStrategy{}
		id, ok := s.Select("hey Rex, what time is it?", candidates)
		if !ok || id != "ag-2" {
			t.Errorf("got %q %v, want ag-2", id, ok)
		}
	})

	t.Run("misheard name matches phonetically", func(t *testing.T) {
		// Recognizers routinely spell "Sophia" as "Sofia".
		s := &AddressedStrategy{}
		id, ok := s.Select("sofia can you help me", candidates)
		if !ok || id != "ag-1" {
			t.Errorf("got %q %v, want ag-1", id, ok)
		}
	})

	t.Run("unaddressed falls back", func(t *testing.T) {
		s := &AddressedStrategy{Fallback: NewRandomStrategy(7)}
		if _, ok := s.Select("what a lovely day", candidates); !ok {
			t.Error("fallback should have picked someone")
		}
	})

	t.Run("unaddressed without fallback", func(t *testing.T) {
		s := &AddressedStrategy{}
		if _, ok := s.Select("what a lovely day", candidates); ok {
			t.Error("nil fallback must select nobody")
		}
	})

	t.Run("addressed agent not listening", func(t *testing.T) {
		muted := []Candidate{
			{ID: "ag-1", Name: "Sophia", Listening: false},
			{ID: "ag-2", Name: "Rex", Listening: true},
		}
		s := &AddressedStrategy{}
		if id, ok := s.Select("Sophia, are you there?", muted); ok {
			t.Errorf("selected muted agent %q", id)
		}
	})
}

func TestLog(t *testing.T) {
	t.Parallel()

	l := NewLog(3)
	for _, text := range []string{"one", "two", "three", "four"} {
		l.Append(LogEntry{Origin: "alice", Text: text})
	}

	if l.Len() != 3 {
		t.Fatalf("len = %d, want 3", l.Len())
	}
	recent := l.Recent(0)
	if recent[0].Text != "two" || recent[2].Text != "four" {
		t.Errorf("window = %q .. %q", recent[0].Text, recent[2].Text)
	}
	if got := l.Recent(2); len(got) != 2 || got[1].Text != "four" {
		t.Errorf("recent(2) = %+v", got)
	}
	if recent[0].Timestamp.IsZero() {
		t.Error("append must stamp entries")
	}
}
