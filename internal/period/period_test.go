package period

import (
	"testing"
	"time"
)

func TestBuild_SortsAndDeduplicates(t *testing.T) {
	keys, err := Build(2025, []int{9, 1, 3, 9, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"2025-01", "2025-03", "2025-09"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i, k := range keys {
		if k.String() != want[i] {
			t.Errorf("key %d: expected %s, got %s", i, want[i], k.String())
		}
	}
}

func TestBuild_EmptySelection(t *testing.T) {
	keys, err := Build(2025, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected empty sequence, got %d keys", len(keys))
	}
}

func TestBuild_RejectsOutOfRangeMonth(t *testing.T) {
	for _, m := range []int{0, 13, -1} {
		if _, err := Build(2025, []int{m}); err == nil {
			t.Errorf("month %d: expected error, got nil", m)
		}
	}
}

func TestParse_RoundTrip(t *testing.T) {
	k, err := Parse("2025-06")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.Year != 2025 || k.Month != time.June {
		t.Fatalf("expected 2025 June, got %v", k)
	}
	if k.String() != "2025-06" {
		t.Errorf("expected canonical form 2025-06, got %s", k.String())
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"2025", "2025-13", "06-2025", "garbage"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("%q: expected error, got nil", s)
		}
	}
}

func TestFirstOfMonth(t *testing.T) {
	k := Key{Year: 2025, Month: time.March}
	got := k.FirstOfMonth()
	want := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestBefore(t *testing.T) {
	a := Key{Year: 2024, Month: time.December}
	b := Key{Year: 2025, Month: time.January}
	if !a.Before(b) {
		t.Error("2024-12 should sort before 2025-01")
	}
	if b.Before(a) {
		t.Error("2025-01 should not sort before 2024-12")
	}
	if a.Before(a) {
		t.Error("a key should not sort before itself")
	}
}
