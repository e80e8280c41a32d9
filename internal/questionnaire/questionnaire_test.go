package questionnaire

import "testing"

func TestGet_InstrumentShapes(t *testing.T) {
	tests := []struct {
		id       ID
		prompts  int
		options  int
		minTotal int
		maxTotal int
	}{
		{K10, 10, 5, 10, 50},
		{PHQ9, 9, 4, 0, 27},
		{GAD7, 7, 4, 0, 21},
		{PSS10, 10, 5, 0, 40},
	}
	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			inst := Get(tt.id)
			if inst.ID != tt.id {
				t.Fatalf("expected id %s, got %s", tt.id, inst.ID)
			}
			if inst.Len() != tt.prompts {
				t.Errorf("expected %d prompts, got %d", tt.prompts, inst.Len())
			}
			if len(inst.Options) != tt.options {
				t.Errorf("expected %d options, got %d", tt.options, len(inst.Options))
			}
			if inst.MinTotal() != tt.minTotal || inst.MaxTotal() != tt.maxTotal {
				t.Errorf("expected range [%d,%d], got [%d,%d]", tt.minTotal, tt.maxTotal, inst.MinTotal(), inst.MaxTotal())
			}
			if inst.Title == "" {
				t.Error("title should not be empty")
			}
		})
	}
}

func TestInstrument_ValidValue(t *testing.T) {
	k10 := Get(K10)
	for v := 1; v <= 5; v++ {
		if !k10.ValidValue(v) {
			t.Errorf("K10 should accept %d", v)
		}
	}
	if k10.ValidValue(0) || k10.ValidValue(6) {
		t.Error("K10 should reject 0 and 6")
	}

	phq := Get(PHQ9)
	if !phq.ValidValue(0) || !phq.ValidValue(3) {
		t.Error("PHQ9 should accept 0 and 3")
	}
	if phq.ValidValue(4) {
		t.Error("PHQ9 should reject 4")
	}
	if got := phq.Label(2); got != "More than half" {
		t.Errorf("expected label 'More than half', got %q", got)
	}
	if got := phq.Label(9); got != "" {
		t.Errorf("expected empty label for invalid value, got %q", got)
	}
}

func TestTier2Order(t *testing.T) {
	order := Tier2Order()
	want := []ID{PHQ9, GAD7, PSS10}
	if len(order) != len(want) {
		t.Fatalf("expected %d instruments, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], order[i])
		}
	}

	// Mutating the returned slice must not affect the registry order.
	order[0] = K10
	if Tier2Order()[0] != PHQ9 {
		t.Error("Tier2Order returned a shared slice")
	}
}

func TestNextTier2(t *testing.T) {
	if next, ok := NextTier2(PHQ9); !ok || next != GAD7 {
		t.Errorf("PHQ9 -> expected GAD7, got %s (%v)", next, ok)
	}
	if next, ok := NextTier2(GAD7); !ok || next != PSS10 {
		t.Errorf("GAD7 -> expected PSS10, got %s (%v)", next, ok)
	}
	if _, ok := NextTier2(PSS10); ok {
		t.Error("PSS10 should be the last tier-2 instrument")
	}
	if _, ok := NextTier2(K10); ok {
		t.Error("K10 is not a tier-2 instrument")
	}
}
