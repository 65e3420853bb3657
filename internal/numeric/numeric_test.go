package numeric

import "testing"

func TestEMASeedsOnFirstSample(t *testing.T) {
	e := NewEMA(0.5)
	if got := e.Next(10); got != 10 {
		t.Fatalf("Next() = %v, want 10", got)
	}
	if got := e.Value(); got != 10 {
		t.Fatalf("Value() = %v, want 10", got)
	}
}

func TestEMASmooths(t *testing.T) {
	e := NewEMA(0.5)
	e.Next(10)
	got := e.Next(20)
	if got != 15 {
		t.Fatalf("Next() = %v, want 15", got)
	}
}

func TestDeltaU64WrapReturnsZero(t *testing.T) {
	if got := DeltaU64(5, 10); got != 0 {
		t.Fatalf("DeltaU64(5, 10) = %v, want 0", got)
	}
	if got := DeltaU64(15, 10); got != 5 {
		t.Fatalf("DeltaU64(15, 10) = %v, want 5", got)
	}
}

func TestSafeDivGuardsNearZeroDenominator(t *testing.T) {
	if got := SafeDiv(1, 0); got != 0 {
		t.Fatalf("SafeDiv(1, 0) = %v, want 0", got)
	}
	if got := SafeDiv(10, 2); got != 5 {
		t.Fatalf("SafeDiv(10, 2) = %v, want 5", got)
	}
}

func TestClamp01(t *testing.T) {
	cases := map[float64]float64{-1: 0, 0.5: 0.5, 2: 1}
	for in, want := range cases {
		if got := Clamp01(in); got != want {
			t.Errorf("Clamp01(%v) = %v, want %v", in, got, want)
		}
	}
}
