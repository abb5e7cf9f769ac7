package elo

import (
	"math"
	"testing"
)

func TestEqualRatings(t *testing.T) {
	if d := ComputeDelta(1500, 1500, true, KFactor); d != 16 {
		t.Errorf("win at equal ratings: expected 16, got %v", d)
	}
	if d := ComputeDelta(1500, 1500, false, KFactor); d != -16 {
		t.Errorf("loss at equal ratings: expected -16, got %v", d)
	}
}

func TestUpsetLoss(t *testing.T) {
	// 1600 loses to 1400
	dA, dB := Outcome(1600, 1400, false)
	if dA != -24 {
		t.Errorf("expected deltaA -24, got %v", dA)
	}
	if dB != 24 {
		t.Errorf("expected deltaB 24, got %v", dB)
	}
	if 1600+dA != 1576 || 1400+dB != 1424 {
		t.Errorf("unexpected new ratings %v / %v", 1600+dA, 1400+dB)
	}
}

func TestExpectedScore(t *testing.T) {
	e := ExpectedScore(1600, 1400)
	if math.Abs(e-0.7597) > 0.0001 {
		t.Errorf("expected ~0.7597, got %v", e)
	}
	if sum := ExpectedScore(1600, 1400) + ExpectedScore(1400, 1600); math.Abs(sum-1) > 1e-12 {
		t.Errorf("expectations should sum to 1, got %v", sum)
	}
}

func TestMonotonicInRatingGap(t *testing.T) {
	for _, won := range []bool{true, false} {
		prev := math.Inf(1)
		for gap := -800.0; gap <= 800; gap += 10 {
			d := ComputeDelta(1500+gap, 1500, won, KFactor)
			if d > prev {
				t.Fatalf("won=%v: delta increased from %v to %v at gap %v", won, prev, d, gap)
			}
			prev = d
		}
	}
}

func TestDeltaBounds(t *testing.T) {
	for gap := -1000.0; gap <= 1000; gap += 25 {
		if d := ComputeDelta(1500+gap, 1500, true, KFactor); d < 0 || d > KFactor {
			t.Errorf("win delta out of range at gap %v: %v", gap, d)
		}
		if d := ComputeDelta(1500+gap, 1500, false, KFactor); d > 0 || d < -KFactor {
			t.Errorf("loss delta out of range at gap %v: %v", gap, d)
		}
	}
}

// The two sides are rounded independently; their sum is allowed to drift by at most one point.
func TestDeltaPairWithinOnePoint(t *testing.T) {
	for gap := -600.0; gap <= 600; gap += 0.25 {
		for _, aWon := range []bool{true, false} {
			dA, dB := Outcome(1500+gap, 1500, aWon)
			if math.Abs(dA+dB) > 1 {
				t.Errorf("gap %v aWon=%v: %v + %v exceeds one point", gap, aWon, dA, dB)
			}
		}
	}
}

func TestRound(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{2.5, 3},
		{-2.5, -2},
		{2.4999, 2},
		{-24.31, -24},
		{24.31, 24},
		{0.5, 1},
		{-0.5, 0},
	}
	for _, c := range cases {
		if got := Round(c.in); got != c.want {
			t.Errorf("Round(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
