package timestep

import (
	"math"
	"testing"
)

func TestDtWeeks(t *testing.T) {
	cases := []struct {
		days, tick float64
		want       float64
	}{
		{7, 7, 1},
		{7, 1, 1.0 / 7},
		{7, 14, 2},
		{7, 28, 4},
		{7, 0, MinDtWeeks},
		{7, -3, MinDtWeeks},
		{0, 7, 1},
	}
	for _, tc := range cases {
		got := DtWeeks(tc.days, tc.tick)
		if math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("DtWeeks(%v,%v)=%v want %v", tc.days, tc.tick, got, tc.want)
		}
	}
}

func TestTickProbability_IdentityAtOneWeek(t *testing.T) {
	for _, p := range []float64{0, 0.01, 0.25, 0.5, 0.9, 1} {
		if got := TickProbability(p, 1); math.Abs(got-p) > 1e-12 {
			t.Fatalf("p_tick(%v,1)=%v want %v", p, got, p)
		}
	}
}

func TestTickProbability_Examples(t *testing.T) {
	if got := TickProbability(0.5, 2); math.Abs(got-0.75) > 1e-12 {
		t.Fatalf("p_tick(0.5,2)=%v want 0.75", got)
	}
	if got := TickProbability(0.5, 1); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("p_tick(0.5,1)=%v want 0.5", got)
	}
}

func TestTickProbability_Monotone(t *testing.T) {
	prev := 0.0
	for _, p := range []float64{0.05, 0.1, 0.3, 0.6, 0.95} {
		got := TickProbability(p, 0.5)
		if got <= prev {
			t.Fatalf("not increasing in p_week at %v: %v <= %v", p, got, prev)
		}
		prev = got
	}
	prev = 0
	for _, dt := range []float64{1.0 / 7, 0.5, 1, 2, 4} {
		got := TickProbability(0.2, dt)
		if got <= prev {
			t.Fatalf("not increasing in dt at %v: %v <= %v", dt, got, prev)
		}
		prev = got
	}
}

func TestTickProbability_ClampsInput(t *testing.T) {
	if got := TickProbability(-0.5, 1); got != 0 {
		t.Fatalf("negative p: got %v", got)
	}
	if got := TickProbability(3, 0.5); got != 1 {
		t.Fatalf("p>1: got %v", got)
	}
}

func TestPullExact(t *testing.T) {
	got := PullExact(80, 50, 0.1, 7)
	want := 50 + 30*math.Exp(-0.7)
	if math.Abs(got-want) > 1e-12 || math.Abs(got-64.897) > 0.01 {
		t.Fatalf("PullExact=%v want %v", got, want)
	}
	if got := PullExact(80, 50, 0.1, 0); got != 80 {
		t.Fatalf("dt=0 should be identity, got %v", got)
	}
	if got := PullExact(80, 50, -1, 3); got != 80 {
		t.Fatalf("negative rate should not push away, got %v", got)
	}
}

func TestPullExact_Converges(t *testing.T) {
	x := 95.0
	for i := 0; i < 400; i++ {
		x = PullExact(x, 42, 0.1, 1)
	}
	if math.Abs(x-42) > 1e-6 {
		t.Fatalf("did not converge: %v", x)
	}
	// One huge step lands on the baseline without overshoot.
	if got := PullExact(95, 42, 0.1, 1e6); math.Abs(got-42) > 1e-9 {
		t.Fatalf("large dt: %v", got)
	}
}
