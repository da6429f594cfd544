package expr

import (
	"errors"
	"math"
	"testing"
)

func TestEval_Arithmetic(t *testing.T) {
	cases := []struct {
		src       string
		intensity float64
		want      float64
	}{
		{"intensity", 0.4, 0.4},
		{"2*intensity", 0.5, 1},
		{"-3 * intensity", 2, -6},
		{"1 + intensity / 2", 1, 1.5},
		{"(1 - intensity) * 4", 0.25, 3},
		{"abs(-intensity)", 1.5, 1.5},
		{"max(2, intensity*4)", 0.25, 2},
		{"min(intensity, 0.3, 0.9)", 0.5, 0.3},
		{"1.05 + 0.1*intensity", 1, 1.15},
		{"3", 99, 3},
		{"+intensity", 7, 7},
	}
	for _, tc := range cases {
		got, err := Eval(tc.src, tc.intensity)
		if err != nil {
			t.Fatalf("Eval(%q): %v", tc.src, err)
		}
		if math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("Eval(%q)=%v want %v", tc.src, got, tc.want)
		}
	}
}

func TestEval_FailsClosed(t *testing.T) {
	bad := []string{
		"",
		"   ",
		"os.Exit(1)",
		"__import__('os')",
		"x + 1",
		"intensity.real",
		"intensity[0]",
		"pow(intensity, 2)",
		"abs(1, 2)",
		"min(intensity)",
		"intensity % 2",
		"intensity ** 2",
		"'abc'",
		"intensity == 1",
		"func() float64 { return 1 }()",
		"max(intensity...)",
		"1 +",
	}
	for _, src := range bad {
		if _, err := Eval(src, 1); err == nil {
			t.Fatalf("Eval(%q) should fail", src)
		}
	}
}

func TestEval_DivideByZero(t *testing.T) {
	_, err := Eval("1 / (intensity - 1)", 1)
	if !errors.Is(err, ErrDivideByZero) {
		t.Fatalf("want ErrDivideByZero, got %v", err)
	}
}

func TestEval_NonFinite(t *testing.T) {
	_, err := Eval("intensity * 1e308 * 10", 10)
	if !errors.Is(err, ErrNonFinite) {
		t.Fatalf("want ErrNonFinite, got %v", err)
	}
}

func TestCompile_Reusable(t *testing.T) {
	p, err := Compile("intensity * 2 + 1")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	for _, in := range []float64{0, 1, 2.5} {
		got, err := p.Eval(in)
		if err != nil {
			t.Fatalf("eval: %v", err)
		}
		if got != in*2+1 {
			t.Fatalf("eval(%v)=%v", in, got)
		}
	}
	if p.String() != "intensity * 2 + 1" {
		t.Fatalf("String()=%q", p.String())
	}
}

func TestCompile_UnsupportedErrorType(t *testing.T) {
	_, err := Compile("sin(intensity)")
	var ue *UnsupportedError
	if !errors.As(err, &ue) {
		t.Fatalf("want *UnsupportedError, got %T %v", err, err)
	}
}
