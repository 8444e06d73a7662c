package core

import (
	"errors"
	"math"
	"testing"
)

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		in  string
		out float64
		ok  bool
	}{
		{"1", 1, true},
		{"1.0", 1, true},
		{"1.23", 1.23, true},
		{"1,23", 1.23, true},
		{" 2.50 ", 2.5, true},
		{"", 0, true},
		{"-4.5", -4.5, true},
		{"1,234.5", 1234.5, true},
		{"1234,567", 1234.567, true},
		{"1,234", 0, false},
		{"12,345", 0, false},
		{"1e400", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimal(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %v, got %v (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		name string
		got  float64
		want float64
	}{
		{"round2 up", Round2(9.999), 10},
		{"round2 half", Round2(1.005), 1.01},
		{"round2 negative half", Round2(-1.005), -1.01},
		{"round2 keeps cents", Round2(97.5), 97.5},
		{"round3 half", Round3(0.0005), 0.001},
		{"round3 third", Round3(2.0 / 3.0), 0.667},
		{"mul2 exact", Mul2(3, 3.333), 10},
		{"mul2 binary drift", Mul2(0.1, 3), 0.3},
		{"mul2 session", Mul2(15, 6.5), 97.5},
		{"div3", Div(97.5, 15, 3), 6.5},
		{"div2", Div(100, 3, 2), 33.33},
		{"div3 just below half", Div(1.0004999996, 1, 3), 1},
		{"div2 just below half", Div(0.0149999, 1, 2), 0.01},
		{"div3 half", Div(1.0005, 1, 3), 1.001},
		{"sum", Sum(2, 0.1, 0.2), 0.3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Fatalf("got %v, want %v", tc.got, tc.want)
			}
		})
	}
}

func TestParseDecimalErrors(t *testing.T) {
	if _, err := ParseDecimal("1,234"); !errors.Is(err, ErrAmbiguousNumber) {
		t.Fatalf("got %v", err)
	}
	if _, err := ParseDecimal("-1e309"); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("got %v", err)
	}
}

func TestHelpersPassNonFiniteThrough(t *testing.T) {
	inf := math.Inf(1)
	if got := Mul2(1e300, 1e10); !math.IsInf(got, 1) {
		t.Fatalf("Mul2 overflow = %v", got)
	}
	if got := Div(inf, 2, 3); !math.IsInf(got, 1) {
		t.Fatalf("Div = %v", got)
	}
	if got := Sum(2, 1, inf); !math.IsInf(got, 1) {
		t.Fatalf("Sum = %v", got)
	}
	if got := Round2(math.NaN()); !math.IsNaN(got) {
		t.Fatalf("Round2 = %v", got)
	}
	if got := FormatDecimal(inf, 2); got != "" {
		t.Fatalf("FormatDecimal = %q", got)
	}
	if InRange(1e10) || !InRange(-1e9) || InRange(math.NaN()) {
		t.Fatal("InRange bounds")
	}
}

func TestFormatting(t *testing.T) {
	if got := FormatFixed(10, 2); got != "10.00" {
		t.Fatalf("FormatFixed = %q", got)
	}
	if got := FormatDecimal(6.5, 3); got != "6.5" {
		t.Fatalf("FormatDecimal = %q", got)
	}
	if got := FormatDecimal(12, 2); got != "12" {
		t.Fatalf("FormatDecimal = %q", got)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		if id == "" || seen[id] {
			t.Fatalf("duplicate or empty id %q", id)
		}
		seen[id] = true
	}
}
