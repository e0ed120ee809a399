package ranking

import (
	"math"
	"testing"
)

func TestEvalExpr(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"2+2", 4},
		{"2+2*3", 8},
		{"(2+2)*3", 12},
		{"10/4", 2.5},
		{"2^10", 1024},
		{"2^3^2", 512}, // right associative
		{"-5+3", -2},
		{"--4", 4},
		{"7%3", 1},
		{"3.5*2", 7},
		{" 1 + 2 ", 3},
		{"(1+2)*(3+4)", 21},
		{"100", 100},
		{"0.5", 0.5},
	}

	for _, tt := range tests {
		got, err := evalExpr(tt.expr)
		if err != nil {
			t.Errorf("evalExpr(%q) failed: %v", tt.expr, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("evalExpr(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEvalExpr_Errors(t *testing.T) {
	exprs := []string{
		"",
		"2+",
		"(2",
		"2++2",
		"abc",
		"1/0",
		"5%0",
		"2 3",
		"2..5",
		")",
	}

	for _, expr := range exprs {
		if got, err := evalExpr(expr); err == nil {
			t.Errorf("evalExpr(%q) = %v, expected error", expr, got)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{4, "4"},
		{2.5, "2.5"},
		{0.1 + 0.2, "0.3"},
		{-3, "-3"},
		{1024, "1024"},
	}

	for _, tt := range tests {
		if got := formatValue(tt.v); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}
