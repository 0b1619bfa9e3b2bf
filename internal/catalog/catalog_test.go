package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	c, err := Parse(" monthly=120.00 , enrollment=45.5,")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	amount, ok := c.DefaultAmount("monthly")
	if !ok || !amount.Equal(decimal.RequireFromString("120")) {
		t.Errorf("Expected 120, got %s %v", amount, ok)
	}
	if _, ok := c.DefaultAmount("uniform"); ok {
		t.Error("Expected unknown category to be missing")
	}

	for _, bad := range []string{"monthly", "=10", "monthly=abc", "monthly=0", "monthly=-5"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q): expected error", bad)
		}
	}

	empty, err := Parse("")
	if err != nil || len(empty) != 0 {
		t.Errorf("Expected empty catalog, got %v %v", empty, err)
	}
}

func TestNewStatic(t *testing.T) {
	c := NewStatic(Category{Ref: "exam", DefaultAmount: decimal.NewFromInt(30)})
	if amount, ok := c.DefaultAmount("exam"); !ok || amount.IntPart() != 30 {
		t.Errorf("Expected 30, got %s", amount)
	}
}
