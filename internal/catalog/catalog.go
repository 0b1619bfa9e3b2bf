// Package catalog looks up payment categories and their default amounts.
package catalog

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Category is a kind of charge, e.g. monthly tuition or enrollment.
type Category struct {
	Ref           string
	DefaultAmount decimal.Decimal
}

// Catalog resolves category references. Read-only.
type Catalog interface {
	DefaultAmount(ref string) (decimal.Decimal, bool)
}

// Static is an in-memory catalog keyed by category reference.
type Static map[string]Category

// NewStatic builds a catalog from categories.
func NewStatic(categories ...Category) Static {
	s := make(Static, len(categories))
	for _, c := range categories {
		s[c.Ref] = c
	}
	return s
}

// DefaultAmount implements Catalog.
func (s Static) DefaultAmount(ref string) (decimal.Decimal, bool) {
	c, ok := s[ref]
	if !ok {
		return decimal.Zero, false
	}
	return c.DefaultAmount, true
}

// Parse reads "ref=amount" pairs separated by commas, e.g.
// "monthly=120.00,enrollment=45.50". Empty input gives an empty catalog.
func Parse(entries string) (Static, error) {
	s := Static{}
	for _, pair := range strings.Split(entries, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		ref, amount, ok := strings.Cut(pair, "=")
		ref = strings.TrimSpace(ref)
		if !ok || ref == "" {
			return nil, fmt.Errorf("catalog: malformed entry %q", pair)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil {
			return nil, fmt.Errorf("catalog: amount for %s: %w", ref, err)
		}
		if !d.IsPositive() {
			return nil, fmt.Errorf("catalog: amount for %s must be positive, got %s", ref, d)
		}
		s[ref] = Category{Ref: ref, DefaultAmount: d}
	}
	return s, nil
}
