package market

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// listingEnv is the evaluation environment of a listing filter expression.
type listingEnv struct {
	UnitPrice int
	Quantity  int
}

// ListingFilter is an optional, user-defined predicate evaluated against each
// listing row in addition to the max-unit-price rule, e.g.
// "Quantity >= 10 && UnitPrice * Quantity <= 50000". It can only narrow the
// set of eligible rows, never widen it.
type ListingFilter struct {
	src     string
	program *vm.Program
}

// CompileListingFilter compiles the expression source. An empty source is
// valid and yields a nil filter (every row passes).
func CompileListingFilter(src string) (*ListingFilter, error) {
	if src == "" {
		return nil, nil
	}

	program, err := expr.Compile(src, expr.Env(listingEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling listing filter %q: %w", src, err)
	}

	return &ListingFilter{src: src, program: program}, nil
}

func (f *ListingFilter) Source() string {
	if f == nil {
		return ""
	}
	return f.src
}

// Match reports whether a listing passes the filter. A nil filter matches
// everything; an evaluation error rejects the row (a listing we cannot judge
// is never bought).
func (f *ListingFilter) Match(unitPrice, quantity int) bool {
	if f == nil {
		return true
	}

	out, err := expr.Run(f.program, listingEnv{UnitPrice: unitPrice, Quantity: quantity})
	if err != nil {
		return false
	}

	match, ok := out.(bool)
	return ok && match
}
