package testutil

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var defaultCmpOptions = []cmp.Option{
	// Nil and empty maps or slices compare equal.
	cmpopts.EquateEmpty(),
}

// Diff returns a human readable report of the differences between a and b,
// or an empty string. Types with an Equal method, such as call tree nodes,
// are compared with it.
func Diff(a, b interface{}, opts ...cmp.Option) string {
	opts = append(opts, defaultCmpOptions...)
	return cmp.Diff(a, b, opts...)
}

// SortedStrings is a cmp option ignoring the order of string slices.
func SortedStrings() cmp.Option {
	return cmpopts.SortSlices(func(a, b string) bool { return a < b })
}
