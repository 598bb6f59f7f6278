package aggregate

import (
	"github.com/getsentry/calltree/internal/calltree"
)

// CallCount returns how many times each function was called. Argument
// suffixes are stripped, and the root counts as a function too.
func CallCount(t *calltree.Tree) map[string]int {
	counts := make(map[string]int)
	t.ForEach(func(n *calltree.Node) {
		counts[n.FunctionName()]++
	})
	return counts
}

// CumulativeTime returns the total execution time of each function, in
// nanoseconds. Calls that never ended contribute 0.
func CumulativeTime(t *calltree.Tree) map[string]int64 {
	times := make(map[string]int64)
	t.ForEach(func(n *calltree.Node) {
		times[n.FunctionName()] += n.ExecutionTime()
	})
	return times
}

// MergeCounts adds src into dst and returns dst.
func MergeCounts(dst, src map[string]int) map[string]int {
	if dst == nil {
		dst = make(map[string]int, len(src))
	}
	for k, v := range src {
		dst[k] += v
	}
	return dst
}

// MergeTimes adds src into dst and returns dst.
func MergeTimes(dst, src map[string]int64) map[string]int64 {
	if dst == nil {
		dst = make(map[string]int64, len(src))
	}
	for k, v := range src {
		dst[k] += v
	}
	return dst
}
