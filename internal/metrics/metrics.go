package metrics

import (
	"errors"
	"math"
	"sort"

	"github.com/getsentry/calltree/internal/aggregate"
	"github.com/getsentry/calltree/internal/calltree"
)

type FunctionsMetadata struct {
	MaxVal   int64
	WorstID  string
	Examples []string
}

// CallTreeFunction accumulates what is known about one function across trees.
type CallTreeFunction struct {
	Function string
	Count    int
	// TimesNS holds the cumulative time of the function in each tree.
	TimesNS []int64
	SumNS   int64
}

type Aggregator struct {
	MaxUniqueFunctions uint
	MaxNumOfExamples   uint
	CallTreeFunctions  map[string]CallTreeFunction
	FunctionsMetadata  map[string]FunctionsMetadata
}

type FunctionMetrics struct {
	Name     string   `json:"name"`
	P75      int64    `json:"p75"`
	P95      int64    `json:"p95"`
	P99      int64    `json:"p99"`
	Avg      float64  `json:"avg"`
	Sum      int64    `json:"sum"`
	Count    uint64   `json:"count"`
	Worst    string   `json:"worst"`
	Examples []string `json:"examples"`
}

func NewAggregator(MaxUniqueFunctions uint, MaxNumOfExamples uint) Aggregator {
	return Aggregator{
		MaxUniqueFunctions: MaxUniqueFunctions,
		MaxNumOfExamples:   MaxNumOfExamples,
		CallTreeFunctions:  make(map[string]CallTreeFunction),
		FunctionsMetadata:  make(map[string]FunctionsMetadata),
	}
}

// AddTree aggregates the call counts and cumulative times of a tree. The
// tree name is used as the example ID.
func (ma *Aggregator) AddTree(t *calltree.Tree) {
	ma.AddFunctions(aggregate.CallCount(t), aggregate.CumulativeTime(t), t.Name())
}

func (ma *Aggregator) AddFunctions(counts map[string]int, times map[string]int64, ID string) {
	for name, count := range counts {
		sum := times[name]
		if fn, ok := ma.CallTreeFunctions[name]; ok {
			fn.Count += count
			fn.TimesNS = append(fn.TimesNS, sum)
			fn.SumNS += sum
			funcMetadata := ma.FunctionsMetadata[name]
			if sum > funcMetadata.MaxVal {
				funcMetadata.MaxVal = sum
				funcMetadata.WorstID = ID
			}
			if len(funcMetadata.Examples) < int(ma.MaxNumOfExamples) {
				funcMetadata.Examples = append(funcMetadata.Examples, ID)
			}
			ma.FunctionsMetadata[name] = funcMetadata
			ma.CallTreeFunctions[name] = fn
		} else {
			ma.CallTreeFunctions[name] = CallTreeFunction{
				Function: name,
				Count:    count,
				TimesNS:  []int64{sum},
				SumNS:    sum,
			}
			ma.FunctionsMetadata[name] = FunctionsMetadata{
				MaxVal:   sum,
				WorstID:  ID,
				Examples: []string{ID},
			}
		}
	}
}

// ToMetrics returns the functions sorted by total time, longest first, up
// to MaxUniqueFunctions.
func (ma *Aggregator) ToMetrics() []FunctionMetrics {
	metrics := make([]FunctionMetrics, 0, len(ma.CallTreeFunctions))

	for _, f := range ma.CallTreeFunctions {
		times := make([]int64, len(f.TimesNS))
		copy(times, f.TimesNS)
		sort.Slice(times, func(i, j int) bool {
			return times[i] < times[j]
		})
		p75, _ := quantile(times, 0.75)
		p95, _ := quantile(times, 0.95)
		p99, _ := quantile(times, 0.99)
		metrics = append(metrics, FunctionMetrics{
			Name:     f.Function,
			P75:      p75,
			P95:      p95,
			P99:      p99,
			Avg:      float64(f.SumNS) / float64(len(f.TimesNS)),
			Sum:      f.SumNS,
			Count:    uint64(f.Count),
			Worst:    ma.FunctionsMetadata[f.Function].WorstID,
			Examples: ma.FunctionsMetadata[f.Function].Examples,
		})
	}
	sort.Slice(metrics, func(i, j int) bool {
		if metrics[i].Sum != metrics[j].Sum {
			return metrics[i].Sum > metrics[j].Sum
		}
		return metrics[i].Name < metrics[j].Name
	})
	if len(metrics) > int(ma.MaxUniqueFunctions) {
		metrics = metrics[:ma.MaxUniqueFunctions]
	}
	return metrics
}

func quantile(values []int64, q float64) (int64, error) {
	if len(values) == 0 {
		return 0, errors.New("cannot compute percentile from empty list")
	}
	if q <= 0 || q > 1 {
		return 0, errors.New("q must be a value between 0 and 1.0")
	}
	index := int(math.Ceil(float64(len(values))*q)) - 1
	return values[index], nil
}
