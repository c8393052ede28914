package rules

import "github.com/shopspring/decimal"

// Reducer folds the converted values of one bucket (time reduction) or the
// per-resource bucket values of one group (resource reduction) into a single
// value. Callers guarantee values is non-empty; "no samples" is handled by
// the engine as explicit no-data, never by reducing an empty slice.
type Reducer interface {
	Reduce(values []decimal.Decimal) decimal.Decimal
	Name() string
}

// Reducers is the registry of named reducers, mirroring the rule table.
var Reducers = map[string]Reducer{
	"sum":       Sum,
	"avg":       Avg,
	"count":     Count,
	"max":       Max,
	"sum_clamp": SumClamp,
}

var (
	Sum      Reducer = sumReducer{}
	Avg      Reducer = avgReducer{}
	Count    Reducer = countReducer{}
	Max      Reducer = maxReducer{}
	SumClamp Reducer = sumClampReducer{}
)

type sumReducer struct{}

func (sumReducer) Name() string { return "sum" }
func (sumReducer) Reduce(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

type avgReducer struct{}

func (avgReducer) Name() string { return "avg" }
func (avgReducer) Reduce(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total.Div(decimal.NewFromInt(int64(len(values))))
}

type countReducer struct{}

func (countReducer) Name() string { return "count" }
func (countReducer) Reduce(values []decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(len(values)))
}

type maxReducer struct{}

func (maxReducer) Name() string { return "max" }
func (maxReducer) Reduce(values []decimal.Decimal) decimal.Decimal {
	max := values[0]
	for _, v := range values[1:] {
		if v.GreaterThan(max) {
			max = v
		}
	}
	return max
}

// sumClampReducer sums then clamps to >= 0. Cash-back buckets may go
// negative mid-sum but a negative cash-back is never surfaced.
type sumClampReducer struct{}

func (sumClampReducer) Name() string { return "sum_clamp" }
func (sumClampReducer) Reduce(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}
