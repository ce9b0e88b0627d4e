package engine

import (
	"sync/atomic"

	"github.com/martinemde/conductor/modelclient"
)

// UsageAggregator accumulates token usage with atomic adds. One instance
// serves as the process-wide aggregate, passed by reference to every
// session; sessions additionally keep their own instance. Counters are
// monotonically non-decreasing.
type UsageAggregator struct {
	input  atomic.Int64
	output atomic.Int64
	total  atomic.Int64
}

// Add folds one response's usage into the aggregate.
func (a *UsageAggregator) Add(u modelclient.Usage) {
	a.input.Add(u.InputTokens)
	a.output.Add(u.OutputTokens)
	a.total.Add(u.TotalTokens)
}

// Totals returns the accumulated counters.
func (a *UsageAggregator) Totals() modelclient.Usage {
	return modelclient.Usage{
		InputTokens:  a.input.Load(),
		OutputTokens: a.output.Load(),
		TotalTokens:  a.total.Load(),
	}
}
