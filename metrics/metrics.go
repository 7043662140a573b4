// Package metrics registers per-subsystem counters and gauges the way
// work/worker.go does (github.com/rcrowley/go-metrics,
// metrics.NewRegisteredCounter against the package's default registry)
// and exposes them over HTTP in Prometheus exposition format through a
// Collector adapter, so an operator can point a Prometheus scraper at
// the node without the core packages importing prometheus directly.
package metrics

import (
	"net/http"

	gometrics "github.com/rcrowley/go-metrics"
)

// Counter and Gauge are the handle types core packages hold onto; they
// are gometrics.Counter/Gauge under the hood, re-exported so callers
// only need to import this package.
type Counter = gometrics.Counter
type Gauge = gometrics.Gauge

// NewCounter registers and returns a counter under name against the
// package's default registry. Calling it twice for the same name
// returns the already-registered counter, via
// gometrics.GetOrRegisterCounter.
func NewCounter(name string) Counter {
	return gometrics.GetOrRegisterCounter(name, gometrics.DefaultRegistry)
}

// NewGauge registers and returns a gauge under name.
func NewGauge(name string) Gauge {
	return gometrics.NewRegisteredGauge(name, gometrics.DefaultRegistry)
}

// Subsystem counters/gauges named per SPEC_FULL.md's metrics section:
// chain/reorgdepth, txpool/pending, txpool/proposed, scheduler/cycles.
var (
	ChainReorgDepth   = NewGauge("chain/reorgdepth")
	ChainBlocksNotified Counter = NewCounter("chain/blocksnotified")

	TxPoolPending  = NewGauge("txpool/pending")
	TxPoolProposed = NewGauge("txpool/proposed")
	TxPoolRejected Counter = NewCounter("txpool/rejected")

	SchedulerCycles Counter = NewCounter("scheduler/cycles")
)

// Handler returns an http.Handler serving the go-metrics default
// registry in Prometheus exposition format, for a node's --metrics-addr
// listener.
func Handler() http.Handler {
	return newPromHandler()
}
