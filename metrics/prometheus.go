package metrics

import (
	"net/http"
	"strings"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// collector adapts the go-metrics default registry to prometheus's pull
// model: each scrape walks the registry fresh, so counters/gauges
// registered after start-up (a new subsystem's first NewCounter call)
// show up on the very next scrape with no extra wiring.
type collector struct{}

func (collector) Describe(ch chan<- *prometheus.Desc) {
	// Intentionally left undescribed: the metric set is dynamic (new
	// counters/gauges register over the node's lifetime), so Describe
	// sends nothing and Collect is allowed to emit unchecked metrics.
}

func (collector) Collect(ch chan<- prometheus.Metric) {
	gometrics.DefaultRegistry.Each(func(name string, i interface{}) {
		fq := "corechain_" + sanitize(name)
		switch m := i.(type) {
		case gometrics.Counter:
			ch <- prometheus.MustNewConstMetric(
				prometheus.NewDesc(fq, name, nil, nil),
				prometheus.CounterValue, float64(m.Count()))
		case gometrics.Gauge:
			ch <- prometheus.MustNewConstMetric(
				prometheus.NewDesc(fq, name, nil, nil),
				prometheus.GaugeValue, float64(m.Value()))
		case gometrics.GaugeFloat64:
			ch <- prometheus.MustNewConstMetric(
				prometheus.NewDesc(fq, name, nil, nil),
				prometheus.GaugeValue, m.Value())
		}
	})
}

func sanitize(name string) string {
	return strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(name)
}

func newPromHandler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector{})
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
