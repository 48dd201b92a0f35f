// Package metrics adapts the prometheus client to the core metrics sink
// contract.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusSink registers gauges on a private registry so scrapes see only
// the matchmaker's own measurement points.
type PrometheusSink struct {
	reg *prometheus.Registry
}

func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{reg: prometheus.NewRegistry()}
}

// RegisterGauge implements core.MetricsSink. collect runs on every scrape.
func (s *PrometheusSink) RegisterGauge(name, help string, collect func() float64) error {
	return s.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, collect))
}

// Handler serves the scrape endpoint for this sink's registry.
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})
}
