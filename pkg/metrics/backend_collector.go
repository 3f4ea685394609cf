package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/qrandom/qrng/internal/backend"
)

const collectTimeout = 5 * time.Second

type backendStatsCollector struct {
	registry    backend.Registry
	queueDepth  *prometheus.Desc
	operational *prometheus.Desc
}

// NewBackendStatsCollector exposes the registry snapshot: the queue depth
// and the operational flag of every listed backend.
func NewBackendStatsCollector(r backend.Registry) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_backend_%s", qrng, name)
	}

	return &backendStatsCollector{
		registry: r,
		queueDepth: prometheus.NewDesc(
			fqName("queue_depth"),
			"Number of jobs queued on the backend. Backends with an unknown depth are not reported.",
			[]string{"backend", "kind"},
			nil,
		),
		operational: prometheus.NewDesc(
			fqName("operational"),
			"1 when the backend accepts jobs.",
			[]string{"backend", "kind"},
			nil,
		),
	}
}

func (c *backendStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueDepth
	ch <- c.operational
}

func (c *backendStatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	candidates, err := c.registry.ListBackends(ctx)
	if err != nil {
		zap.S().Named("metrics").Errorw("failed to list backends", "error", err)
		return
	}

	for _, cand := range candidates {
		kind := string(cand.Kind)
		if cand.QueueDepth != nil {
			ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(*cand.QueueDepth), cand.Name, kind)
		}
		operational := 0.0
		if cand.Operational {
			operational = 1
		}
		ch <- prometheus.MustNewConstMetric(c.operational, prometheus.GaugeValue, operational, cand.Name, kind)
	}
}
