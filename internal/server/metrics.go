package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/cognos/internal/store"
)

var runsDesc = prometheus.NewDesc(
	"cognos_runs",
	"Number of recorded runs by status",
	[]string{"status"}, nil,
)

// runCollector reads run counts from the store at scrape time.
type runCollector struct {
	store  Store
	logger *slog.Logger
}

// Describe implements prometheus.Collector.
func (c *runCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- runsDesc
}

// Collect implements prometheus.Collector.
func (c *runCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counts, err := c.store.CountRuns(ctx)
	if err != nil {
		c.logger.Warn("collect run counts", "error", err)
		ch <- prometheus.NewInvalidMetric(runsDesc, err)
		return
	}
	// Absent statuses report 0.
	for _, status := range []store.RunStatus{store.StatusRunning, store.StatusSucceeded, store.StatusFailed, store.StatusCancelled} {
		ch <- prometheus.MustNewConstMetric(runsDesc, prometheus.GaugeValue, float64(counts[status]), string(status))
	}
}
