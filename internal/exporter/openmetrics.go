// Package exporter serves collected branch gauges and job counters as OpenMetrics.
package exporter

import (
	"net/http"
	"sort"
	"strings"

	"github.com/cam3ron2/branchscope/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SnapshotReader reads metric snapshots.
type SnapshotReader interface {
	Snapshot() []store.MetricPoint
}

var help = map[string]string{
	"branchscope_branch_commits":                 "Commits unique to the branch at the last collection.",
	"branchscope_branch_authors":                 "Distinct commit authors on the branch.",
	"branchscope_health_score":                   "Branch health score between 0 and 100.",
	"branchscope_issues":                         "Repository issues by state, capped by the page limit.",
	"branchscope_branch_pull_requests":           "Pull requests whose head or base is the branch, by merge state.",
	"branchscope_branch_files":                   "Blobs in the branch tree.",
	"branchscope_last_collect_timestamp_seconds": "Unix time of the last successful collection.",
	"branchscope_enrichment_jobs_total":          "Enrichment job transitions by outcome.",
	"branchscope_dependency_health":              "1 when the dependency is reachable, 0 otherwise.",
	"branchscope_github_rate_limit_remaining":    "Remaining GitHub API requests by rate-limit resource.",
}

// NewOpenMetricsHandler returns a handler that renders store snapshots through
// the Prometheus OpenMetrics encoder.
func NewOpenMetricsHandler(reader SnapshotReader) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(&snapshotCollector{reader: reader})

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

type snapshotCollector struct {
	reader SnapshotReader
}

func (c *snapshotCollector) Describe(_ chan<- *prometheus.Desc) {}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.reader == nil {
		return
	}

	for _, point := range c.reader.Snapshot() {
		if point.Name == "" {
			continue
		}

		labelKeys := make([]string, 0, len(point.Labels))
		for key := range point.Labels {
			labelKeys = append(labelKeys, key)
		}
		sort.Strings(labelKeys)

		labelValues := make([]string, 0, len(labelKeys))
		for _, key := range labelKeys {
			labelValues = append(labelValues, point.Labels[key])
		}

		desc := prometheus.NewDesc(point.Name, helpFor(point.Name), labelKeys, nil)
		metric, err := prometheus.NewConstMetric(desc, valueType(point.Name), point.Value, labelValues...)
		if err != nil {
			continue
		}
		ch <- metric
	}
}

func helpFor(name string) string {
	if text, ok := help[name]; ok {
		return text
	}
	return name
}

// valueType reports counters for names following the _total convention.
func valueType(name string) prometheus.ValueType {
	if strings.HasSuffix(name, "_total") {
		return prometheus.CounterValue
	}
	return prometheus.GaugeValue
}
