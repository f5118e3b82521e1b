package store

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricPoint is a single metric sample.
type MetricPoint struct {
	Name      string
	Labels    map[string]string
	Value     float64
	UpdatedAt time.Time
}

type storedMetric struct {
	point MetricPoint
}

// MemoryStore is an in-memory metric snapshot store read by the /metrics handler.
type MemoryStore struct {
	mu        sync.RWMutex
	retention time.Duration
	maxSeries int
	metrics   map[string]storedMetric
}

// NewMemoryStore creates a memory store.
func NewMemoryStore(retention time.Duration, maxSeries int) *MemoryStore {
	return &MemoryStore{
		retention: retention,
		maxSeries: maxSeries,
		metrics:   make(map[string]storedMetric),
	}
}

// UpsertMetric inserts or updates a metric point.
func (s *MemoryStore) UpsertMetric(point MetricPoint) error {
	if point.Name == "" {
		return fmt.Errorf("metric name is required")
	}
	if point.UpdatedAt.IsZero() {
		return fmt.Errorf("metric updated time is required")
	}

	key := metricKey(point.Name, point.Labels)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.metrics[key]; !exists && s.maxSeries > 0 && len(s.metrics) >= s.maxSeries {
		return fmt.Errorf("max series budget exceeded")
	}
	s.metrics[key] = storedMetric{
		point: MetricPoint{
			Name:      point.Name,
			Labels:    maps.Clone(point.Labels),
			Value:     point.Value,
			UpdatedAt: point.UpdatedAt,
		},
	}
	return nil
}

// AddMetric increments a counter-style series by delta, creating it at delta.
func (s *MemoryStore) AddMetric(point MetricPoint, delta float64) error {
	if point.Name == "" {
		return fmt.Errorf("metric name is required")
	}
	key := metricKey(point.Name, point.Labels)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.metrics[key]
	if !exists && s.maxSeries > 0 && len(s.metrics) >= s.maxSeries {
		return fmt.Errorf("max series budget exceeded")
	}
	value := delta
	if exists {
		value += current.point.Value
	}
	s.metrics[key] = storedMetric{
		point: MetricPoint{
			Name:      point.Name,
			Labels:    maps.Clone(point.Labels),
			Value:     value,
			UpdatedAt: point.UpdatedAt,
		},
	}
	return nil
}

// GC deletes metrics older than the retention window.
func (s *MemoryStore) GC(now time.Time) {
	if s.retention <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, metric := range s.metrics {
		if now.Sub(metric.point.UpdatedAt) > s.retention {
			delete(s.metrics, key)
		}
	}
}

// Snapshot returns all stored metrics sorted by series key.
func (s *MemoryStore) Snapshot() []MetricPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]MetricPoint, 0, len(s.metrics))
	for _, metric := range s.metrics {
		result = append(result, MetricPoint{
			Name:      metric.point.Name,
			Labels:    maps.Clone(metric.point.Labels),
			Value:     metric.point.Value,
			UpdatedAt: metric.point.UpdatedAt,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		leftKey := metricKey(result[i].Name, result[i].Labels)
		rightKey := metricKey(result[j].Name, result[j].Labels)
		return leftKey < rightKey
	})
	return result
}

func metricKey(name string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	builder := strings.Builder{}
	builder.WriteString(name)
	builder.WriteString("|")
	for _, key := range keys {
		builder.WriteString(key)
		builder.WriteString("=")
		builder.WriteString(labels[key])
		builder.WriteString(";")
	}
	return builder.String()
}
