// metrics.go - Metrics collection for the relay
package main

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// maxSamples bounds each histogram window.
const maxSamples = 1000

// MetricsCollector keeps in-process counters, gauges and latency windows
// for the /metrics endpoint.
type MetricsCollector struct {
	mu         sync.RWMutex
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// IncrementCounter increments a counter metric
func (mc *MetricsCollector) IncrementCounter(name string, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.counters[makeKey(name, labels)]++
}

// SetGauge sets a gauge metric value
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.gauges[makeKey(name, labels)] = value
}

// RecordHistogram records a value in a histogram
func (mc *MetricsCollector) RecordHistogram(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := makeKey(name, labels)
	values := append(mc.histograms[key], value)
	if len(values) > maxSamples {
		values = values[len(values)-maxSamples:]
	}
	mc.histograms[key] = values
}

// Counter returns the current value of a counter.
func (mc *MetricsCollector) Counter(name string, labels map[string]string) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.counters[makeKey(name, labels)]
}

// GetMetricsSummary returns a summary of all metrics
func (mc *MetricsCollector) GetMetricsSummary() map[string]interface{} {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	counters := make(map[string]int64, len(mc.counters))
	for key, v := range mc.counters {
		counters[key] = v
	}

	gauges := make(map[string]float64, len(mc.gauges))
	for key, v := range mc.gauges {
		gauges[key] = v
	}

	histograms := make(map[string]map[string]float64, len(mc.histograms))
	for key, values := range mc.histograms {
		if len(values) == 0 {
			continue
		}
		h := map[string]float64{
			"count": float64(len(values)),
			"min":   values[0],
			"max":   values[0],
		}
		var sum float64
		for _, v := range values {
			if v < h["min"] {
				h["min"] = v
			}
			if v > h["max"] {
				h["max"] = v
			}
			sum += v
		}
		h["sum"] = sum
		h["avg"] = sum / h["count"]
		histograms[key] = h
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// makeKey builds name{k=v,...} with labels sorted by key.
func makeKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Predefined metric names
const (
	MetricShieldRequests    = "shield_requests_total"
	MetricShieldSuccess     = "shield_success_total"
	MetricShieldFailure     = "shield_failure_total"
	MetricVerifyRequests    = "verify_requests_total"
	MetricVerifyInvalid     = "verify_invalid_total"
	MetricRateLimited       = "rate_limited_total"
	MetricPeerForwardFail   = "peer_forward_errors_total"
	MetricPeerAcks          = "peer_acks_total"
	MetricPoolRunning       = "pool_running"
	MetricProofGeneration   = "proof_generation_ms"
	MetricProofVerification = "proof_verification_ms"
)

// RecordShield counts one /shield outcome. reason labels failures.
func (mc *MetricsCollector) RecordShield(reason string, d time.Duration) {
	mc.IncrementCounter(MetricShieldRequests, nil)
	if reason == "" {
		mc.IncrementCounter(MetricShieldSuccess, nil)
		mc.RecordHistogram(MetricProofGeneration, float64(d.Microseconds())/1000, nil)
		return
	}
	mc.IncrementCounter(MetricShieldFailure, map[string]string{"reason": reason})
}

func (mc *MetricsCollector) RecordVerify(valid bool, d time.Duration) {
	mc.IncrementCounter(MetricVerifyRequests, nil)
	if !valid {
		mc.IncrementCounter(MetricVerifyInvalid, nil)
	}
	mc.RecordHistogram(MetricProofVerification, float64(d.Microseconds())/1000, nil)
}
