// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/msiextract

package msiextract

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records extraction counters in a Prometheus registry.
type Metrics struct {
	entriesExtracted prometheus.Counter
	entriesSkipped   *prometheus.CounterVec
	entriesFiltered  prometheus.Counter
	bytesWritten     prometheus.Counter
	extractDuration  prometheus.Histogram
}

// NewMetrics registers extraction collectors in reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		entriesExtracted: factory.NewCounter(prometheus.CounterOpts{
			Name: "msiextract_entries_extracted_total",
			Help: "Total number of cabinet entries written to disk",
		}),
		entriesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "msiextract_entries_skipped_total",
			Help: "Total number of cabinet entries skipped by reason",
		}, []string{"reason"}),
		entriesFiltered: factory.NewCounter(prometheus.CounterOpts{
			Name: "msiextract_entries_filtered_total",
			Help: "Total number of cabinet entries excluded by filter rules",
		}),
		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "msiextract_bytes_written_total",
			Help: "Total payload bytes written to disk",
		}),
		extractDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "msiextract_extract_duration_seconds",
			Help:    "Duration of one extraction run in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// recordExtracted counts one written entry.
func (m *Metrics) recordExtracted(written int64) {
	if m == nil {
		return
	}

	m.entriesExtracted.Inc()
	m.bytesWritten.Add(float64(written))
}

// recordSkipped counts one skipped entry.
func (m *Metrics) recordSkipped(reason SkipReason) {
	if m == nil {
		return
	}

	m.entriesSkipped.WithLabelValues(string(reason)).Inc()
}

// recordFiltered counts one filtered entry.
func (m *Metrics) recordFiltered() {
	if m == nil {
		return
	}

	m.entriesFiltered.Inc()
}

// observeDuration records one extraction run duration.
func (m *Metrics) observeDuration(d time.Duration) {
	if m == nil {
		return
	}

	m.extractDuration.Observe(d.Seconds())
}
