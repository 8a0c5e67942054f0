// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes the publishers' own self-observability
// counters (§5 suspension points, §7 failure modes) via a Prometheus
// /metrics endpoint, the way the teacher exposes its own operational
// counters.
package metrics

import (
	"net/http"

	"github.com/ClusterCockpit/cc-backend/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BatchAdjustments counts every call to the Adaptive Batch
	// Controller's Adjust, labeled by whether the batch succeeded.
	BatchAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "publisher_batch_adjustments_total",
		Help: "Adaptive Batch Controller Adjust calls, by outcome.",
	}, []string{"outcome"})

	// RecordsDeduped counts metric records the Dedup Emitter dropped as
	// duplicates within the fingerprint hit window.
	RecordsDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "publisher_records_deduped_total",
		Help: "Metric records dropped by the Dedup Emitter as recent duplicates.",
	})

	// WatchdogFires counts Job-Table Writer watchdog expirations; each
	// one is immediately followed by process termination.
	WatchdogFires = promauto.NewCounter(prometheus.CounterOpts{
		Name: "publisher_watchdog_fires_total",
		Help: "Job-Table Writer watchdog timeouts observed before exit.",
	})
)

// Serve starts a background HTTP server exposing /metrics on addr. A
// blank addr disables it: callers are expected to check before calling.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorf("metrics: server on %s stopped: %v", addr, err)
		}
	}()
	log.Infof("metrics: serving /metrics on %s", addr)
}
