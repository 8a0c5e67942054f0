// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package jobtable

import (
	"time"

	"github.com/ClusterCockpit/cc-backend/internal/metrics"
	"github.com/ClusterCockpit/cc-backend/pkg/log"
	"github.com/ClusterCockpit/cc-backend/pkg/pbsjob"
)

// Consume drains queue, writing each job and enforcing WatchdogTimeout
// per iteration. Expiry is fatal: the source relies on its supervisor
// to restart a worker stuck on a slow upsert (§4.10).
func (w *Writer) Consume(queue <-chan pbsjob.Job) {
	for job := range queue {
		done := make(chan struct{})
		go func(j pbsjob.Job) {
			defer close(done)
			if err := w.Write(j); err != nil {
				log.Errorf("jobtable: %v", err)
			}
		}(job)

		select {
		case <-done:
		case <-time.After(WatchdogTimeout):
			metrics.WatchdogFires.Inc()
			log.Abortf("jobtable: watchdog expired after %s, terminating", WatchdogTimeout)
		}
	}
}
