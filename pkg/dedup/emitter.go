// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dedup implements the Dedup Emitter (§4.8): it pulls a raw
// snapshot from a sensor, normalises it into metric records, drops
// records seen too recently, and hands survivors to a Sink.
package dedup

import (
	"context"
	"strings"
	"time"

	"github.com/ClusterCockpit/cc-backend/internal/metrics"
	"github.com/ClusterCockpit/cc-backend/pkg/fingerprint"
	"github.com/ClusterCockpit/cc-backend/pkg/log"
	"github.com/ClusterCockpit/cc-backend/pkg/metric"
	"github.com/ClusterCockpit/cc-backend/pkg/sink"
)

// HitWindow is the source's hard-coded miss window: a fingerprint seen
// more recently than this is dropped as a duplicate (§4.8, §9).
const HitWindow = 5 * time.Second

// SchemaHeaderMarker is the dashed prefix the source command emits for
// schema headers; records carrying it in their name are discarded.
const SchemaHeaderMarker = "----"

// Sensor produces one timestamped raw snapshot per call, along with a
// Normalise step that turns it into metric records.
type Sensor interface {
	Read() (time.Time, any, error)
	Normalise(ts time.Time, raw any) ([]metric.Record, error)
}

// Emitter drives one Sensor, deduplicating records via a Fingerprint
// Cache before handing survivors to a Sink.
type Emitter struct {
	sensor Sensor
	sink   sink.Sink
	cache  *fingerprint.Cache
}

// New builds an Emitter. cacheMaxSize is the advisory size limit passed
// through to the underlying Fingerprint Cache.
func New(sensor Sensor, s sink.Sink, cacheMaxSize int) *Emitter {
	return &Emitter{
		sensor: sensor,
		sink:   s,
		cache:  fingerprint.NewCache(HitWindow, cacheMaxSize),
	}
}

// Tick reads one snapshot, normalises it, and emits every record that
// isn't a schema-header artefact or a recent duplicate.
func (e *Emitter) Tick(ctx context.Context) error {
	ts, raw, err := e.sensor.Read()
	if err != nil {
		return err
	}

	records, err := e.sensor.Normalise(ts, raw)
	if err != nil {
		return err
	}

	for _, r := range records {
		if strings.Contains(r.Name, SchemaHeaderMarker) {
			continue
		}

		key := fingerprintKey(r)
		if _, ok := e.cache.Get(key); ok {
			metrics.RecordsDeduped.Inc()
			continue // hit: seen within HitWindow, dropped as a duplicate
		}

		if err := e.sink.Publish(ctx, r); err != nil {
			log.Errorf("dedup: publish failed for %s: %v", r.Name, err)
			continue
		}
		e.cache.Set(key, ts)
	}

	return nil
}

func fingerprintKey(r metric.Record) string {
	var buf [8]byte
	fp := r.Fingerprint()
	for i := 0; i < 8; i++ {
		buf[i] = byte(fp >> (8 * i))
	}
	return string(buf[:])
}
