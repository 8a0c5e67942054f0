// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/ClusterCockpit/cc-backend/pkg/metric"
	"github.com/ClusterCockpit/cc-backend/pkg/sanitize"
)

type fakeSensor struct {
	ts      time.Time
	records []metric.Record
}

func (f *fakeSensor) Read() (time.Time, any, error) { return f.ts, nil, nil }
func (f *fakeSensor) Normalise(time.Time, any) ([]metric.Record, error) {
	return f.records, nil
}

type fakeSink struct {
	published []metric.Record
}

func (f *fakeSink) Publish(_ context.Context, m metric.Record) error {
	f.published = append(f.published, m)
	return nil
}
func (f *fakeSink) Flush() error { return nil }
func (f *fakeSink) Close()       {}

func tagSet(pairs ...string) *metric.TagSet {
	ts := metric.NewTagSet()
	for i := 0; i < len(pairs); i += 2 {
		ts.Set(pairs[i], pairs[i+1])
	}
	return ts
}

func TestEmitterDropsDuplicateWithinHitWindow(t *testing.T) {
	now := time.Now()
	record := metric.New("cpu_load", 1.0, now, tagSet("node", "n1"), sanitize.SchedulerPath)

	sensor := &fakeSensor{ts: now, records: []metric.Record{record}}
	sk := &fakeSink{}
	e := New(sensor, sk, 0)

	if err := e.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := e.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(sk.published) != 1 {
		t.Fatalf("expected 1 publish (second tick deduplicated), got %d", len(sk.published))
	}
}

func TestEmitterEmitsAfterHitWindowElapses(t *testing.T) {
	sk := &fakeSink{}
	var e *Emitter

	t1 := time.Now()
	record := metric.New("cpu_load", 1.0, t1, tagSet("node", "n1"), sanitize.SchedulerPath)
	e = New(&fakeSensor{ts: t1, records: []metric.Record{record}}, sk, 0)
	e.Tick(context.Background())

	time.Sleep(HitWindow + 20*time.Millisecond)

	t2 := time.Now()
	record2 := metric.New("cpu_load", 2.0, t2, tagSet("node", "n1"), sanitize.SchedulerPath)
	e.sensor = &fakeSensor{ts: t2, records: []metric.Record{record2}}
	e.Tick(context.Background())

	if len(sk.published) != 2 {
		t.Fatalf("expected 2 publishes once hit window elapsed, got %d", len(sk.published))
	}
}

func TestEmitterDiscardsSchemaHeaderRecords(t *testing.T) {
	now := time.Now()
	record := metric.New("----header----", 1.0, now, tagSet("node", "n1"), sanitize.SchedulerPath)

	sk := &fakeSink{}
	e := New(&fakeSensor{ts: now, records: []metric.Record{record}}, sk, 0)
	e.Tick(context.Background())

	if len(sk.published) != 0 {
		t.Fatalf("expected schema-header record to be discarded, got %d publishes", len(sk.published))
	}
}
