// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package energy

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2Api "github.com/influxdata/influxdb-client-go/v2/api"
)

// ExamonConfig describes how to reach the Examon time-series store (§6,
// consulted by the job-energy enricher for per-node power samples).
type ExamonConfig struct {
	URL     string
	Token   string
	Org     string
	Bucket  string
	SkipTLS bool
}

// ExamonStore implements TimeSeriesStore against an Examon deployment
// backed by InfluxDB, mirroring the query shape the source's own
// InfluxDB-backed metric store uses (range + filter on node/measurement).
type ExamonStore struct {
	client      influxdb2.Client
	queryClient influxdb2Api.QueryAPI
	bucket      string
}

// NewExamonStore connects to the Examon/InfluxDB backend described by cfg.
func NewExamonStore(cfg ExamonConfig) *ExamonStore {
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetTLSConfig(&tls.Config{InsecureSkipVerify: cfg.SkipTLS}))
	return &ExamonStore{
		client:      client,
		queryClient: client.QueryAPI(cfg.Org),
		bucket:      cfg.Bucket,
	}
}

// Query fetches the power-metric samples for node over [start, end].
func (s *ExamonStore) Query(node, metric string, start, end time.Time) ([]Sample, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
		|> range(start: %s, stop: %s)
		|> filter(fn: (r) => r._measurement == "%s" and r["node"] == "%s")
		|> drop(columns: ["_start", "_stop"])`,
		s.bucket, start.Format(time.RFC3339), end.Format(time.RFC3339), metric, node)

	rows, err := s.queryClient.Query(context.Background(), query)
	if err != nil {
		return nil, fmt.Errorf("examonstore: querying %s on %s: %w", metric, node, err)
	}

	var samples []Sample
	for rows.Next() {
		row := rows.Record()
		v, ok := row.Value().(float64)
		if !ok {
			continue
		}
		samples = append(samples, Sample{Timestamp: row.Time(), Value: v})
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("examonstore: reading result for %s on %s: %w", metric, node, rows.Err())
	}

	return samples, nil
}

// Close releases the underlying InfluxDB client.
func (s *ExamonStore) Close() {
	s.client.Close()
}
