// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sink publishes canonical metric records (pkg/metric) to the
// downstream message bus. It is the only package in the module that
// imports nats.go directly - the Dedup Emitter and the job-table/energy
// writers only ever see the Sink interface, so swapping the transport
// later does not ripple through the rest of the tree.
package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/ClusterCockpit/cc-backend/pkg/log"
	"github.com/ClusterCockpit/cc-backend/pkg/metric"
	"github.com/nats-io/nats.go"
)

// Sink is the downstream collaborator every emitter publishes through.
type Sink interface {
	Publish(ctx context.Context, m metric.Record) error
	Flush() error
	Close()
}

// NatsSink publishes each record's JSON wire form under its routing key
// (§6) over a NATS connection.
type NatsSink struct {
	conn  *nats.Conn
	topic string
	mu    sync.Mutex
}

var _ Sink = (*NatsSink)(nil)

// NewNatsSink connects to the sink described by cfg. If cfg is nil the
// package-level Keys (populated by Init) is used.
func NewNatsSink(cfg *Config) (*NatsSink, error) {
	if cfg == nil {
		cfg = &Keys
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("sink address is required")
	}

	var opts []nats.Option

	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}

	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			log.Warnf("sink disconnected: %v", err)
		}
	}))

	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		log.Infof("sink reconnected to %s", nc.ConnectedUrl())
	}))

	opts = append(opts, nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
		log.Errorf("sink error: %v", err)
	}))

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("sink connect failed: %w", err)
	}

	log.Infof("sink connected to %s", cfg.Address)
	return &NatsSink{conn: nc, topic: cfg.Topic}, nil
}

// Publish serialises m and publishes it on its routing key (§6), prefixed
// by the configured topic if one was set.
func (s *NatsSink) Publish(_ context.Context, m metric.Record) error {
	payload, err := m.MarshalJSON()
	if err != nil {
		return fmt.Errorf("sink marshal failed: %w", err)
	}

	subject := m.RoutingKey()
	if s.topic != "" {
		subject = s.topic + "/" + subject
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("sink publish to %q failed: %w", subject, err)
	}
	return nil
}

// Flush flushes the connection's outbound buffer.
func (s *NatsSink) Flush() error {
	return s.conn.Flush()
}

// Close closes the underlying connection.
func (s *NatsSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		log.Info("sink connection closed")
	}
}
