// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command bcmpub publishes Bright Cluster Manager monitoring data
// scraped from a persistent cmsh session (§4.1, supplemented features
// "BCM publisher").
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ClusterCockpit/cc-backend/internal/bcmsensor"
	"github.com/ClusterCockpit/cc-backend/internal/config"
	"github.com/ClusterCockpit/cc-backend/internal/metrics"
	"github.com/ClusterCockpit/cc-backend/internal/tick"
	"github.com/ClusterCockpit/cc-backend/pkg/dedup"
	"github.com/ClusterCockpit/cc-backend/pkg/log"
	"github.com/ClusterCockpit/cc-backend/pkg/metric"
	"github.com/ClusterCockpit/cc-backend/pkg/runtimeEnv"
	"github.com/ClusterCockpit/cc-backend/pkg/shell"
	"github.com/ClusterCockpit/cc-backend/pkg/sink"
	"github.com/google/uuid"
)

// instanceID identifies this worker process in logs and metrics tags
// when several instances of the same publisher run concurrently.
var instanceID = uuid.NewString()

const (
	defaultBCMShell   = "/cm/local/apps/cmd/bin/cmsh"
	defaultBCMToolCmd = `latestmonitoringdata -u -d ";" --raw -c compute,gpu`
	defaultStopSeq    = "->device]%"
	bcmColumnCount    = 8
)

func main() {
	var flagConfigFile, flagLogLevel string
	flag.StringVar(&flagConfigFile, "config", "./config.json", "path to the shared publisher configuration file")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "debug, info, notice, warn, err or crit")
	flag.Parse()

	log.SetLogLevel(flagLogLevel)

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		log.Fatalf("loading config: %s", err.Error())
	}
	if cfg.MetricsAddr != "" {
		metrics.Serve(cfg.MetricsAddr)
	}
	log.Infof("bcmpub: starting instance %s", instanceID)

	natsSink, err := sink.NewNatsSink(&cfg.Sink)
	if err != nil {
		log.Fatalf("connecting to sink: %s", err.Error())
	}
	defer natsSink.Close()

	shellCmd := cfg.BCMShell
	if shellCmd == "" {
		shellCmd = defaultBCMShell
	}
	if cfg.BCMHost != "" && cfg.BCMUsername != "" {
		shellCmd = fmt.Sprintf("ssh -q -tt %s@%s '%s'", cfg.BCMUsername, cfg.BCMHost, shellCmd)
	}

	stopSeq := cfg.BCMStopSequence
	if stopSeq == "" {
		stopSeq = defaultStopSeq
	}

	session, err := shell.Open(shell.Config{
		ShellCmd:     shellCmd,
		Sep:          ";",
		ColumnNum:    bcmColumnCount,
		StopSequence: stopSeq,
		Timeout:      30 * time.Second,
	})
	if err != nil {
		log.Fatalf("opening cmsh session: %s", err.Error())
	}
	defer session.Close()

	toolCmd := cfg.BCMToolCmd
	if toolCmd == "" {
		toolCmd = defaultBCMToolCmd
	}

	tags := metric.NewTagSet()
	tags.Set("org", "bcm")
	tags.Set("cluster", cfg.CassKeyspace)
	tags.Set("plugin", "bcmpub")
	tags.Set("instance", instanceID)

	sensor := bcmsensor.New(session, toolCmd, tags)
	emitter := dedup.New(sensor, natsSink, cfg.CacheMaxSize)

	sched := tick.New()
	sched.Every(cfg.TS.Duration, func() {
		if err := emitter.Tick(context.Background()); err != nil {
			log.Errorf("bcmpub: tick failed: %v", err)
		}
	})
	sched.Start()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	runtimeEnv.SystemdNotifiy(true, "running")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-sigs
		runtimeEnv.SystemdNotifiy(false, "shutting down")
		sched.Shutdown()
		natsSink.Flush()
	}()
	wg.Wait()

	log.Print("bcmpub: graceful shutdown completed")
}
