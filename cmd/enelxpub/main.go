// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command enelxpub publishes power, energy, and carbon-emission
// readings pulled from the EnelX/Dexma EMS vendor portal (§4.8,
// supplemented features "EnelX publisher").
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ClusterCockpit/cc-backend/internal/config"
	"github.com/ClusterCockpit/cc-backend/internal/enelxsensor"
	"github.com/ClusterCockpit/cc-backend/internal/metrics"
	"github.com/ClusterCockpit/cc-backend/internal/tick"
	"github.com/ClusterCockpit/cc-backend/pkg/dedup"
	"github.com/ClusterCockpit/cc-backend/pkg/log"
	"github.com/ClusterCockpit/cc-backend/pkg/runtimeEnv"
	"github.com/ClusterCockpit/cc-backend/pkg/sink"
	"github.com/google/uuid"
)

// instanceID identifies this worker process in logs when several
// instances of the same publisher run concurrently.
var instanceID = uuid.NewString()

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
	if len(cfg.EnelxMoteDict) == 0 {
		log.Fatal("enelxpub: enelx_mote_dict must name at least one meter")
	}
	if cfg.MetricsAddr != "" {
		metrics.Serve(cfg.MetricsAddr)
	}
	log.Infof("enelxpub: starting instance %s", instanceID)

	natsSink, err := sink.NewNatsSink(&cfg.Sink)
	if err != nil {
		log.Fatalf("connecting to sink: %s", err.Error())
	}
	defer natsSink.Close()

	client, err := enelxsensor.NewClient(enelxsensor.Config{
		Username:  cfg.EnelxUsername,
		Password:  cfg.EnelxPassword,
		DepID:     cfg.EnelxDepID,
		DepToken:  cfg.EnelxDepToken,
		AccountID: cfg.EnelxAccountID,
	})
	if err != nil {
		log.Fatalf("building enelx client: %s", err.Error())
	}

	lookback := cfg.TS.Duration
	if lookback < 24*time.Hour {
		lookback = 24 * time.Hour
	}

	sensor := enelxsensor.New(client, cfg.EnelxMoteDict, cfg.Organization, cfg.Site, lookback)
	emitter := dedup.New(sensor, natsSink, cfg.CacheMaxSize)

	sched := tick.New()
	sched.Every(cfg.TS.Duration, func() {
		if err := emitter.Tick(context.Background()); err != nil {
			log.Errorf("enelxpub: tick failed: %v", err)
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

	log.Print("enelxpub: graceful shutdown completed")
}
