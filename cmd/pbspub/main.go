// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command pbspub publishes job-accounting metrics and job-table rows
// scraped from a PBS scheduler via qselect/qstat (§4.6, §4.10, §4.11).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ClusterCockpit/cc-backend/internal/config"
	"github.com/ClusterCockpit/cc-backend/internal/energy"
	"github.com/ClusterCockpit/cc-backend/internal/jobtable"
	"github.com/ClusterCockpit/cc-backend/internal/metrics"
	"github.com/ClusterCockpit/cc-backend/internal/pbsdiscover"
	"github.com/ClusterCockpit/cc-backend/internal/tick"
	"github.com/ClusterCockpit/cc-backend/pkg/batchctl"
	"github.com/ClusterCockpit/cc-backend/pkg/fingerprint"
	"github.com/ClusterCockpit/cc-backend/pkg/log"
	"github.com/ClusterCockpit/cc-backend/pkg/metric"
	"github.com/ClusterCockpit/cc-backend/pkg/pbsjob"
	"github.com/ClusterCockpit/cc-backend/pkg/runtimeEnv"
	"github.com/ClusterCockpit/cc-backend/pkg/sanitize"
	"github.com/ClusterCockpit/cc-backend/pkg/sink"
	"github.com/ClusterCockpit/cc-backend/pkg/sshexec"
	"github.com/google/uuid"
)

// instanceID identifies this worker process in logs and metrics tags
// when several instances of the same publisher run concurrently.
var instanceID = uuid.NewString()

// pbsMetricsQueue turns every discovered job record into a job-state
// change event on the metrics stream (§4.6 step 5, §3 "Metric record").
type pbsMetricsQueue struct {
	sink sink.Sink
	path sanitize.Path
}

func (q *pbsMetricsQueue) Enqueue(j pbsjob.Job) {
	tags := metric.NewTagSet()
	tags.Set("org", "pbs")
	tags.Set("cluster", j.Queue)
	tags.Set("node", "scheduler")
	tags.Set("plugin", "pbspub")
	tags.Set("instance", instanceID)
	tags.Set("chnl", string(j.JobState))
	tags.Set("job_id", j.JobID)

	r := metric.New("job_state", string(j.JobState), time.Now(), tags, q.path)
	if err := q.sink.Publish(context.Background(), r); err != nil {
		log.Errorf("pbspub: publishing job_state for %s: %v", j.JobID, err)
	}
}

// channelQueue adapts a Go channel to pbsdiscover.Queue.
type channelQueue struct{ ch chan<- pbsjob.Job }

func (q channelQueue) Enqueue(j pbsjob.Job) { q.ch <- j }

// fanoutQueue enqueues onto every member queue, used to drive the
// Job-Table Writer and the job-energy enricher off the same Finished
// stream without either depending on the other (§4.6, §4.11).
type fanoutQueue []pbsdiscover.Queue

func (qs fanoutQueue) Enqueue(j pbsjob.Job) {
	for _, q := range qs {
		q.Enqueue(j)
	}
}

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
	if len(cfg.PBSHosts) == 0 {
		log.Fatal("pbspub: pbs_hosts must name at least one scheduler host")
	}
	if cfg.MetricsAddr != "" {
		metrics.Serve(cfg.MetricsAddr)
	}
	log.Infof("pbspub: starting instance %s", instanceID)

	natsSink, err := sink.NewNatsSink(&cfg.Sink)
	if err != nil {
		log.Fatalf("connecting to sink: %s", err.Error())
	}
	defer natsSink.Close()

	executor := sshexec.New(sshexec.Config{
		Host:     cfg.PBSHosts[0],
		Username: cfg.PBSHostUser,
		Password: cfg.PBSHostPassword,
		KeyFile:  cfg.PBSHostKeyFile,
		Timeout:  cfg.PBSQselectCmdTimeout.Duration,
	})
	runner := pbsdiscover.SSHRunner{Executor: executor}

	stateCache := fingerprint.NewStateCache(cfg.CacheTimeout.Duration, cfg.CacheMaxSize)

	ctl := batchctl.New()
	ctl.MinBatch = cfg.PBSQstatMinBatch
	ctl.MaxBatch = cfg.PBSQstatMaxBatch
	ctl.Target = cfg.PBSQstatTargetTime.Duration
	ctl.MaxTimeout = cfg.PBSParserTimeout.Duration

	qselectCmdFor := func(s fingerprint.JobState) string {
		base := cfg.PBSQselectCmd
		if base == "" {
			base = "qselect"
		}
		return fmt.Sprintf("timeout %d %s -s %s", int(cfg.PBSQselectCmdTimeout.Duration.Seconds()), base, string(s))
	}

	timezone, err := time.LoadLocation(cfg.PBSTimezone)
	if err != nil {
		log.Warnf("pbspub: unknown pbs_timezone %q, defaulting to UTC: %v", cfg.PBSTimezone, err)
		timezone = time.UTC
	}

	writer, err := jobtable.NewWriter(jobtable.Config{
		Hosts:      cfg.CassHosts,
		Keyspace:   cfg.CassKeyspace,
		Table:      "jobs",
		Username:   cfg.CassUser,
		Password:   cfg.CassPassword,
		Timeout:    cfg.CassTimeout.Duration,
		Timezone:   timezone,
		PBSVersion: cfg.PBSVersion,
		DedupCache: fingerprint.NewCache(cfg.CacheTimeout.Duration, cfg.CacheMaxSize),
	})
	if err != nil {
		log.Fatalf("connecting to job table: %s", err.Error())
	}
	defer writer.Close()

	durableQueue := make(chan pbsjob.Job, 256)
	go writer.Consume(durableQueue)

	energyQueue := make(chan pbsjob.Job, 256)
	go runEnergyWorker(cfg, timezone, writer, energyQueue)

	metricsQueue := &pbsMetricsQueue{sink: natsSink, path: sanitize.SchedulerPath}
	durable := fanoutQueue{channelQueue{ch: durableQueue}, channelQueue{ch: energyQueue}}

	fetcher := pbsdiscover.New(runner, stateCache, ctl, qselectCmdFor, metricsQueue, durable)

	sched := tick.New()
	sched.Every(cfg.TS.Duration, fetcher.Tick)
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
		close(durableQueue)
		close(energyQueue)
	}()
	wg.Wait()

	log.Print("pbspub: graceful shutdown completed")
}

// runEnergyWorker consumes Finished jobs and, if a node config file was
// supplied, computes and persists their energy (§4.11). Disabled
// deployments (no node_config_file) just drain the channel so the
// fanout queue never blocks.
func runEnergyWorker(cfg *config.Config, timezone *time.Location, writer *jobtable.Writer, jobs <-chan pbsjob.Job) {
	if cfg.NodeConfigFile == "" {
		for range jobs {
		}
		return
	}

	nodeConfig, err := energy.LoadNodeConfig(cfg.NodeConfigFile)
	if err != nil {
		log.Errorf("pbspub: loading node config %s: %v, energy enrichment disabled", cfg.NodeConfigFile, err)
		for range jobs {
		}
		return
	}

	store := energy.NewExamonStore(energy.ExamonConfig{
		URL:   fmt.Sprintf("http://%s:%d", cfg.ExamonDBIP, cfg.ExamonDBPort),
		Token: cfg.ExamonDBPwd,
	})
	defer store.Close()

	enricher, err := energy.NewEnricher(store, nodeConfig)
	if err != nil {
		log.Errorf("pbspub: compiling node power expressions: %v, energy enrichment disabled", err)
		for range jobs {
		}
		return
	}

	rowWriter := energy.NewRowWriter(writer.Session(), "jobs")

	unit := energy.Joules
	if cfg.JobEnergyUnit == string(energy.WattHours) {
		unit = energy.WattHours
	}

	for job := range jobs {
		window, ok := jobWindow(job, timezone)
		if !ok {
			continue
		}

		result, err := enricher.Enrich(window, unit)
		if err != nil {
			log.Errorf("pbspub: enriching job %s: %v", job.JobID, err)
			continue
		}
		if err := rowWriter.Write(window, result); err != nil {
			log.Errorf("pbspub: writing energy for job %s: %v", job.JobID, err)
		}
	}
}

// jobWindow extracts the node list and the job's time window from a
// Finished job record, returning ok=false if either is unavailable.
func jobWindow(job pbsjob.Job, timezone *time.Location) (energy.JobWindow, bool) {
	raw, ok := job.ResourceListField("exec_host")
	if !ok {
		return energy.JobWindow{}, false
	}
	var execHost string
	if err := json.Unmarshal(raw, &execHost); err != nil {
		return energy.JobWindow{}, false
	}

	nodes := execHostNodes(execHost)
	if nodes == "" {
		return energy.JobWindow{}, false
	}

	stime := job.Stime
	if stime == "" {
		stime = job.Mtime
	}
	if stime == "" {
		return energy.JobWindow{}, false
	}
	start, err := jobtable.ParsePBSTime(stime, timezone)
	if err != nil {
		return energy.JobWindow{}, false
	}

	end := time.Now().UTC()
	if job.Obittime != "" {
		if t, err := jobtable.ParsePBSTime(job.Obittime, timezone); err == nil {
			end = t
		}
	}

	return energy.JobWindow{JobID: job.JobID, Nodes: nodes, Start: start, End: end}, true
}

// execHostNodes converts PBS exec_host notation ("node01/0+node02/1")
// into the comma-separated node list noderange.Expand accepts directly.
func execHostNodes(execHost string) string {
	parts := strings.Split(execHost, "+")
	nodes := make([]string, 0, len(parts))
	for _, p := range parts {
		name := strings.SplitN(p, "/", 2)[0]
		if name != "" {
			nodes = append(nodes, name)
		}
	}
	return strings.Join(nodes, ",")
}
