// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the shared publisher configuration file (§6):
// the sampling period, scheduler connection details, cache sizing, and
// the wide-column / time-series store credentials. Every cmd/ entrypoint
// loads one Config and hands the relevant sections to its components.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"time"

	"github.com/ClusterCockpit/cc-backend/pkg/log"
	"github.com/ClusterCockpit/cc-backend/pkg/schema"
	"github.com/ClusterCockpit/cc-backend/pkg/sink"
)

// Config is the format of the JSON configuration file shared by the PBS,
// BCM, and energy/enelx publishers. Most fields apply to a subset of the
// binaries; a field left at its zero value is simply unused by the
// others.
type Config struct {
	// TS is the sampling period driving the tick scheduler.
	TS Duration `json:"ts"`

	// PBS connection.
	PBSHosts            []string `json:"pbs_hosts"`
	PBSHostUser          string   `json:"pbs_host_user"`
	PBSHostPassword      string   `json:"pbs_host_passw"`
	PBSHostKeyFile       string   `json:"pbs_host_key"`
	PBSTimezone          string   `json:"pbs_timezone"`
	PBSVersion           string   `json:"pbs_version"`
	PBSQselectCmd        string   `json:"pbs_qselect_cmd"`
	PBSParserTimeout     Duration `json:"pbs_parser_timeout"`
	PBSQselectCmdTimeout Duration `json:"pbs_qselect_cmd_timeout"`
	PBSQstatTargetTime   Duration `json:"pbs_qstat_cmd_target_time"`
	PBSQstatMinBatch     int      `json:"pbs_qstat_cmd_min_batch"`
	PBSQstatMaxBatch     int      `json:"pbs_qstat_cmd_max_batch"`

	// BCM connection.
	BCMShell        string `json:"bcm_shell"`
	BCMToolCmd      string `json:"bcm_tool_cmd"`
	BCMHost         string `json:"bcm_host"`
	BCMUsername     string `json:"bcm_username"`
	BCMStopSequence string `json:"bcm_stop_sequence"`

	// Fingerprint Cache sizing, shared by every worker.
	CacheMaxSize int      `json:"cache_max_size"`
	CacheTimeout Duration `json:"cache_timeout"`

	// Cassandra job table.
	CassHosts       []string `json:"cass_host"`
	CassUser        string   `json:"cass_user"`
	CassPassword    string   `json:"cass_passw"`
	CassTimeout     Duration `json:"cass_timeout"`
	CassKeyspace    string   `json:"cass_keyspace_name"`

	// Examon time-series store, consulted by the energy enricher.
	ExamonDBIP   string `json:"examon_db_ip"`
	ExamonDBPort int    `json:"examon_db_port"`
	ExamonDBUser string `json:"examon_db_user"`
	ExamonDBPwd  string `json:"examon_db_pwd"`

	NodeConfigFile string `json:"node_config_file"`
	JobEnergyUnit  string `json:"job_energy_unit"`

	// MetricsAddr, if set, serves a Prometheus /metrics endpoint with the
	// publisher's own operational counters.
	MetricsAddr string `json:"metrics_addr"`

	// EnelX vendor API credentials.
	EnelxUsername  string            `json:"enelx_username"`
	EnelxPassword  string            `json:"enelx_password"`
	EnelxDepID     string            `json:"enelx_dep_id"`
	EnelxDepToken  string            `json:"enelx_dep_token"`
	EnelxAccountID string            `json:"enelx_account_id"`
	EnelxMoteDict  map[string]string `json:"enelx_mote_dict"`
	Organization   string            `json:"organization"`
	Site           string            `json:"site"`

	Sink sink.Config `json:"sink"`
}

// Duration unmarshals from a Go duration string (e.g. "15s") so the JSON
// config can use the same notation as the rest of the ambient stack.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// Load reads and decodes the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := schema.Validate(schema.Config, bytes.NewReader(data)); err != nil {
		log.Errorf("config: schema validation failed for %s: %v", path, err)
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		log.Errorf("config: failed to parse %s: %v", path, err)
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.TS.Duration == 0 {
		cfg.TS.Duration = 10 * time.Second
	}
	if cfg.PBSParserTimeout.Duration == 0 {
		cfg.PBSParserTimeout.Duration = 60 * time.Second
	}
	if cfg.PBSQselectCmdTimeout.Duration == 0 {
		cfg.PBSQselectCmdTimeout.Duration = 30 * time.Second
	}
	if cfg.PBSQstatTargetTime.Duration == 0 {
		cfg.PBSQstatTargetTime.Duration = 15 * time.Second
	}
	if cfg.PBSQstatMinBatch == 0 {
		cfg.PBSQstatMinBatch = 25
	}
	if cfg.PBSQstatMaxBatch == 0 {
		cfg.PBSQstatMaxBatch = 500
	}
	if cfg.CacheTimeout.Duration == 0 {
		cfg.CacheTimeout.Duration = 5 * time.Minute
	}
	if cfg.CassTimeout.Duration == 0 {
		cfg.CassTimeout.Duration = 10 * time.Second
	}
}
