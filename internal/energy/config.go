// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package energy

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/ClusterCockpit/cc-backend/pkg/schema"
)

type rawNodeConfig struct {
	PowerMetrics []string `json:"power_metrics"`
	TotalPower   string   `json:"total_power"`
}

// LoadNodeConfig reads the per-node power-metric configuration file named
// by the shared config's node_config_file setting.
func LoadNodeConfig(path string) (map[string]NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := schema.Validate(schema.NodeCfg, bytes.NewReader(data)); err != nil {
		return nil, err
	}

	var raw map[string]rawNodeConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	out := make(map[string]NodeConfig, len(raw))
	for node, r := range raw {
		out[node] = NodeConfig{PowerMetrics: r.PowerMetrics, TotalPower: r.TotalPower}
	}
	return out, nil
}
