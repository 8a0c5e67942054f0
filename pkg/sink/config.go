// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sink

import (
	"bytes"
	"encoding/json"

	"github.com/ClusterCockpit/cc-backend/pkg/log"
)

// Config holds the configuration for connecting to the downstream
// message-bus sink (§6 "Wire format downstream").
type Config struct {
	Address       string `json:"address"`          // e.g. "nats://localhost:4222"
	Username      string `json:"username"`         // optional
	Password      string `json:"password"`         // optional
	CredsFilePath string `json:"creds-file-path"`  // optional, NATS credentials file
	Topic         string `json:"mqtt_topic"`       // MQTT_TOPIC config key, used as the subject prefix
}

// Keys holds the global sink configuration loaded via Init.
var Keys Config

const ConfigSchema = `{
    "type": "object",
    "description": "Configuration for the downstream metric sink.",
    "properties": {
        "address": {
            "description": "Address of the message bus server (e.g., 'nats://localhost:4222').",
            "type": "string"
        },
        "username": { "type": "string" },
        "password": { "type": "string" },
        "creds-file-path": { "type": "string" },
        "mqtt_topic": { "type": "string" }
    },
    "required": ["address"]
}`

// Init initializes the global Keys configuration from JSON.
func Init(rawConfig json.RawMessage) error {
	var err error

	if rawConfig != nil {
		dec := json.NewDecoder(bytes.NewReader(rawConfig))
		dec.DisallowUnknownFields()
		if err = dec.Decode(&Keys); err != nil {
			log.Errorf("Error while initializing sink client: %s", err.Error())
		}
	}

	return err
}
