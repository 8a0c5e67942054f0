// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pbsdiscover

import (
	"time"

	"github.com/ClusterCockpit/cc-backend/pkg/sshexec"
)

// SSHRunner adapts pkg/sshexec.Executor to the Runner interface; the
// Ssh Executor ignores the per-call timeout argument since its own
// Config.Timeout governs the connection, matching §4.2's contract.
type SSHRunner struct {
	Executor *sshexec.Executor
}

func (r SSHRunner) Run(cmd string, _ time.Duration) (string, bool, error) {
	ok, stdout, _, err := r.Executor.Exec(cmd)
	return stdout, ok, err
}
