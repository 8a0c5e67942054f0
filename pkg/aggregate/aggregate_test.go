// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregate

import (
	"encoding/json"
	"testing"

	"github.com/ClusterCockpit/cc-backend/pkg/nodesnap"
)

func rawResources(t *testing.T, m map[string]any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestAggregateNodesComputesEligibleAndUtilisation(t *testing.T) {
	nodes := []nodesnap.Node{
		{
			Name: "n1", State: nodesnap.StateJobBusy, Qlist: "compute",
			ResourcesAvailable: rawResources(t, map[string]any{"ncpus": 64, "mem": 1024, "ngpus": 4}),
			ResourcesAssigned:  rawResources(t, map[string]any{"ncpus": 32, "mem": 512, "ngpus": 2}),
		},
		{
			Name: "n2", State: nodesnap.StateOffline, Qlist: "compute",
			ResourcesAvailable: rawResources(t, map[string]any{"ncpus": 64, "mem": 1024, "ngpus": 4}),
			ResourcesAssigned:  rawResources(t, map[string]any{"ncpus": 0, "mem": 0, "ngpus": 0}),
		},
	}

	groups := AggregateNodes(nodes)
	g, ok := groups["compute"]
	if !ok {
		t.Fatal("expected 'compute' group")
	}

	if g.CPU.Config != 128 {
		t.Errorf("cpus_config = %v, want 128", g.CPU.Config)
	}
	if g.CPU.Down != 64 {
		t.Errorf("cpus_down = %v, want 64", g.CPU.Down)
	}
	if g.CPU.Eligible != 64 {
		t.Errorf("cpus_eligible = %v, want 64", g.CPU.Eligible)
	}
	if g.Utilisation.CPUUtil != 50 {
		t.Errorf("cpu_util = %v, want 50", g.Utilisation.CPUUtil)
	}
	if g.Nodes.TotalNodesDown != 1 || g.Nodes.TotalNodesEligible != 1 {
		t.Errorf("node totals = %+v", g.Nodes)
	}
}

func TestAggregateNodesCPUMemIdleUsesConfigMinusAlloc(t *testing.T) {
	nodes := []nodesnap.Node{
		{Name: "n1", State: nodesnap.StateFree, Qlist: "compute",
			ResourcesAvailable: rawResources(t, map[string]any{"ncpus": 48, "mem": 1024}),
			ResourcesAssigned:  rawResources(t, map[string]any{"ncpus": 0, "mem": 0}),
		},
		{Name: "n2", State: nodesnap.StateFree, Qlist: "compute",
			ResourcesAvailable: rawResources(t, map[string]any{"ncpus": 48, "mem": 1024}),
			ResourcesAssigned:  rawResources(t, map[string]any{"ncpus": 0, "mem": 0}),
		},
		{Name: "n3", State: nodesnap.StateFree, Qlist: "compute",
			ResourcesAvailable: rawResources(t, map[string]any{"ncpus": 48, "mem": 1024}),
			ResourcesAssigned:  rawResources(t, map[string]any{"ncpus": 0, "mem": 0}),
		},
	}

	groups := AggregateNodes(nodes)
	g, ok := groups["compute"]
	if !ok {
		t.Fatal("expected 'compute' group")
	}

	// All three nodes are fully idle; cpus_idle must be the full
	// configured total (Config - Alloc), not Eligible - Alloc.
	if g.CPU.Idle != 144 {
		t.Errorf("cpus_idle = %v, want 144", g.CPU.Idle)
	}
	if g.Memory.Idle != 3072 {
		t.Errorf("mem_idle = %v, want 3072", g.Memory.Idle)
	}
}

func TestAggregateNodesAllocAccumulatesForDownNodesToo(t *testing.T) {
	nodes := []nodesnap.Node{
		{Name: "n1", State: nodesnap.StateDown, Qlist: "compute",
			ResourcesAvailable: rawResources(t, map[string]any{"ncpus": 48, "ngpus": 2}),
			ResourcesAssigned:  rawResources(t, map[string]any{"ncpus": 16, "ngpus": 1}),
		},
	}

	groups := AggregateNodes(nodes)
	g := groups["compute"]

	if g.CPU.Alloc != 16 {
		t.Errorf("cpus_alloc = %v, want 16 (alloc must accumulate even for down nodes)", g.CPU.Alloc)
	}
	if g.GPU.Alloc != 1 {
		t.Errorf("gpus_alloc = %v, want 1 (alloc must accumulate even for down nodes)", g.GPU.Alloc)
	}
}

func TestAggregateNodesDivisionByZeroYieldsZero(t *testing.T) {
	nodes := []nodesnap.Node{
		{Name: "n1", State: nodesnap.StateDown, Qlist: "gpu",
			ResourcesAvailable: rawResources(t, map[string]any{"ncpus": 32}),
		},
	}
	groups := AggregateNodes(nodes)
	g := groups["gpu"]
	if g.Utilisation.CPUUtil != 0 {
		t.Errorf("expected 0 utilisation when eligible is 0, got %v", g.Utilisation.CPUUtil)
	}
}
