// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package schema

import "testing"

func TestLoadDefaultVersion(t *testing.T) {
	def, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if def.Version != DefaultVersion {
		t.Errorf("Version = %q, want %q", def.Version, DefaultVersion)
	}
	if !def.Columns["Job_Id"] {
		t.Error("expected Job_Id column")
	}
	if def.KeyspaceCQL == "" || def.TableCQL == "" {
		t.Error("expected both keyspace and table DDL to be parsed")
	}
}

func TestLoadUnknownVersion(t *testing.T) {
	if _, err := Load("999"); err == nil {
		t.Error("expected error for unsupported pbs_version")
	}
}

func TestLoad20HasExtraColumns(t *testing.T) {
	def, err := Load("20")
	if err != nil {
		t.Fatal(err)
	}
	if !def.Columns["array_id"] || !def.Columns["estimated_start_time"] {
		t.Error("expected PBS 20.x-specific columns to be parsed")
	}
	if !def.Columns["Job_Id"] {
		t.Error("expected base columns to still be present")
	}
}
