//
// Copyright 2019 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS-IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
//
// Package config decodes and validates workload files, and carries the
// handful of global constants the simulator needs as a single immutable
// record rather than as package-level mutable singletons.
package config

import (
	"encoding/json"
	"io"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// NLatencies is the width, in target-latency cycles, of the window used
	// to recompute a Process's average run-burst length.
	NLatencies = 10
	// RoundingErrorNS tolerates drift when assigning a process to a Jenks
	// bucket; it is not applied anywhere else (in particular, not at CPU
	// apportionment) -- this asymmetry is carried over unchanged from the
	// original implementation.
	RoundingErrorNS int64 = 100
	// Alpha is the smoothing factor of the historical exponential-average
	// run-burst estimator.  The windowed mean (NLatencies-based) superseded
	// it; Alpha is retained only because configuration records in this
	// lineage have always carried it.
	Alpha = 0.3
	// NanosPerMillisecond converts the workload file's millisecond fields to
	// the simulator's native nanosecond unit.
	NanosPerMillisecond = int64(1e6)
)

// ProcessSpec requests Quantity instances of Benchmark be instantiated for a
// simulation run.
type ProcessSpec struct {
	Benchmark string `json:"benchmark"`
	Quantity  int    `json:"quantity"`
}

// Workload is the decoded form of a workload JSON file.
type Workload struct {
	CPUs                  int           `json:"cpus"`
	Processes             []ProcessSpec `json:"processes"`
	InitialLatencyMillis  int64         `json:"initial_latency_millis"`
	MaxLatencyMillis      int64         `json:"max_latency_millis"`
	RebalancePeriodMillis int64         `json:"rebalance_period_millis"`
	SimTimeMillis         int64         `json:"sim_time_millis"`
	TimePackerActive      bool          `json:"time_packer_active"`
}

// Config is the fully validated, nanosecond-denominated configuration for a
// single simulation run.
type Config struct {
	CPUs               int
	Processes          []ProcessSpec
	InitialLatencyNS   int64
	MaxLatencyNS       int64
	RebalancePeriodNS  int64
	SimTimeNS          int64
	TimePackerActive   bool
}

// Decode parses and validates a workload JSON document read from r.
func Decode(r io.Reader) (*Config, error) {
	var w Workload
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed workload file: %s", err)
	}
	return fromWorkload(&w)
}

func fromWorkload(w *Workload) (*Config, error) {
	if w.CPUs <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "cpus must be positive, got %d", w.CPUs)
	}
	if len(w.Processes) == 0 {
		return nil, status.Errorf(codes.InvalidArgument, "processes must be non-empty")
	}
	for _, p := range w.Processes {
		if p.Benchmark == "" {
			return nil, status.Errorf(codes.InvalidArgument, "process spec missing benchmark name")
		}
		if p.Quantity <= 0 {
			return nil, status.Errorf(codes.InvalidArgument, "process spec %q quantity must be positive, got %d", p.Benchmark, p.Quantity)
		}
	}
	if w.InitialLatencyMillis <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "initial_latency_millis must be positive")
	}
	if w.MaxLatencyMillis <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "max_latency_millis must be positive")
	}
	if w.RebalancePeriodMillis <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "rebalance_period_millis must be positive")
	}
	if w.SimTimeMillis <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "sim_time_millis must be positive")
	}

	return &Config{
		CPUs:              w.CPUs,
		Processes:         w.Processes,
		InitialLatencyNS:  w.InitialLatencyMillis * NanosPerMillisecond,
		MaxLatencyNS:      w.MaxLatencyMillis * NanosPerMillisecond,
		RebalancePeriodNS: w.RebalancePeriodMillis * NanosPerMillisecond,
		SimTimeNS:         w.SimTimeMillis * NanosPerMillisecond,
		TimePackerActive:  w.TimePackerActive,
	}, nil
}
