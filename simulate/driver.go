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
// Package simulate drives a single simulation run end to end: building
// processes from a config.Config, distributing them across CPUs, advancing
// every CPU concurrently one rebalance period at a time, and invoking the
// Migrator between slices when time-packing is active.
package simulate

import (
	"context"
	"fmt"

	log "github.com/golang/glog"
	"github.com/golang/sync/errgroup"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mgouzenko/timepack/config"
	"github.com/mgouzenko/timepack/cpu"
	"github.com/mgouzenko/timepack/history"
	"github.com/mgouzenko/timepack/migrate"
	"github.com/mgouzenko/timepack/process"
	"github.com/mgouzenko/timepack/report"
	"github.com/mgouzenko/timepack/sched"
	"github.com/mgouzenko/timepack/tracecache"
)

// Run executes one complete simulation described by cfg, reading benchmark
// traces through cache, and returns the resulting report.
//
// Processes are distributed round-robin across CPUs in the order the
// workload lists them, naming each instance "<benchmark>-<index>". Time
// advances in slices of cfg.RebalancePeriodNS; within a slice every CPU's
// Scheduler.Run is invoked concurrently via errgroup.Group, mirroring
// analysis.Collection.ThreadStats's fan-out/fan-in pattern, and the driver
// barriers on the group before invoking the Migrator -- the one global
// synchronization point this simulation has.
func Run(ctx context.Context, cfg *config.Config, cache *tracecache.Cache) (*report.Report, error) {
	recorder := history.NewRecorder()

	procs, err := buildProcesses(cfg, cache)
	if err != nil {
		return nil, err
	}

	cpus := make([]*cpu.CPU, cfg.CPUs)
	for i := 0; i < cfg.CPUs; i++ {
		var owned []*process.Process
		for _, p := range procs {
			if p.TargetCPU == i {
				owned = append(owned, p)
			}
		}
		s := sched.New(i, owned, cfg.InitialLatencyNS)
		s.SetRecorder(recorder.ForCPU(i))
		cpus[i] = cpu.New(i, s)
	}
	registry := cpu.NewRegistry(cpus)

	migrator := migrate.New(registry, cfg.MaxLatencyNS)

	runID := uuid.New().String()
	log.Infof("simulate: starting run %s with %d cpus, %d processes, time_packing=%t", runID, cfg.CPUs, len(procs), cfg.TimePackerActive)

	for anyUnfinished(cpus) {
		if err := ctx.Err(); err != nil {
			return nil, status.Errorf(codes.Canceled, "simulation %s canceled: %s", runID, err)
		}

		eg, _ := errgroup.WithContext(ctx)
		for _, c := range cpus {
			c := c
			if !c.HasUnfinishedProcs() {
				continue
			}
			eg.Go(func() error {
				return c.Run(cfg.RebalancePeriodNS)
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, status.Errorf(codes.Internal, "simulation %s: %s", runID, err)
		}

		if cfg.TimePackerActive {
			if err := migrator.Rebalance(); err != nil {
				return nil, status.Errorf(codes.Internal, "simulation %s: rebalance: %s", runID, err)
			}
		}
	}

	log.Infof("simulate: run %s finished", runID)

	return report.Build(runID, procs, migrator.MeanLatencyNS()), nil
}

func anyUnfinished(cpus []*cpu.CPU) bool {
	for _, c := range cpus {
		if c.HasUnfinishedProcs() {
			return true
		}
	}
	return false
}

func buildProcesses(cfg *config.Config, cache *tracecache.Cache) ([]*process.Process, error) {
	var procs []*process.Process
	nextCPU := 0
	for _, spec := range cfg.Processes {
		trc, err := cache.Get(spec.Benchmark, cfg.SimTimeNS)
		if err != nil {
			return nil, err
		}
		for i := 0; i < spec.Quantity; i++ {
			name := fmt.Sprintf("%s-%d", spec.Benchmark, i)
			p, err := process.New(name, spec.Benchmark, trc, nextCPU, cfg.InitialLatencyNS)
			if err != nil {
				return nil, err
			}
			procs = append(procs, p)
			nextCPU = (nextCPU + 1) % cfg.CPUs
		}
	}
	return procs, nil
}
