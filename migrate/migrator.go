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
// Package migrate implements the time-packing rebalancer: the global,
// periodic pass that clusters processes by average run-burst length,
// allots CPUs to each cluster proportional to its load, packs processes
// onto the CPUs of their cluster, and retunes each CPU's target latency to
// match the workload it now hosts.
package migrate

import (
	"sort"

	log "github.com/golang/glog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mgouzenko/timepack/config"
	"github.com/mgouzenko/timepack/cpu"
	"github.com/mgouzenko/timepack/internal/jenks"
	"github.com/mgouzenko/timepack/process"
)

// Migrator runs the time-packing rebalance pass across every CPU in a
// cpu.Registry. It must only be invoked when every scheduler in the
// registry is quiescent -- the simulation driver guarantees this by
// barriering an errgroup.Group of per-CPU run() calls before calling
// Rebalance.
type Migrator struct {
	registry     *cpu.Registry
	maxLatencyNS int64

	meanLatencyHistoryNS []int64
}

// New constructs a Migrator bound to registry, capping retuned target
// latencies at maxLatencyNS.
func New(registry *cpu.Registry, maxLatencyNS int64) *Migrator {
	return &Migrator{registry: registry, maxLatencyNS: maxLatencyNS}
}

// MeanLatencyNS returns the per-rebalance mean of every CPU's retuned
// target latency, one entry per completed Rebalance call. Exposed for
// report.Report.MeanLatencyNS when time-packing is active.
func (m *Migrator) MeanLatencyNS() []int64 {
	return append([]int64(nil), m.meanLatencyHistoryNS...)
}

// Rebalance gathers every unfinished process across all registered CPUs,
// clusters them by average run-burst length, allots CPUs to clusters by
// load, migrates processes to their newly-assigned CPU, and retunes each
// CPU's target latency. It is a no-op if no unfinished processes remain.
func (m *Migrator) Rebalance() error {
	cpus := m.registry.All()
	if len(cpus) == 0 {
		return status.Errorf(codes.InvalidArgument, "migrator has no registered cpus")
	}

	procs := gather(cpus)
	if len(procs) == 0 {
		return nil
	}

	numBuckets := len(cpus) / 2
	if numBuckets < 1 {
		numBuckets = 1
	}
	k := numBuckets
	if k > len(procs) {
		k = len(procs)
	}

	runtimes := make([]float64, len(procs))
	for i, p := range procs {
		runtimes[i] = float64(p.AverageRuntimeNS)
	}
	breaks := jenks.Breaks(runtimes, k)
	if len(breaks) < 2 {
		return status.Errorf(codes.Internal, "jenks.Breaks returned %d boundaries for %d processes, want at least 2", len(breaks), len(procs))
	}

	buckets := make([]*bucket, 0, len(breaks)-1)
	for _, upper := range breaks[1:] {
		buckets = append(buckets, newBucket(int64(upper)))
	}
	assignToBuckets(buckets, procs)

	targetAllotted := len(procs)
	if len(cpus) < targetAllotted {
		targetAllotted = len(cpus)
	}
	if err := allotCPUs(buckets, targetAllotted, len(cpus)); err != nil {
		return err
	}

	bindCPUs(buckets, cpus)

	cpuLoad := make(map[int]float64, len(cpus))
	cpuDesiredLatencyNS := make(map[int]int64, len(cpus))
	for _, b := range buckets {
		if len(b.procs) == 0 {
			continue
		}
		b.packProcesses(cpuLoad, cpuDesiredLatencyNS)
	}

	for _, c := range cpus {
		if err := c.Scheduler().ApplyMigrations(); err != nil {
			return err
		}
	}

	var latencySum int64
	for _, c := range cpus {
		newLatency := cpuDesiredLatencyNS[c.ID()]
		if newLatency <= 0 {
			// No process landed on this CPU this round; leave its latency
			// as-is rather than collapsing it to zero.
			newLatency = c.Scheduler().TargetLatencyNS()
		} else if newLatency > m.maxLatencyNS {
			newLatency = m.maxLatencyNS
		}
		c.Scheduler().SetTargetLatencyNS(newLatency)
		latencySum += newLatency
	}
	meanLatency := latencySum / int64(len(cpus))
	m.meanLatencyHistoryNS = append(m.meanLatencyHistoryNS, meanLatency)
	log.V(1).Infof("migrator: rebalanced %d processes across %d buckets, mean target latency now %dns", len(procs), len(buckets), meanLatency)

	return nil
}

func gather(cpus []*cpu.CPU) []*process.Process {
	var procs []*process.Process
	for _, c := range cpus {
		procs = append(procs, c.Scheduler().Snapshot()...)
	}
	return procs
}

// assignToBuckets assigns each process to the first bucket (in ascending
// upper-bound order) whose upper bound is at least the process's average
// runtime minus config.RoundingErrorNS; a process above every such bound
// goes to the last bucket.
func assignToBuckets(buckets []*bucket, procs []*process.Process) {
	for _, p := range procs {
		avg := p.AverageRuntimeNS
		assigned := false
		for _, b := range buckets {
			if b.upperBoundNS >= avg-config.RoundingErrorNS {
				b.addProcess(p)
				assigned = true
				break
			}
		}
		if !assigned {
			buckets[len(buckets)-1].addProcess(p)
		}
	}
}

// allotCPUs distributes targetAllotted CPUs across buckets in proportion
// to each bucket's share of the load (scaled by numCPUs), giving every non-empty bucket at
// least one CPU before handing out the remainder by rounded load share,
// and finally topping off any still-unassigned CPUs onto the
// heaviest-loaded buckets.
func allotCPUs(buckets []*bucket, targetAllotted, numCPUs int) error {
	var totalLoad float64
	cpusAllotted := 0
	for _, b := range buckets {
		totalLoad += b.load
		if len(b.procs) > 0 {
			b.numCPUs = 1
			cpusAllotted++
		}
	}

	cpusRemaining := targetAllotted - cpusAllotted
	for _, b := range buckets {
		if len(b.procs) == 0 {
			continue
		}
		if cpusRemaining == 0 {
			break
		}
		loadWeight := b.load / totalLoad
		cpusDeserved := int(loadWeight*float64(numCPUs) + 0.5)
		delta := cpusDeserved - b.numCPUs
		if delta < 0 {
			delta = 0
		}
		granted := delta
		if granted > cpusRemaining {
			granted = cpusRemaining
		}
		if max := len(b.procs) - 1; granted > max {
			granted = max
		}
		b.numCPUs += granted
		cpusAllotted += granted
		cpusRemaining -= granted
	}

	cpusRemaining = targetAllotted - cpusAllotted
	byLoadDesc := append([]*bucket(nil), buckets...)
	sort.Slice(byLoadDesc, func(i, j int) bool { return byLoadDesc[i].load > byLoadDesc[j].load })
	for _, b := range byLoadDesc {
		if cpusRemaining == 0 {
			break
		}
		if len(b.procs) > b.numCPUs {
			b.numCPUs++
			cpusRemaining--
		}
	}

	if cpusRemaining != 0 {
		return status.Errorf(codes.Internal, "migrator: cpu allotment left %d cpus unassigned (target %d)", cpusRemaining, targetAllotted)
	}
	return nil
}

func bindCPUs(buckets []*bucket, cpus []*cpu.CPU) {
	idx := 0
	for _, b := range buckets {
		for i := 0; i < b.numCPUs; i++ {
			b.claimCPU(cpus[idx].ID())
			idx++
		}
	}
}
