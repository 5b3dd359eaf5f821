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
// Package process implements the state-machine driver for a single traced
// benchmark: it steps through a trace.Trace, accumulating the virtual-time
// and run-burst statistics the scheduler and migrator need.
package process

import (
	"math"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mgouzenko/timepack/config"
	"github.com/mgouzenko/timepack/trace"
)

// RuntimePoint is a sample of a completed run-burst: BurstNS nanoseconds of
// running time that ended at WallClockNS nanoseconds into the process's
// life.  Process.AverageRuntimeNS is a windowed mean over these samples.
type RuntimePoint struct {
	WallClockNS int64
	BurstNS     int64
}

// Process drives a single trace.Trace and is the scheduler's unit of work.
// A Process is owned by at most one sched.Scheduler at a time; ownership
// transfers are mediated entirely through TargetCPU, an integer handle
// rather than a pointer back into a scheduler -- this keeps process free of
// any dependency on sched or cpu (see DESIGN.md).
type Process struct {
	Name      string
	BenchName string

	trc    *trace.Trace
	cursor int

	currState trace.State

	VRuntimeNS       int64
	TotalRuntimeNS   int64
	TotalSleepTimeNS int64
	ContextSwitches  int

	currRuntimeNS    int64
	AverageRuntimeNS int64
	runtimePoints    []RuntimePoint

	// TargetCPU is the CPU ID this process should be (or remain) scheduled
	// on.  Set at construction to the process's initial CPU, and thereafter
	// only by the Migrator.
	TargetCPU int

	finished bool

	// TargetLatencyNS is copied from the hosting scheduler and bounds the
	// averaging window used to recompute AverageRuntimeNS.
	TargetLatencyNS int64
}

// New constructs a Process named name (for the given benchName, used to
// group results) driven by trc, initially owned by the CPU identified by
// initialCPU.
func New(name, benchName string, trc *trace.Trace, initialCPU int, targetLatencyNS int64) (*Process, error) {
	if trc.Len() == 0 {
		return nil, status.Errorf(codes.InvalidArgument, "process %q has an empty trace", name)
	}
	p := &Process{
		Name:            name,
		BenchName:       benchName,
		trc:             trc,
		TargetCPU:       initialCPU,
		TargetLatencyNS: targetLatencyNS,
		currState:       trc.At(0),
	}
	return p, nil
}

// IsRunning reports whether the process is unfinished and currently in a
// RUNNING state.
func (p *Process) IsRunning() bool {
	return !p.finished && p.currState.Kind == trace.Running
}

// IsSleeping reports whether the process is unfinished and currently in a
// SLEEPING state.
func (p *Process) IsSleeping() bool {
	return !p.finished && p.currState.Kind == trace.Sleeping
}

// Finished reports whether the process has exhausted its trace.
func (p *Process) Finished() bool {
	return p.finished
}

// TimeToNextRunNS returns how long, in nanoseconds, until this process would
// next be runnable: 0 if it's already RUNNING, the remaining SLEEPING
// duration if it's SLEEPING, or math.MaxInt64 if it's finished.
func (p *Process) TimeToNextRunNS() int64 {
	switch {
	case p.finished:
		return math.MaxInt64
	case p.currState.Kind == trace.Running:
		return 0
	default:
		return p.currState.DurationNS
	}
}

// Run lets the process run for up to tNS nanoseconds, returning how long it
// actually ran -- less than tNS if the current RUNNING burst ends first.
// Run requires the process to currently be RUNNING and tNS to be positive;
// violating either is a programming error.
func (p *Process) Run(tNS int64) (int64, error) {
	if p.currState.Kind != trace.Running {
		return 0, status.Errorf(codes.Internal, "Run called on process %q that is not RUNNING", p.Name)
	}
	if tNS <= 0 {
		return 0, status.Errorf(codes.Internal, "Run called on process %q with non-positive budget %d", p.Name, tNS)
	}

	ran := tNS
	if p.currState.DurationNS < ran {
		ran = p.currState.DurationNS
	}

	p.currState.DurationNS -= ran
	p.currRuntimeNS += ran
	p.VRuntimeNS += ran
	p.TotalRuntimeNS += ran

	// If this burst has already run longer than our estimate of its average
	// length, refresh the estimate now rather than waiting for the burst to
	// end -- processes that never sleep would otherwise never update it.
	if p.currRuntimeNS > p.AverageRuntimeNS {
		p.AverageRuntimeNS = p.calcAverageRuntimeNS()
	}

	if err := p.adjustState(); err != nil {
		return 0, err
	}

	return ran, nil
}

// Sleep lets the process sleep for up to tNS nanoseconds.  It is a no-op if
// the process is not currently SLEEPING.
func (p *Process) Sleep(tNS int64) error {
	if p.currState.Kind != trace.Sleeping {
		return nil
	}
	if tNS <= 0 {
		return status.Errorf(codes.Internal, "Sleep called on process %q with non-positive budget %d", p.Name, tNS)
	}

	slept := tNS
	if p.currState.DurationNS < slept {
		slept = p.currState.DurationNS
	}

	p.currState.DurationNS -= slept
	p.TotalSleepTimeNS += slept

	return p.adjustState()
}

func (p *Process) adjustState() error {
	if p.currState.DurationNS == 0 {
		return p.goToNextState()
	}
	if p.currState.DurationNS < 0 {
		return status.Errorf(codes.Internal, "process %q: state duration went negative", p.Name)
	}
	return nil
}

func (p *Process) goToNextState() error {
	wasRunning := p.currState.Kind == trace.Running
	p.cursor++
	if p.cursor >= p.trc.Len() {
		p.finished = true
		return nil
	}
	p.currState = p.trc.At(p.cursor)

	if wasRunning && p.currState.Kind == trace.Sleeping {
		// The burst that just ended is final now: record it and fold it
		// into the windowed average before resetting the burst accumulator.
		wallClockNS := p.TotalRuntimeNS + p.TotalSleepTimeNS
		p.runtimePoints = append(p.runtimePoints, RuntimePoint{WallClockNS: wallClockNS, BurstNS: p.currRuntimeNS})
		p.AverageRuntimeNS = p.calcAverageRuntimeNS()
		p.currRuntimeNS = 0
	}
	return nil
}

// calcAverageRuntimeNS returns the arithmetic mean of the run-burst lengths
// recorded within the last config.NLatencies target-latency cycles, plus the
// in-progress burst.
func (p *Process) calcAverageRuntimeNS() int64 {
	wallClockNS := p.TotalRuntimeNS + p.TotalSleepTimeNS
	window := int64(config.NLatencies) * p.TargetLatencyNS

	var sum, count int64
	for _, pt := range p.runtimePoints {
		if window <= 0 || wallClockNS-pt.WallClockNS < window {
			sum += pt.BurstNS
			count++
		}
	}
	sum += p.currRuntimeNS
	count++

	return sum / count
}

// GetLoad returns the fraction of this process's life spent running, in
// [0, 1].  It is undefined (and returns 0) before the process has
// accumulated any simulated time.
func (p *Process) GetLoad() float64 {
	total := p.TotalRuntimeNS + p.TotalSleepTimeNS
	if total == 0 {
		return 0
	}
	return float64(p.TotalRuntimeNS) / float64(total)
}

// SetTargetLatencyNS updates the averaging window used by
// calcAverageRuntimeNS; called by the hosting scheduler whenever its own
// target latency is retuned.
func (p *Process) SetTargetLatencyNS(ns int64) {
	p.TargetLatencyNS = ns
}
