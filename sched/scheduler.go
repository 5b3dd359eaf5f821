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
// Package sched implements a CFS-style, single-CPU scheduling simulator: a
// runqueue of runnable processes ordered by virtual runtime, a sleeping set,
// and the timeslice/vruntime bookkeeping that gives every runnable process a
// fair share of a target latency window.
package sched

import (
	"math"

	log "github.com/golang/glog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mgouzenko/timepack/process"
)

// Recorder receives the run/sleep spans a Scheduler completes, so that a
// caller can later answer "what was running on this CPU at time t" queries.
// Implemented by history.Recorder; kept as an interface here so this package
// never depends on history, avoiding a cyclic import between the two.
type Recorder interface {
	RecordRunning(name string, startNS, endNS int64)
}

// Registry resolves a CPU ID to the Scheduler that owns it, so that a
// Scheduler can hand a migrating process directly to its destination. It is
// satisfied by a simple map the simulation driver builds once all CPUs
// exist (see cpu.Registry) -- this keeps Process and Scheduler free of any
// pointer back to a concrete CPU type.
type Registry interface {
	SchedulerByCPU(id int) *Scheduler
}

// Scheduler is the per-CPU CFS simulator.
type Scheduler struct {
	cpuID    int
	registry Registry
	recorder Recorder

	owned       []*process.Process
	waiting     *waitingQueue
	sleeping    []*process.Process
	curr        *process.Process
	currSinceNS int64

	targetLatencyNS int64
	minVRuntimeNS   int64
	residualTimeNS  int64
	clockNS         int64
}

// New constructs a Scheduler for the CPU identified by cpuID, initially
// owning procs, with the given starting target latency.
func New(cpuID int, procs []*process.Process, targetLatencyNS int64) *Scheduler {
	s := &Scheduler{
		cpuID:           cpuID,
		waiting:         newWaitingQueue(),
		targetLatencyNS: targetLatencyNS,
	}
	for _, p := range procs {
		p.SetTargetLatencyNS(targetLatencyNS)
		s.owned = append(s.owned, p)
		s.waiting.push(p)
	}
	return s
}

// SetRegistry wires in the cross-CPU lookup used to hand off migrants.
func (s *Scheduler) SetRegistry(r Registry) { s.registry = r }

// SetRecorder wires in the (optional) span recorder used for history
// queries. A nil recorder disables recording.
func (s *Scheduler) SetRecorder(r Recorder) { s.recorder = r }

// CPUID returns the ID of the CPU this scheduler serves.
func (s *Scheduler) CPUID() int { return s.cpuID }

// TargetLatencyNS returns the scheduler's current target latency.
func (s *Scheduler) TargetLatencyNS() int64 { return s.targetLatencyNS }

// SetTargetLatencyNS retunes the scheduler's target latency, propagating the
// new value to every currently-owned process so their averaging windows
// (process.Process.calcAverageRuntimeNS) track the CPU they're actually on.
func (s *Scheduler) SetTargetLatencyNS(ns int64) {
	s.targetLatencyNS = ns
	for _, p := range s.owned {
		p.SetTargetLatencyNS(ns)
	}
}

// HasUnfinishedProcs reports whether any process owned by this scheduler has
// not yet exhausted its trace.
func (s *Scheduler) HasUnfinishedProcs() bool {
	for _, p := range s.owned {
		if !p.Finished() {
			return true
		}
	}
	return false
}

// Snapshot returns every unfinished process currently owned by this
// scheduler -- waiting, sleeping, or current -- for the Migrator to gather.
func (s *Scheduler) Snapshot() []*process.Process {
	var procs []*process.Process
	for _, p := range s.owned {
		if !p.Finished() {
			procs = append(procs, p)
		}
	}
	return procs
}

// Run consumes up to budgetNS of simulated time across this scheduler's
// owned processes, honoring CFS-style fairness: each slice goes to the
// lowest-vruntime waiting process, the running process yields to that
// process after every slice whenever one is waiting, and the slice shrinks
// as more processes wait. It returns when the budget is exhausted (carrying
// any unspent time into residualTimeNS for the next call) or when every
// owned process has finished. Calling Run on a scheduler that owns no
// processes is an error.
func (s *Scheduler) Run(budgetNS int64) error {
	if len(s.owned) == 0 {
		return status.Errorf(codes.Internal, "cpu %d: Run called on a scheduler with no processes", s.cpuID)
	}
	targetSimTime := budgetNS + s.residualTimeNS
	var simTime int64

	for s.HasUnfinishedProcs() {
		timeLeft := targetSimTime - simTime
		if timeLeft <= 0 {
			s.residualTimeNS = 0
			return nil
		}

		if s.curr == nil {
			if s.waiting.Len() == 0 {
				if len(s.sleeping) == 0 {
					return status.Errorf(codes.Internal, "cpu %d: scheduler has unfinished processes but none are waiting, sleeping, or current", s.cpuID)
				}
				minProc := s.minTimeToWake()
				timeToNextRun := minProc.TimeToNextRunNS()
				sleepDelta := timeToNextRun
				if timeLeft < sleepDelta {
					sleepDelta = timeLeft
				}
				if sleepDelta <= 0 {
					return status.Errorf(codes.Internal, "cpu %d: computed non-positive sleep delta", s.cpuID)
				}

				if err := s.updateSleepingProcs(sleepDelta); err != nil {
					return err
				}
				simTime += sleepDelta
				s.clockNS += sleepDelta

				if minProc.Finished() || minProc.TargetCPU != s.cpuID {
					continue
				}
				if s.waiting.Len() == 0 {
					if sleepDelta < timeToNextRun {
						s.residualTimeNS = 0
						return nil
					}
					continue
				}
				continue
			}

			s.curr = s.waiting.popMin()
			s.currSinceNS = s.clockNS
			continue
		}

		idealSlice := s.targetLatencyNS / int64(s.waiting.Len()+1)
		if idealSlice > timeLeft {
			s.residualTimeNS = timeLeft
			return nil
		}

		ran, err := s.curr.Run(idealSlice)
		if err != nil {
			return err
		}
		simTime += ran
		s.clockNS += ran
		if err := s.updateSleepingProcs(ran); err != nil {
			return err
		}

		switch {
		case s.curr.Finished():
			s.recordCurrSpan()
			s.curr = s.waiting.popMin()
			if s.curr != nil {
				s.minVRuntimeNS = s.curr.VRuntimeNS
				s.currSinceNS = s.clockNS
			}
		case s.curr.IsRunning():
			if candidate := s.waiting.popMin(); candidate != nil {
				s.recordCurrSpan()
				s.curr.ContextSwitches++
				s.waiting.push(s.curr)
				s.curr = candidate
				s.minVRuntimeNS = candidate.VRuntimeNS
				s.currSinceNS = s.clockNS
			}
		default: // now sleeping
			s.recordCurrSpan()
			s.sleeping = append(s.sleeping, s.curr)
			s.curr = s.waiting.popMin()
			if s.curr != nil {
				s.minVRuntimeNS = s.curr.VRuntimeNS
				s.currSinceNS = s.clockNS
			}
		}
	}
	return nil
}

func (s *Scheduler) recordCurrSpan() {
	if s.recorder == nil || s.curr == nil {
		return
	}
	s.recorder.RecordRunning(s.curr.Name, s.currSinceNS, s.clockNS)
}

func (s *Scheduler) minTimeToWake() *process.Process {
	var min *process.Process
	minTime := int64(math.MaxInt64)
	for _, p := range s.sleeping {
		if t := p.TimeToNextRunNS(); t < minTime {
			minTime = t
			min = p
		}
	}
	return min
}

// updateSleepingProcs ages every sleeping process by dtNS. Processes that
// wake are enqueued per §4.2.1, locally if they're still targeting this
// CPU, or handed off to their destination scheduler if the Migrator has
// reassigned them.
func (s *Scheduler) updateSleepingProcs(dtNS int64) error {
	var still []*process.Process
	for _, p := range s.sleeping {
		if err := p.Sleep(dtNS); err != nil {
			return err
		}
		switch {
		case p.IsSleeping():
			still = append(still, p)
		case p.IsRunning():
			if p.TargetCPU == s.cpuID {
				s.enqueueWoken(p, false)
			} else {
				s.removeOwned(p)
				dest := s.registry.SchedulerByCPU(p.TargetCPU)
				if dest == nil {
					return status.Errorf(codes.Internal, "no scheduler registered for cpu %d", p.TargetCPU)
				}
				dest.receiveRunnable(p)
			}
		default:
			// Finished while asleep; simply drop it.
		}
	}
	s.sleeping = still
	return nil
}

// enqueueWoken places a freshly-woken process into the waiting queue,
// mirroring CFS's place_entity: an idle runqueue resets vruntime to zero,
// a migrant arriving from another CPU is placed a full target latency
// ahead of the local minimum so it doesn't dominate the next few slices,
// and a purely local wake-up is floor-clamped so sleepers can't accrue an
// unbounded vruntime advantage over processes that kept running.
func (s *Scheduler) enqueueWoken(p *process.Process, migrated bool) {
	allIdle := s.curr == nil && s.waiting.Len() == 0
	switch {
	case allIdle:
		p.VRuntimeNS = 0
	case migrated:
		p.VRuntimeNS = s.minVRuntimeNS + s.targetLatencyNS
	default:
		if floor := s.minVRuntimeNS - s.targetLatencyNS; p.VRuntimeNS < floor {
			p.VRuntimeNS = floor
		}
	}
	s.waiting.push(p)
}

// receiveRunnable accepts a process the Migrator has reassigned to this CPU
// while it was running or waiting elsewhere, or one that has just woken on
// another CPU with this CPU as its target. It is placed as a migrant
// (see enqueueWoken), deferring it past the CPU's current work instead of
// letting it preempt immediately.
func (s *Scheduler) receiveRunnable(p *process.Process) {
	p.SetTargetLatencyNS(s.targetLatencyNS)
	s.owned = append(s.owned, p)
	s.enqueueWoken(p, true)
}

// receiveSleeper accepts a process the Migrator has reassigned to this CPU
// while it was already asleep elsewhere. It stays asleep, unchanged, until
// it wakes -- at which point the usual wake discipline applies.
func (s *Scheduler) receiveSleeper(p *process.Process) {
	p.SetTargetLatencyNS(s.targetLatencyNS)
	s.owned = append(s.owned, p)
	s.sleeping = append(s.sleeping, p)
}

func (s *Scheduler) removeOwned(p *process.Process) {
	for i, o := range s.owned {
		if o == p {
			s.owned = append(s.owned[:i], s.owned[i+1:]...)
			return
		}
	}
}

// ApplyMigrations walks this scheduler's waiting, sleeping, and current
// processes, handing any whose Process.TargetCPU no longer names this CPU
// off to their destination scheduler. Must only be called when every
// scheduler in the Registry is quiescent (between rebalance slices), since
// it mutates other schedulers' state directly.
func (s *Scheduler) ApplyMigrations() error {
	newWaiting := newWaitingQueue()
	for _, p := range s.waiting.all() {
		if p.TargetCPU == s.cpuID {
			newWaiting.push(p)
			continue
		}
		s.removeOwned(p)
		dest := s.registry.SchedulerByCPU(p.TargetCPU)
		if dest == nil {
			return status.Errorf(codes.Internal, "no scheduler registered for cpu %d", p.TargetCPU)
		}
		dest.receiveRunnable(p)
	}
	s.waiting = newWaiting

	if s.curr != nil && s.curr.TargetCPU != s.cpuID {
		migrant := s.curr
		s.curr = nil
		s.removeOwned(migrant)
		dest := s.registry.SchedulerByCPU(migrant.TargetCPU)
		if dest == nil {
			return status.Errorf(codes.Internal, "no scheduler registered for cpu %d", migrant.TargetCPU)
		}
		dest.receiveRunnable(migrant)
	}

	var stillSleeping []*process.Process
	for _, p := range s.sleeping {
		if p.TargetCPU == s.cpuID {
			stillSleeping = append(stillSleeping, p)
			continue
		}
		s.removeOwned(p)
		dest := s.registry.SchedulerByCPU(p.TargetCPU)
		if dest == nil {
			return status.Errorf(codes.Internal, "no scheduler registered for cpu %d", p.TargetCPU)
		}
		dest.receiveSleeper(p)
	}
	s.sleeping = stillSleeping

	return nil
}

// ReportResults logs a one-line summary of every process this scheduler has
// ever owned, matching the diagnostic schedviz's own components emit via
// glog rather than bare fmt.Println.
func (s *Scheduler) ReportResults() {
	for _, p := range s.owned {
		log.Infof("cpu %d: %s: context_switches=%d average_runtime=%dns load=%.4f finished=%t",
			s.cpuID, p.Name, p.ContextSwitches, p.AverageRuntimeNS, p.GetLoad(), p.Finished())
	}
}
