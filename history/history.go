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
// Package history records, per CPU, every run span a scheduler completes,
// in an interval tree that can answer "what was running on CPU c at time
// t" in O(log n). Modeled on analysis/sched_cpu_span_set.go's
// augmentedtree.Tree-backed sleepingSpansByCPU/waitingSpansByCPU maps; this
// package is the sole genuinely shared, cross-scheduler mutable state
// besides tracecache, so every method locks.
package history

import (
	"sync"

	"github.com/Workiva/go-datastructures/augmentedtree"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// span is a single completed run-burst: process name and the
// [startNS, endNS) window it ran in. It implements augmentedtree.Interval.
type span struct {
	id      uint64
	name    string
	startNS int64
	endNS   int64
}

// LowAtDimension returns the span's start timestamp.
func (s *span) LowAtDimension(d uint64) int64 { return s.startNS }

// HighAtDimension returns the span's end timestamp.
func (s *span) HighAtDimension(d uint64) int64 { return s.endNS }

// OverlapsAtDimension reports whether j overlaps this span.
func (s *span) OverlapsAtDimension(j augmentedtree.Interval, d uint64) bool {
	return s.HighAtDimension(d) >= j.LowAtDimension(d) && j.HighAtDimension(d) >= s.LowAtDimension(d)
}

// ID returns the span's unique identifier, required by augmentedtree.Interval.
func (s *span) ID() uint64 { return s.id }

// Span is a completed run-burst, returned from query results.
type Span struct {
	ProcessName string
	StartNS     int64
	EndNS       int64
}

// Recorder accumulates completed run spans across every CPU in a
// simulation and answers point-in-time queries against them.
type Recorder struct {
	mu        sync.Mutex
	treeByCPU map[int]augmentedtree.Tree
	nextID    uint64
}

// NewRecorder builds an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{treeByCPU: make(map[int]augmentedtree.Tree)}
}

// ForCPU returns a sched.Recorder-compatible handle scoped to a single CPU,
// so each Scheduler can record spans without knowing about other CPUs.
func (r *Recorder) ForCPU(cpuID int) *CPURecorder {
	return &CPURecorder{recorder: r, cpuID: cpuID}
}

func (r *Recorder) record(cpuID int, name string, startNS, endNS int64) {
	if endNS <= startNS {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tree, ok := r.treeByCPU[cpuID]
	if !ok {
		tree = augmentedtree.New(1)
		r.treeByCPU[cpuID] = tree
	}
	r.nextID++
	tree.Add(&span{id: r.nextID, name: name, startNS: startNS, endNS: endNS})
}

// At returns every span running on cpuID at timeNS, if any.
func (r *Recorder) At(cpuID int, timeNS int64) ([]Span, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tree, ok := r.treeByCPU[cpuID]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "history: no spans recorded for cpu %d", cpuID)
	}
	results := tree.Query(&span{startNS: timeNS, endNS: timeNS})
	spans := make([]Span, 0, len(results))
	for _, iv := range results {
		s := iv.(*span)
		spans = append(spans, Span{ProcessName: s.name, StartNS: s.startNS, EndNS: s.endNS})
	}
	return spans, nil
}

// CPURecorder adapts Recorder to sched.Recorder for a single CPU ID.
type CPURecorder struct {
	recorder *Recorder
	cpuID    int
}

// RecordRunning implements sched.Recorder.
func (c *CPURecorder) RecordRunning(name string, startNS, endNS int64) {
	c.recorder.record(c.cpuID, name, startNS, endNS)
}
