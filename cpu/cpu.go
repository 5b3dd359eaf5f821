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
// Package cpu binds a sched.Scheduler to a CPU identity and gives the
// simulation driver a single, uniform place to register the cross-CPU
// lookup every Scheduler needs to hand off migrants.
package cpu

import (
	"sort"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mgouzenko/timepack/sched"
)

// CPU is one simulated core: an identity plus the scheduler that runs on it.
type CPU struct {
	id        int
	scheduler *sched.Scheduler
}

// New wraps s as the CPU identified by id.
func New(id int, s *sched.Scheduler) *CPU {
	return &CPU{id: id, scheduler: s}
}

// ID returns this CPU's identity.
func (c *CPU) ID() int { return c.id }

// Scheduler returns the scheduler running on this CPU.
func (c *CPU) Scheduler() *sched.Scheduler { return c.scheduler }

// Run advances this CPU's scheduler by up to budgetNS of simulated time.
func (c *CPU) Run(budgetNS int64) error { return c.scheduler.Run(budgetNS) }

// HasUnfinishedProcs reports whether this CPU still has work to do.
func (c *CPU) HasUnfinishedProcs() bool { return c.scheduler.HasUnfinishedProcs() }

// Registry maps CPU IDs to their schedulers, implementing sched.Registry so
// that a Scheduler can resolve a migrant's destination without holding a
// pointer to any concrete CPU type.
type Registry struct {
	cpus map[int]*CPU
}

// NewRegistry builds a Registry from cpus and wires it into every one of
// their schedulers, so each can look up the others.
func NewRegistry(cpus []*CPU) *Registry {
	r := &Registry{cpus: make(map[int]*CPU, len(cpus))}
	for _, c := range cpus {
		r.cpus[c.id] = c
	}
	for _, c := range cpus {
		c.scheduler.SetRegistry(r)
	}
	return r
}

// SchedulerByCPU implements sched.Registry.
func (r *Registry) SchedulerByCPU(id int) *sched.Scheduler {
	c, ok := r.cpus[id]
	if !ok {
		return nil
	}
	return c.scheduler
}

// CPU returns the CPU identified by id, or an error if none was registered.
func (r *Registry) CPU(id int) (*CPU, error) {
	c, ok := r.cpus[id]
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "no cpu registered with id %d", id)
	}
	return c, nil
}

// All returns every registered CPU, ordered by ID.
func (r *Registry) All() []*CPU {
	cpus := make([]*CPU, 0, len(r.cpus))
	for _, c := range r.cpus {
		cpus = append(cpus, c)
	}
	sort.Slice(cpus, func(i, j int) bool { return cpus[i].id < cpus[j].id })
	return cpus
}
