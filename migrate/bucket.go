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
package migrate

import "github.com/mgouzenko/timepack/process"

// bucket is a class of processes with similar average run-burst length, to
// which the Migrator allots a contiguous share of CPUs.
type bucket struct {
	upperBoundNS int64
	procs        []*process.Process
	load         float64
	numCPUs      int
	cpus         []int
}

func newBucket(upperBoundNS int64) *bucket {
	return &bucket{upperBoundNS: upperBoundNS}
}

func (b *bucket) addProcess(p *process.Process) {
	b.procs = append(b.procs, p)
	b.load += p.GetLoad()
}

func (b *bucket) claimCPU(id int) {
	b.cpus = append(b.cpus, id)
}

// packProcesses assigns each of this bucket's processes to the bucket's
// least-loaded claimed CPU, updating the shared per-CPU load and desired
// latency ledgers.
func (b *bucket) packProcesses(cpuLoad map[int]float64, cpuDesiredLatencyNS map[int]int64) {
	for _, p := range b.procs {
		minCPU := b.cpus[0]
		for _, id := range b.cpus[1:] {
			if cpuLoad[id] < cpuLoad[minCPU] {
				minCPU = id
			}
		}
		p.TargetCPU = minCPU
		cpuLoad[minCPU] += p.GetLoad()
		cpuDesiredLatencyNS[minCPU] += p.AverageRuntimeNS
	}
}
