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
// Package report assembles the per-process, per-benchmark, and
// latency-history summaries produced by a finished simulation run into a
// single, JSON-serializable value the CLI prints and resultserver exposes.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mgouzenko/timepack/process"
)

// ProcessSummary is one process's final statistics.
type ProcessSummary struct {
	Name             string  `json:"name"`
	Benchmark        string  `json:"benchmark"`
	ContextSwitches  int     `json:"contextSwitches"`
	AverageRuntimeNS int64   `json:"averageRuntimeNs"`
	Load             float64 `json:"load"`
	Finished         bool    `json:"finished"`
}

// BenchmarkSummary averages ProcessSummary fields across every process that
// ran the same benchmark.
type BenchmarkSummary struct {
	Benchmark              string  `json:"benchmark"`
	ProcessCount           int     `json:"processCount"`
	AverageContextSwitches float64 `json:"averageContextSwitches"`
	AverageLoad            float64 `json:"averageLoad"`
}

// Report is the final output of a simulation run.
type Report struct {
	RunID        string             `json:"runId"`
	Processes    []ProcessSummary   `json:"processes"`
	PerBenchmark []BenchmarkSummary `json:"perBenchmark"`
	TimePacking  bool               `json:"timePacking"`
	// MeanLatencyNS holds the per-rebalance mean of every CPU's retuned
	// target latency; empty when time-packing is disabled.
	MeanLatencyNS []int64 `json:"meanLatencyNs,omitempty"`
}

// Build summarizes procs (every process the simulation owned, finished or
// not) into a Report. runID stamps the run for external correlation;
// meanLatencyNS is the Migrator's latency history (nil if time-packing was
// never active).
func Build(runID string, procs []*process.Process, meanLatencyNS []int64) *Report {
	r := &Report{
		RunID:         runID,
		TimePacking:   len(meanLatencyNS) > 0,
		MeanLatencyNS: meanLatencyNS,
	}

	byBenchmark := map[string][]ProcessSummary{}
	for _, p := range procs {
		s := ProcessSummary{
			Name:             p.Name,
			Benchmark:        p.BenchName,
			ContextSwitches:  p.ContextSwitches,
			AverageRuntimeNS: p.AverageRuntimeNS,
			Load:             p.GetLoad(),
			Finished:         p.Finished(),
		}
		r.Processes = append(r.Processes, s)
		byBenchmark[p.BenchName] = append(byBenchmark[p.BenchName], s)
	}
	sort.Slice(r.Processes, func(i, j int) bool { return r.Processes[i].Name < r.Processes[j].Name })

	benchNames := make([]string, 0, len(byBenchmark))
	for name := range byBenchmark {
		benchNames = append(benchNames, name)
	}
	sort.Strings(benchNames)

	for _, name := range benchNames {
		summaries := byBenchmark[name]
		var switches, load float64
		for _, s := range summaries {
			switches += float64(s.ContextSwitches)
			load += s.Load
		}
		n := float64(len(summaries))
		r.PerBenchmark = append(r.PerBenchmark, BenchmarkSummary{
			Benchmark:              name,
			ProcessCount:           len(summaries),
			AverageContextSwitches: switches / n,
			AverageLoad:            load / n,
		})
	}

	return r
}

// String renders the report as the plain-text summary the CLI prints.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s\n", r.RunID)
	for _, p := range r.Processes {
		fmt.Fprintf(&b, "  %-20s bench=%-15s context_switches=%-6d average_runtime=%-10dns load=%.4f finished=%t\n",
			p.Name, p.Benchmark, p.ContextSwitches, p.AverageRuntimeNS, p.Load, p.Finished)
	}
	for _, s := range r.PerBenchmark {
		fmt.Fprintf(&b, "benchmark %-15s processes=%-4d avg_context_switches=%.2f avg_load=%.4f\n",
			s.Benchmark, s.ProcessCount, s.AverageContextSwitches, s.AverageLoad)
	}
	if r.TimePacking {
		var sum int64
		for _, l := range r.MeanLatencyNS {
			sum += l
		}
		fmt.Fprintf(&b, "time-packing: %d rebalances, overall mean target latency %dns\n", len(r.MeanLatencyNS), sum/int64(len(r.MeanLatencyNS)))
	}
	return b.String()
}
