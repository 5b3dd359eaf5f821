package report

import (
	"strings"
	"testing"

	"github.com/mgouzenko/timepack/process"
	"github.com/mgouzenko/timepack/testhelpers"
	"github.com/mgouzenko/timepack/trace"
)

func mustProcess(t *testing.T, name, bench string) *process.Process {
	t.Helper()
	tr, err := trace.Parse(strings.NewReader("sched_switch,S,1000\n"), 1000)
	if err != nil {
		t.Fatalf("trace.Parse() unexpected error: %s", err)
	}
	p, err := process.New(name, bench, tr, 0, 1000)
	if err != nil {
		t.Fatalf("process.New() unexpected error: %s", err)
	}
	return p
}

func TestBuildAggregatesPerBenchmark(t *testing.T) {
	p1 := mustProcess(t, "a-0", "a")
	p1.ContextSwitches = 2
	p2 := mustProcess(t, "a-1", "a")
	p2.ContextSwitches = 4
	p3 := mustProcess(t, "b-0", "b")
	p3.ContextSwitches = 1

	r := Build("run-1", []*process.Process{p1, p2, p3}, nil)

	if len(r.Processes) != 3 {
		t.Fatalf("Build() produced %d process summaries, want 3", len(r.Processes))
	}
	if len(r.PerBenchmark) != 2 {
		t.Fatalf("Build() produced %d benchmark summaries, want 2", len(r.PerBenchmark))
	}

	var aSummary BenchmarkSummary
	for _, b := range r.PerBenchmark {
		if b.Benchmark == "a" {
			aSummary = b
		}
	}
	if aSummary.ProcessCount != 2 {
		t.Errorf("benchmark %q process count = %d, want 2", "a", aSummary.ProcessCount)
	}
	if want := 3.0; aSummary.AverageContextSwitches != want {
		t.Errorf("benchmark %q average context switches = %f, want %f", "a", aSummary.AverageContextSwitches, want)
	}
	if r.TimePacking {
		t.Errorf("TimePacking = true with a nil latency history, want false")
	}
}

func TestBuildSingleProcessSummary(t *testing.T) {
	p := mustProcess(t, "solo-0", "solo")
	p.ContextSwitches = 3
	p.AverageRuntimeNS = 42

	r := Build("run-1", []*process.Process{p}, nil)

	want := ProcessSummary{
		Name:             "solo-0",
		Benchmark:        "solo",
		ContextSwitches:  3,
		AverageRuntimeNS: 42,
		Load:             p.GetLoad(),
		Finished:         p.Finished(),
	}
	if diff, equal := testhelpers.DiffStruct(t, want, r.Processes[0]); !equal {
		t.Errorf("Build() process summary mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildRecordsMeanLatencyWhenTimePacking(t *testing.T) {
	p := mustProcess(t, "a-0", "a")
	r := Build("run-1", []*process.Process{p}, []int64{1000, 2000})
	if !r.TimePacking {
		t.Errorf("TimePacking = false with a non-empty latency history, want true")
	}
	if got := r.String(); !strings.Contains(got, "time-packing") {
		t.Errorf("String() = %q, want it to mention time-packing", got)
	}
}
