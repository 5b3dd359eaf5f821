package cpu

import (
	"strings"
	"testing"

	"github.com/mgouzenko/timepack/process"
	"github.com/mgouzenko/timepack/sched"
	"github.com/mgouzenko/timepack/trace"
)

func mustProcess(t *testing.T, name string, initialCPU int) *process.Process {
	t.Helper()
	tr, err := trace.Parse(strings.NewReader("sched_switch,S,1000000\n"), 1000000)
	if err != nil {
		t.Fatalf("trace.Parse() unexpected error: %s", err)
	}
	p, err := process.New(name, "bench", tr, initialCPU, 1_000_000)
	if err != nil {
		t.Fatalf("process.New() unexpected error: %s", err)
	}
	return p
}

func TestRegistryResolvesSchedulersByID(t *testing.T) {
	s0 := sched.New(0, []*process.Process{mustProcess(t, "p0", 0)}, 1_000_000)
	s1 := sched.New(1, []*process.Process{mustProcess(t, "p1", 1)}, 1_000_000)
	cpus := []*CPU{New(0, s0), New(1, s1)}
	r := NewRegistry(cpus)

	if got := r.SchedulerByCPU(0); got != s0 {
		t.Errorf("SchedulerByCPU(0) = %p, want %p", got, s0)
	}
	if got := r.SchedulerByCPU(1); got != s1 {
		t.Errorf("SchedulerByCPU(1) = %p, want %p", got, s1)
	}
	if got := r.SchedulerByCPU(7); got != nil {
		t.Errorf("SchedulerByCPU(7) = %v, want nil", got)
	}
}

func TestRegistryAllIsSortedByID(t *testing.T) {
	s1 := sched.New(1, nil, 1_000_000)
	s0 := sched.New(0, nil, 1_000_000)
	r := NewRegistry([]*CPU{New(1, s1), New(0, s0)})

	all := r.All()
	if len(all) != 2 || all[0].ID() != 0 || all[1].ID() != 1 {
		t.Fatalf("All() = %v, want cpus sorted by ID starting at 0", all)
	}
}

func TestCPURunDelegatesToScheduler(t *testing.T) {
	s := sched.New(0, []*process.Process{mustProcess(t, "p0", 0)}, 1_000_000)
	c := New(0, s)
	if !c.HasUnfinishedProcs() {
		t.Fatalf("HasUnfinishedProcs() = false before running, want true")
	}
	if err := c.Run(1_000_000); err != nil {
		t.Fatalf("Run() unexpected error: %s", err)
	}
	if c.HasUnfinishedProcs() {
		t.Errorf("HasUnfinishedProcs() = true after exhausting the only process, want false")
	}
}
