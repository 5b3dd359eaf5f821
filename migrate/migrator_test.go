package migrate

import (
	"strings"
	"testing"

	"github.com/mgouzenko/timepack/cpu"
	"github.com/mgouzenko/timepack/process"
	"github.com/mgouzenko/timepack/sched"
	"github.com/mgouzenko/timepack/trace"
)

func mustProcess(t *testing.T, name string, avgRuntimeNS int64, initialCPU int) *process.Process {
	t.Helper()
	tr, err := trace.Parse(strings.NewReader("sched_switch,S,1000000000\n"), 1000000000)
	if err != nil {
		t.Fatalf("trace.Parse() unexpected error: %s", err)
	}
	p, err := process.New(name, "bench", tr, initialCPU, 10_000_000)
	if err != nil {
		t.Fatalf("process.New() unexpected error: %s", err)
	}
	p.AverageRuntimeNS = avgRuntimeNS
	// Give every test process some nonzero load so bucket/cpu load-weight
	// math has something to divide by.
	p.TotalRuntimeNS = avgRuntimeNS
	p.TotalSleepTimeNS = avgRuntimeNS
	return p
}

func newRegistry(nCPUs int, procsByCPU map[int][]*process.Process) *cpu.Registry {
	cpus := make([]*cpu.CPU, nCPUs)
	for i := 0; i < nCPUs; i++ {
		s := sched.New(i, procsByCPU[i], 10_000_000)
		cpus[i] = cpu.New(i, s)
	}
	return cpu.NewRegistry(cpus)
}

// TestRebalanceBucketsByBurstLength is concrete scenario 5: processes whose
// average burst lengths form two obvious clusters end up in two buckets,
// which are bound to disjoint sets of CPUs.
func TestRebalanceBucketsByBurstLength(t *testing.T) {
	p1 := mustProcess(t, "p1", 1000, 0)
	p2 := mustProcess(t, "p2", 1100, 0)
	p3 := mustProcess(t, "p3", 1050, 1)
	p4 := mustProcess(t, "p4", 50000, 1)
	p5 := mustProcess(t, "p5", 51000, 1)

	registry := newRegistry(4, map[int][]*process.Process{
		0: {p1, p2},
		1: {p3, p4, p5},
	})
	m := New(registry, 20_000_000)
	if err := m.Rebalance(); err != nil {
		t.Fatalf("Rebalance() unexpected error: %s", err)
	}

	// Five processes on four CPUs: both buckets get two CPUs (0-1 for the
	// short-burst bucket, 2-3 for the long-burst one), and each bucket packs
	// its processes onto its least-loaded CPU.
	shortBurstCPUs := map[int]bool{0: true, 1: true}
	for _, p := range []*process.Process{p1, p2, p3} {
		if !shortBurstCPUs[p.TargetCPU] {
			t.Errorf("short-burst process %s on cpu %d, want one of the short-burst bucket's cpus 0-1", p.Name, p.TargetCPU)
		}
	}
	for _, p := range []*process.Process{p4, p5} {
		if shortBurstCPUs[p.TargetCPU] {
			t.Errorf("long-burst process %s on cpu %d, shared with the short-burst bucket", p.Name, p.TargetCPU)
		}
	}
	if p4.TargetCPU == p5.TargetCPU {
		t.Errorf("expected p4, p5 (long bursts) packed onto their bucket's two cpus, both got %d", p4.TargetCPU)
	}
}

func TestRebalanceNoOpWhenNoProcesses(t *testing.T) {
	registry := newRegistry(2, nil)
	m := New(registry, 20_000_000)
	if err := m.Rebalance(); err != nil {
		t.Fatalf("Rebalance() on an empty registry returned an error: %s", err)
	}
	if got := len(m.MeanLatencyNS()); got != 0 {
		t.Errorf("MeanLatencyNS() after a no-op rebalance has %d entries, want 0", got)
	}
}

// TestAllotCPUsRespectsLoadWeight is concrete scenario 6: with 4 CPUs and
// two buckets weighted 0.25/0.75, the lighter bucket should get 1 CPU and
// the heavier one the remaining 3.
func TestAllotCPUsRespectsLoadWeight(t *testing.T) {
	light := newBucket(1000)
	for i := 0; i < 4; i++ {
		light.addProcess(mustProcess(t, "light", 1000, 0))
	}
	// Scale light's load down relative to heavy by directly weighting load.
	light.load = 0.25

	heavy := newBucket(50000)
	for i := 0; i < 4; i++ {
		heavy.addProcess(mustProcess(t, "heavy", 50000, 0))
	}
	heavy.load = 0.75

	buckets := []*bucket{light, heavy}
	if err := allotCPUs(buckets, 4, 4); err != nil {
		t.Fatalf("allotCPUs() unexpected error: %s", err)
	}
	if light.numCPUs != 1 {
		t.Errorf("light bucket got %d cpus, want 1", light.numCPUs)
	}
	if heavy.numCPUs != 3 {
		t.Errorf("heavy bucket got %d cpus, want 3", heavy.numCPUs)
	}
}

func TestMigrationPreservesProcessCount(t *testing.T) {
	var procs []*process.Process
	for i := 0; i < 6; i++ {
		procs = append(procs, mustProcess(t, "p", int64(1000*(i+1)), i%2))
	}
	procsByCPU := map[int][]*process.Process{
		0: {procs[0], procs[2], procs[4]},
		1: {procs[1], procs[3], procs[5]},
	}
	registry := newRegistry(2, procsByCPU)
	m := New(registry, 20_000_000)
	if err := m.Rebalance(); err != nil {
		t.Fatalf("Rebalance() unexpected error: %s", err)
	}

	var total int
	for _, c := range registry.All() {
		total += len(c.Scheduler().Snapshot())
	}
	if total != len(procs) {
		t.Errorf("after rebalance, registry owns %d processes, want %d", total, len(procs))
	}
}
