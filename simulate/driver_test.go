package simulate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mgouzenko/timepack/config"
	"github.com/mgouzenko/timepack/tracecache"
)

func writeTrace(t *testing.T, dir, benchmark, csv string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, benchmark+".trace.csv"), []byte(csv), 0644); err != nil {
		t.Fatalf("writing fixture trace: %s", err)
	}
}

func TestRunCompletesBaselineSimulation(t *testing.T) {
	dir := t.TempDir()
	writeTrace(t, dir, "bench", "sched_switch,S,100000\nsched_wakeup,R,200000\nsched_switch,S,300000\nsched_wakeup,R,400000\n")

	cfg, err := config.Decode(strings.NewReader(`{
		"cpus": 2,
		"processes": [{"benchmark": "bench", "quantity": 4}],
		"initial_latency_millis": 10,
		"max_latency_millis": 20,
		"rebalance_period_millis": 1,
		"sim_time_millis": 1,
		"time_packer_active": false
	}`))
	if err != nil {
		t.Fatalf("config.Decode() unexpected error: %s", err)
	}

	cache, err := tracecache.New(dir, 4)
	if err != nil {
		t.Fatalf("tracecache.New() unexpected error: %s", err)
	}

	r, err := Run(context.Background(), cfg, cache)
	if err != nil {
		t.Fatalf("Run() unexpected error: %s", err)
	}
	if len(r.Processes) != 4 {
		t.Fatalf("Run() produced %d process summaries, want 4", len(r.Processes))
	}
	for _, p := range r.Processes {
		if !p.Finished {
			t.Errorf("process %q did not finish within the simulated time budget", p.Name)
		}
	}
	if r.TimePacking {
		t.Errorf("TimePacking = true with time_packer_active=false, want false")
	}
}

func TestRunWithTimePackingActive(t *testing.T) {
	dir := t.TempDir()
	writeTrace(t, dir, "short", "sched_switch,S,10000\nsched_wakeup,R,20000\n")
	writeTrace(t, dir, "long", "sched_switch,S,700000\nsched_wakeup,R,1400000\nsched_switch,S,2100000\nsched_wakeup,R,2500000\n")

	cfg, err := config.Decode(strings.NewReader(`{
		"cpus": 4,
		"processes": [
			{"benchmark": "short", "quantity": 4},
			{"benchmark": "long", "quantity": 4}
		],
		"initial_latency_millis": 1,
		"max_latency_millis": 10,
		"rebalance_period_millis": 1,
		"sim_time_millis": 3,
		"time_packer_active": true
	}`))
	if err != nil {
		t.Fatalf("config.Decode() unexpected error: %s", err)
	}

	cache, err := tracecache.New(dir, 4)
	if err != nil {
		t.Fatalf("tracecache.New() unexpected error: %s", err)
	}

	r, err := Run(context.Background(), cfg, cache)
	if err != nil {
		t.Fatalf("Run() unexpected error: %s", err)
	}
	if !r.TimePacking {
		t.Errorf("TimePacking = false with time_packer_active=true, want true")
	}
	if len(r.MeanLatencyNS) == 0 {
		t.Errorf("MeanLatencyNS is empty, want at least one rebalance recorded")
	}
}
