package tracecache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeTrace(t *testing.T, dir, benchmark, csv string) {
	t.Helper()
	path := filepath.Join(dir, benchmark+".trace.csv")
	if err := os.WriteFile(path, []byte(csv), 0644); err != nil {
		t.Fatalf("writing fixture trace: %s", err)
	}
}

func TestGetCachesAcrossRepeatedLookups(t *testing.T) {
	dir := t.TempDir()
	writeTrace(t, dir, "bench", "sched_switch,S,1000\nsched_wakeup,R,2000\n")

	c, err := New(dir, 8)
	if err != nil {
		t.Fatalf("New() unexpected error: %s", err)
	}

	first, err := c.Get("bench", 10000)
	if err != nil {
		t.Fatalf("Get() unexpected error: %s", err)
	}
	second, err := c.Get("bench", 10000)
	if err != nil {
		t.Fatalf("Get() second call unexpected error: %s", err)
	}
	if diff := cmp.Diff(first.String(), second.String()); diff != "" {
		t.Errorf("Get() returned differing traces across repeated lookups (-first +second):\n%s", diff)
	}

	if hits, misses := c.Stats(); hits != 1 || misses != 1 {
		t.Errorf("Stats() = (hits=%d, misses=%d), want (1, 1)", hits, misses)
	}
}

func TestGetMissingBenchmark(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 8)
	if err != nil {
		t.Fatalf("New() unexpected error: %s", err)
	}
	if _, err := c.Get("nonexistent", 1000); err == nil {
		t.Errorf("Get() for a missing benchmark = <nil> error, want non-nil")
	}
}

func TestGetDistinguishesHorizon(t *testing.T) {
	dir := t.TempDir()
	writeTrace(t, dir, "bench", "sched_switch,S,1000\nsched_wakeup,R,2000\nsched_switch,S,3000\n")

	c, err := New(dir, 8)
	if err != nil {
		t.Fatalf("New() unexpected error: %s", err)
	}
	short, err := c.Get("bench", 1500)
	if err != nil {
		t.Fatalf("Get() unexpected error: %s", err)
	}
	long, err := c.Get("bench", 10000)
	if err != nil {
		t.Fatalf("Get() unexpected error: %s", err)
	}
	if short.Len() >= long.Len() {
		t.Errorf("Get() with a smaller horizon returned %d states, want fewer than the %d from a larger horizon", short.Len(), long.Len())
	}
}
