package history

import "testing"

func TestAtReturnsProcessRunningAtTime(t *testing.T) {
	r := NewRecorder()
	cpu0 := r.ForCPU(0)
	cpu0.RecordRunning("p0", 0, 1000)
	cpu0.RecordRunning("p1", 1000, 2000)

	spans, err := r.At(0, 500)
	if err != nil {
		t.Fatalf("At() unexpected error: %s", err)
	}
	if len(spans) != 1 || spans[0].ProcessName != "p0" {
		t.Fatalf("At(0, 500) = %+v, want a single span naming p0", spans)
	}

	spans, err = r.At(0, 1500)
	if err != nil {
		t.Fatalf("At() unexpected error: %s", err)
	}
	if len(spans) != 1 || spans[0].ProcessName != "p1" {
		t.Fatalf("At(0, 1500) = %+v, want a single span naming p1", spans)
	}
}

func TestAtUnknownCPU(t *testing.T) {
	r := NewRecorder()
	if _, err := r.At(7, 0); err == nil {
		t.Errorf("At() on a cpu with no recorded spans = <nil> error, want non-nil")
	}
}

func TestRecordRunningIgnoresZeroLengthSpans(t *testing.T) {
	r := NewRecorder()
	cpu0 := r.ForCPU(0)
	cpu0.RecordRunning("p0", 100, 100)
	if _, err := r.At(0, 100); err == nil {
		t.Errorf("At() after only a zero-length span = <nil> error, want non-nil (nothing should have been recorded)")
	}
}
