package trace

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SchedWakeup is the only event_kind that signals a wakeup transition.
const SchedWakeup = "sched_wakeup"

// Trace is a finite, ordered, immutable sequence of States, beginning with a
// RUNNING state at simulated time zero.
type Trace struct {
	states []State
}

// Len returns the number of States in the Trace.
func (t *Trace) Len() int {
	return len(t.states)
}

// At returns the State at position i.  Callers must treat the result as a
// value to be copied into their own working state, never a pointer into the
// Trace's backing storage.
func (t *Trace) At(i int) State {
	return t.states[i]
}

// TotalDurationNS sums the durations of every State in the Trace.
func (t *Trace) TotalDurationNS() int64 {
	var total int64
	for _, s := range t.states {
		total += s.DurationNS
	}
	return total
}

func (t *Trace) String() string {
	var b strings.Builder
	for _, s := range t.states {
		b.WriteString(s.String())
		b.WriteString("\n")
	}
	return b.String()
}

// Parse reads a benchmark trace CSV -- rows of (event_kind, reported_state,
// timestamp_ns), with no header -- and builds the Trace that a Process can
// replay.  Rows whose timestamp exceeds horizonNS are not consumed.
//
// Parsing is a strict two-state machine (RUNNING, SLEEPING):
//   - In RUNNING, a sched_wakeup row is always an error: a running process
//     cannot be woken.  Any other row whose reported_state starts with "R"
//     is a still-runnable context switch and is ignored.  Any other row ends
//     the RUNNING burst and transitions to SLEEPING.
//   - In SLEEPING, the next row must be a sched_wakeup; anything else is an
//     error.  It ends the SLEEPING interval and transitions back to RUNNING.
//
// A zero-length emitted interval is promoted to 1ns so the state machine
// always makes progress.
func Parse(r io.Reader, horizonNS int64) (*Trace, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	var states []State
	currKind := Running
	currTimeNS := int64(0)
	lineno := 0

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "malformed trace at line %d: %s", lineno+1, err)
		}
		lineno++

		event := record[0]
		reportedState := record[1]
		ts, err := strconv.ParseInt(strings.TrimSpace(record[2]), 10, 64)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "malformed timestamp at line %d: %s", lineno, err)
		}
		if ts > horizonNS {
			break
		}

		switch currKind {
		case Running:
			if event == SchedWakeup {
				return nil, status.Errorf(codes.InvalidArgument, "line %d: unexpected wakeup while RUNNING", lineno)
			}
			if strings.HasPrefix(reportedState, "R") {
				// Still runnable; this context switch doesn't end the burst.
				continue
			}
			duration := ts - currTimeNS
			if duration == 0 {
				duration = 1
			}
			states = append(states, State{Kind: Running, DurationNS: duration})
			currTimeNS = ts
			currKind = Sleeping
		case Sleeping:
			if event != SchedWakeup {
				return nil, status.Errorf(codes.InvalidArgument, "line %d: expected wakeup while SLEEPING", lineno)
			}
			duration := ts - currTimeNS
			if duration == 0 {
				duration = 1
			}
			states = append(states, State{Kind: Sleeping, DurationNS: duration})
			currTimeNS = ts
			currKind = Running
		}
	}

	return &Trace{states: states}, nil
}
