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
// Package trace parses benchmark execution traces -- alternating RUNNING and
// SLEEPING intervals recorded from a real process -- into an immutable
// sequence of States that a simulated Process can be driven from.
package trace

import (
	"fmt"
)

// Kind distinguishes the two states a traced process can be in.
type Kind int8

const (
	// Running processes are holding a (simulated) CPU.
	Running Kind = iota
	// Sleeping processes are blocked, waiting to be woken.
	Sleeping
)

func (k Kind) String() string {
	if k == Running {
		return "RUNNING"
	}
	return "SLEEPING"
}

// State is a single immutable interval in a Trace: Kind for DurationNS
// nanoseconds.  A consumer (process.Process) advances through a Trace by
// keeping its own mutable copy of the current State and decrementing its
// DurationNS as simulated time passes -- the Trace itself is never mutated.
type State struct {
	Kind       Kind
	DurationNS int64
}

func (s State) String() string {
	return fmt.Sprintf("%s for %d ns", s.Kind, s.DurationNS)
}
