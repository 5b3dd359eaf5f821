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
// Package testhelpers contains helpers shared across this repo's tests.
package testhelpers

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// DiffStruct compares two plain values with cmp.Diff and reports whether
// they were equal. There are no protobuf messages in this repo, so the
// comparison is a plain cmp.Diff rather than proto.Equal plus a fallback
// diff.
func DiffStruct(t *testing.T, want, got interface{}) (diff string, equal bool) {
	t.Helper()
	diff = cmp.Diff(want, got)
	return diff, diff == ""
}
