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
// Package tracecache caches parsed trace.Trace values behind an LRU, so a
// workload naming the same benchmark hundreds of times (one per simulated
// process) parses its CSV file once rather than once per process. Modeled
// on server/storageservice's simplelru-backed CachedCollection cache.
package tracecache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mgouzenko/timepack/trace"
)

type key struct {
	benchmark string
	horizonNS int64
}

// Cache loads and caches trace.Trace values by (benchmark, horizon) pair.
// Safe for concurrent use; guarded the same way storageservice guards its
// lruCache, since the simulation driver may load traces for several CPUs'
// worth of processes concurrently.
type Cache struct {
	tracesDir string

	mu  sync.Mutex
	lru *simplelru.LRU

	hits, misses int
}

// New builds a Cache that reads "<name>.trace.csv" files from tracesDir,
// keeping at most size parsed traces in memory.
func New(tracesDir string, size int) (*Cache, error) {
	lru, err := simplelru.NewLRU(size, nil)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "tracecache: %s", err)
	}
	return &Cache{tracesDir: tracesDir, lru: lru}, nil
}

// Get returns the parsed trace for benchmark, truncated at horizonNS,
// loading and parsing the underlying CSV file on a cache miss.
func (c *Cache) Get(benchmark string, horizonNS int64) (*trace.Trace, error) {
	k := key{benchmark: benchmark, horizonNS: horizonNS}

	c.mu.Lock()
	if v, ok := c.lru.Get(k); ok {
		c.hits++
		c.mu.Unlock()
		return v.(*trace.Trace), nil
	}
	c.misses++
	c.mu.Unlock()

	path := filepath.Join(c.tracesDir, fmt.Sprintf("%s.trace.csv", benchmark))
	f, err := os.Open(path)
	if err != nil {
		return nil, status.Errorf(codes.NotFound, "tracecache: opening trace for benchmark %q: %s", benchmark, err)
	}
	defer f.Close()

	tr, err := trace.Parse(f, horizonNS)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "tracecache: parsing trace for benchmark %q: %s", benchmark, err)
	}

	c.mu.Lock()
	c.lru.Add(k, tr)
	c.mu.Unlock()

	return tr, nil
}

// Stats returns the cumulative hit and miss counts, for diagnostics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
