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
// Binary timepack runs a single scheduling simulation described by a
// workload JSON file and prints (and optionally serves) a summary report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/golang/glog"

	"github.com/mgouzenko/timepack/config"
	"github.com/mgouzenko/timepack/resultserver"
	"github.com/mgouzenko/timepack/simulate"
	"github.com/mgouzenko/timepack/tracecache"
)

var (
	workloadsDir   = flag.String("workloads_dir", "workloads", "Directory containing <name>.json workload files.")
	tracesDir      = flag.String("traces_dir", "traces", "Directory containing <benchmark>.trace.csv trace files.")
	cacheSize      = flag.Int("cache_size", 32, "Number of parsed benchmark traces to keep in the tracecache LRU.")
	serveReport    = flag.Bool("serve_report", false, "After the run finishes, serve its report over HTTP until killed.")
	reportPort     = flag.Int("report_port", 7403, "Port resultserver listens on when -serve_report is set.")
	dumpFirstTrace = flag.Bool("dump_first_trace", false, "Print the parsed trace.Trace of the workload's first benchmark and exit, without simulating.")
)

func main() {
	flag.Parse()

	if flag.NArg() != 1 {
		listWorkloads()
		log.Exit("expected exactly one positional argument: the workload name")
	}
	name := flag.Arg(0)

	workloadPath := filepath.Join(*workloadsDir, name+".json")
	f, err := os.Open(workloadPath)
	if err != nil {
		listWorkloads()
		log.Exitf("unknown workload %q: %s", name, err)
	}
	cfg, err := config.Decode(f)
	f.Close()
	if err != nil {
		log.Exitf("invalid workload %q: %s", name, err)
	}

	cache, err := tracecache.New(*tracesDir, *cacheSize)
	if err != nil {
		log.Exitf("failed to build trace cache: %s", err)
	}

	if *dumpFirstTrace {
		dumpFirstTraceAndExit(cfg, cache)
	}

	r, err := simulate.Run(context.Background(), cfg, cache)
	if err != nil {
		log.Exitf("simulation failed: %s", err)
	}

	fmt.Print(r.String())

	if *serveReport {
		srv := resultserver.New()
		srv.SetReport(r)
		log.Exitf("resultserver exited: %s", srv.ListenAndServe(*reportPort))
	}
}

func dumpFirstTraceAndExit(cfg *config.Config, cache *tracecache.Cache) {
	if len(cfg.Processes) == 0 {
		log.Exit("workload has no processes to dump a trace for")
	}
	trc, err := cache.Get(cfg.Processes[0].Benchmark, cfg.SimTimeNS)
	if err != nil {
		log.Exitf("failed to load trace for %q: %s", cfg.Processes[0].Benchmark, err)
	}
	fmt.Print(trc.String())
	os.Exit(0)
}

func listWorkloads() {
	entries, err := os.ReadDir(*workloadsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not list workloads directory %q: %s\n", *workloadsDir, err)
		return
	}
	fmt.Fprintf(os.Stderr, "available workloads in %q:\n", *workloadsDir)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		fmt.Fprintf(os.Stderr, "  %s\n", strings.TrimSuffix(e.Name(), ".json"))
	}
}
