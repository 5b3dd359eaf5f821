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
// Package resultserver exposes a finished simulation's report.Report over
// HTTP, mirroring (at a much smaller scale) server/server.go's
// gorilla/mux-routed JSON endpoints.
package resultserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	log "github.com/golang/glog"
	"github.com/gorilla/mux"

	"github.com/mgouzenko/timepack/report"
)

// Server serves the most recently completed run's report.Report as JSON at
// /api/report, and a human-readable dump at /api/report.txt.
type Server struct {
	mu     sync.RWMutex
	latest *report.Report

	router *mux.Router
}

// New builds a Server with no report yet set.
func New() *Server {
	s := &Server{router: mux.NewRouter()}
	s.router.HandleFunc("/api/report", s.handleReportJSON)
	s.router.HandleFunc("/api/report.txt", s.handleReportText)
	return s
}

// SetReport updates the report served to future requests.
func (s *Server) SetReport(r *report.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = r
}

// ListenAndServe blocks serving on the given port, matching how
// server/server.go binds *port with http.ListenAndServe.
func (s *Server) ListenAndServe(port int) error {
	log.Infof("resultserver: listening on :%d", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), s.router)
}

func (s *Server) handleReportJSON(w http.ResponseWriter, req *http.Request) {
	s.mu.RLock()
	r := s.latest
	s.mu.RUnlock()

	if r == nil {
		http.Error(w, "no report available yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(r); err != nil {
		http.Error(w, "failed to encode report", http.StatusInternalServerError)
	}
}

func (s *Server) handleReportText(w http.ResponseWriter, req *http.Request) {
	s.mu.RLock()
	r := s.latest
	s.mu.RUnlock()

	if r == nil {
		http.Error(w, "no report available yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, r.String())
}
