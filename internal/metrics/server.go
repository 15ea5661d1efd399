// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports whether a registered dependency is still sound.
// Callers close over their own state (a session.Manager, a loaded
// config) rather than this package importing theirs.
type HealthCheck func() error

var (
	healthMu     sync.RWMutex
	healthChecks = map[string]HealthCheck{}
)

// RegisterHealthCheck registers name under /healthz. cmd/nettask-server
// calls this for the checks it can perform without this package
// depending on pkg/session.
func RegisterHealthCheck(name string, check HealthCheck) {
	healthMu.Lock()
	defer healthMu.Unlock()
	healthChecks[name] = check
}

// Handler returns the HTTP handler serving Prometheus metrics in
// OpenMetrics format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

type healthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// handleHealthz runs every registered HealthCheck and reports
// unhealthy (503) if any of them errors.
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	healthMu.RLock()
	checks := make(map[string]HealthCheck, len(healthChecks))
	for name, check := range healthChecks {
		checks[name] = check
	}
	healthMu.RUnlock()

	status := healthStatus{Status: "healthy", Timestamp: time.Now().UTC(), Checks: map[string]string{}}
	for name, check := range checks {
		if err := check(); err != nil {
			status.Status = "unhealthy"
			status.Checks[name] = err.Error()
		} else {
			status.Checks[name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// StartServer starts a standalone HTTP server exposing /metrics for
// Prometheus scraping and /healthz for the checks RegisterHealthCheck
// has accumulated.
func StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/healthz", handleHealthz)

	return http.ListenAndServe(addr, mux)
}
