package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

const checkTimeout = 5 * time.Second

// Serving modes reported by the health handlers.
const (
	// ServingFull: hits come from the store, misses from the origin.
	ServingFull = "store+origin"
	// ServingOriginOnly: the store is unreachable, every request computes.
	ServingOriginOnly = "origin-only"
	// ServingStoreOnly: the origin circuit is not closed, only hits succeed.
	ServingStoreOnly = "store-only"
	// ServingNone: neither the store nor the origin is usable.
	ServingNone = "none"
)

// componentOf classifies a check by name: "store", "origin:<name>" or
// anything else.
func componentOf(name string) string {
	switch {
	case name == "store":
		return "store"
	case strings.HasPrefix(name, "origin:"):
		return "origin"
	}
	return "service"
}

// serving derives where answers come from. A degraded origin (open or
// half-open circuit) counts as unusable; the store only counts as unusable
// when its check is unhealthy.
func serving(results map[string]Result) string {
	storeOK, originOK := true, true
	for name, r := range results {
		switch componentOf(name) {
		case "store":
			storeOK = storeOK && r.Status != StatusUnhealthy
		case "origin":
			originOK = originOK && r.Status == StatusHealthy
		}
	}
	switch {
	case storeOK && originOK:
		return ServingFull
	case originOK:
		return ServingOriginOnly
	case storeOK:
		return ServingStoreOnly
	}
	return ServingNone
}

// impaired lists the checks that are not healthy, sorted.
func impaired(results map[string]Result) []string {
	var names []string
	for name, r := range results {
		if r.Status != StatusHealthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// LivenessHandler answers 200 while the process is serving HTTP.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("OK"))
	}
}

// ReadinessHandler runs every check and answers in plain text: "OK", or
// the status followed by the serving mode and the impaired checks, e.g.
// "DEGRADED store-only: origin:tmdb". Degraded is still ready.
func ReadinessHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		results := agg.CheckAll(ctx)
		status := agg.OverallStatus(results)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(status.httpCode())
		if status == StatusHealthy {
			_, _ = w.Write([]byte("OK"))
			return
		}
		_, _ = fmt.Fprintf(w, "%s %s: %s",
			strings.ToUpper(status.String()), serving(results), strings.Join(impaired(results), ","))
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string                   `json:"status"`
	Serving   string                   `json:"serving"`
	Impaired  []string                 `json:"impaired,omitempty"`
	Timestamp string                   `json:"timestamp"`
	Checks    map[string]CheckResponse `json:"checks,omitempty"`
}

// CheckResponse is one check in a HealthResponse, and the body of
// GET /health/{check}.
type CheckResponse struct {
	Component string         `json:"component"`
	Critical  bool           `json:"critical"`
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Duration  string         `json:"duration,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func checkResponse(agg *Aggregator, name string, r Result) CheckResponse {
	resp := CheckResponse{
		Component: componentOf(name),
		Critical:  agg.critical(name),
		Status:    r.Status.String(),
		Message:   r.Message,
		Duration:  r.Duration.String(),
		Details:   r.Details,
	}
	if r.Error != nil {
		resp.Error = r.Error.Error()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// DetailedHandler reports every check with its component and criticality,
// plus the serving mode they add up to.
func DetailedHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*checkTimeout)
		defer cancel()

		results := agg.CheckAll(ctx)
		status := agg.OverallStatus(results)

		resp := HealthResponse{
			Status:    status.String(),
			Serving:   serving(results),
			Impaired:  impaired(results),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    make(map[string]CheckResponse, len(results)),
		}
		for name, result := range results {
			resp.Checks[name] = checkResponse(agg, name, result)
		}
		writeJSON(w, status.httpCode(), resp)
	}
}

// SingleCheckHandler runs the check registered as name.
func SingleCheckHandler(agg *Aggregator, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		result, err := agg.Check(ctx, name)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, result.Status.httpCode(), checkResponse(agg, name, result))
	}
}

// RegisterHandlers registers /healthz, /readyz, /health and
// /health/{check} on mux.
func RegisterHandlers(mux *http.ServeMux, agg *Aggregator) {
	mux.HandleFunc("GET /healthz", LivenessHandler())
	mux.HandleFunc("GET /readyz", ReadinessHandler(agg))
	mux.HandleFunc("GET /health", DetailedHandler(agg))
	mux.HandleFunc("GET /health/{check}", func(w http.ResponseWriter, r *http.Request) {
		SingleCheckHandler(agg, r.PathValue("check"))(w, r)
	})
}
