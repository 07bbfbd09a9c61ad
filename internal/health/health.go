// Package health serves the liveness and readiness endpoints of the ops
// server.
//
//   - /healthz reports that the process is alive and can serve HTTP.
//   - /readyz returns 200 only when every registered [Checker] passes, which
//     for Harken means all pipeline stages are running.
//
// Both responses are JSON objects with a "status" field ("ok" or "fail").
// Readiness responses also carry a "checks" map and, when a depth reporter
// is installed, the current hand-off queue depths.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// ErrNotReady is returned by the checker built with [Ready] while the probed
// component reports itself not ready.
var ErrNotReady = errors.New("not ready")

// Checker is a named readiness check. Check returns nil when the component is
// ready.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Ready adapts a boolean readiness probe such as the pipeline's Ready method.
func Ready(name string, ready func() bool) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if !ready() {
				return ErrNotReady
			}
			return nil
		},
	}
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Queues map[string]int    `json:"queues,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
	depths   func() map[string]int
}

// New creates a [Handler] that evaluates checkers, in order, on each /readyz
// request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// WithQueueDepths installs fn to report queue depths in readiness responses.
// It returns h for chaining.
func (h *Handler) WithQueueDepths(fn func() map[string]int) *Handler {
	h.depths = fn
	return h
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz returns 200 when every checker passes and 503 otherwise. Each
// checker gets its own [checkTimeout] deadline derived from the request.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	if h.depths != nil {
		res.Queues = h.depths()
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
