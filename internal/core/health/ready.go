package health

import (
	"encoding/json"
	"net/http"
)

// ReadinessReporter is implemented by the run supervisor: ready when it
// has at least one worker, carrying the number of workers currently idle.
type ReadinessReporter interface {
	Readiness() (ready bool, idleWorkers int)
}

func Readiness(rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status      string `json:"status"`
			IdleWorkers int    `json:"idle_workers,omitempty"`
		}
		ready, idle := rr.Readiness()
		out := resp{Status: "not_ready"}
		if ready {
			out.Status = "ready"
			out.IdleWorkers = idle
		}
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
