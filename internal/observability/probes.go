package observability

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
)

const (
	probeUp       = "up"
	probeDown  = "down: "
	livenessReply = "ok"
)

// ReadinessReport is the readiness body: one entry per checker, "up" or
// "down: <error>".
type ReadinessReport struct {
	Status map[string]string `json:"status"`
}

type probeResult struct {
	name string
	err  error
}

func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(livenessReply))
}

// readiness answers 200 only when every checker passes within the probe
// timeout. Checkers run concurrently.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	report, ready := s.probe(r.Context())

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	render.Status(r, status)
	render.JSON(w, r, report)
}

func (s *Server) probe(ctx context.Context) (ReadinessReport, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	results := make(chan probeResult, len(s.checkers))
	for _, c := range s.checkers {
		go func() {
			results <- probeResult{name: c.Name(), err: c.Check(ctx)}
		}()
	}

	report := ReadinessReport{Status: make(map[string]string, len(s.checkers))}
	ready := true
	for range s.checkers {
		res := <-results
		if res.err == nil {
			report.Status[res.name] = probeUp
			continue
		}
		ready = false
		report.Status[res.name] = probeDown + res.err.Error()
		// The orchestrator retries; a single failure is not page-worthy.
		s.logger.Warn("readiness probe failed",
			slog.String("component", res.name),
			slog.String("error", res.err.Error()),
		)
	}
	return report, ready
}
