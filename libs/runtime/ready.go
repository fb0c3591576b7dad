package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

// CheckAll runs every check with a per-check timeout and returns the
// failures keyed by check name.
func CheckAll(ctx context.Context, checks ...ReadyCheck) map[string]string {
	failures := map[string]string{}
	for _, check := range checks {
		if check.Check == nil {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check.Check(cctx)
		cancel()
		if err != nil {
			name := check.Name
			if name == "" {
				name = "dependency"
			}
			failures[name] = err.Error()
		}
	}
	return failures
}

// Ready collapses CheckAll into a single error, nil when everything passes.
func Ready(ctx context.Context, checks ...ReadyCheck) error {
	if failures := CheckAll(ctx, checks...); len(failures) > 0 {
		return errors.New("dependencies not ready")
	}
	return nil
}

func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		failures := CheckAll(r.Context(), checks...)
		w.Header().Set("Content-Type", "application/json")
		if len(failures) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "unavailable", "failures": failures})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})
	return mux
}
