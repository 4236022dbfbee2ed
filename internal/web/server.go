package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"rtkbase/internal/supervisor"
)

// StatusFunc supplies the current process health snapshot.
type StatusFunc func() supervisor.Snapshot

// Handler serves the health/metrics API: current link state, subscriber
// count and per-session drop counters.
func Handler(status StatusFunc) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap := statusResponse{
			Service:  "rtkbase",
			NowUTC:   time.Now().UTC().Format(time.RFC3339Nano),
			Snapshot: status(),
		}
		b, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			http.Error(w, "marshal failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
		_, _ = w.Write([]byte("\n"))
	})

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{\"ok\":true}\n"))
	})

	return mux
}

type statusResponse struct {
	Service string `json:"service"`
	NowUTC  string `json:"now_utc"`
	supervisor.Snapshot
}

// Serve runs the health HTTP server until ctx is cancelled.
func Serve(ctx context.Context, listenAddr string, status StatusFunc) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(status),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
