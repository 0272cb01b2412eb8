// Package web serves the operator status surface: JSON status, recent logs,
// a live cycle stream and Prometheus metrics.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

func Handler(status *Status, logs *LogBuffer, cycles *CycleBroadcaster, metrics *Metrics) http.Handler {
	if status == nil {
		status = NewStatus()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, status.Snapshot(time.Now().UTC()))
	})
	if logs != nil {
		r.Method(http.MethodGet, "/api/logs", logs)
	}
	if cycles != nil {
		r.Method(http.MethodGet, "/api/cycles", cycles)
	}
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		snap := status.Snapshot(time.Now().UTC())
		c := snap.Control
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>UUV stabilizer</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>UUV stabilizer</h1>")
		_, _ = fmt.Fprintf(w, "<p>See <a href=\"/api/status\">/api/status</a>, <a href=\"/api/logs?format=text\">/api/logs</a>, <a href=\"/metrics\">/metrics</a>.</p>")
		_, _ = fmt.Fprintf(w, "<pre>state=%s\narmed=%v\ndetected=%v\ncycles=%d\npwm forward=%d yaw=%d lateral=%d vertical=%d</pre>",
			c.State, c.Armed, c.Detected, c.Cycles, c.PWM.Forward, c.PWM.Yaw, c.PWM.Lateral, c.PWM.Vertical)
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return r
}

func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
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
