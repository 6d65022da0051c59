package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// startDebugServer exposes the runtime's introspection surface:
// prometheus metrics, a human-readable status page, and a liveness
// probe. Listen failures are logged, not fatal; the debug surface is
// optional.
func startDebugServer(a *app, reg *prometheus.Registry) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	start := time.Now()
	r.Get("/statusz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "keel %s\n", version)
		fmt.Fprintf(w, "uptime:      %s\n", time.Since(start).Round(time.Second))
		fmt.Fprintf(w, "app time:    %s\n", a.ctx.Clock.Now().Round(time.Millisecond))
		fmt.Fprintf(w, "paused:      %v\n", a.group.Paused())
		fmt.Fprintf(w, "last frame:  %d\n", a.lastFrame.Load())
		fmt.Fprintf(w, "stall marks: %d\n", a.frameMissed.Load())
	})

	srv := &http.Server{
		Addr:              a.cfg.DebugAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.ctx.Go("debug http", func() {
		a.ctx.Log.Info().Str("addr", a.cfg.DebugAddr).Msg("debug server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.ctx.Log.Error().Err(err).Msg("debug server failed")
		}
	})
}
