// Test target for local load runs. It serves the endpoints used by the
// login/profile example flow, with optional latency and error injection.
package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"runtime"
	"time"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	delay := flag.Duration("delay", 0, "added latency per request")
	failRate := flag.Float64("fail-rate", 0, "fraction of requests answered with 500")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	inject := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if *delay > 0 {
				time.Sleep(*delay)
			}
			if *failRate > 0 && rand.Float64() < *failRate {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", inject(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("healthy"))
	}))
	mux.HandleFunc("POST /login", inject(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-" + r.RemoteAddr})
	}))
	mux.HandleFunc("GET /profile", inject(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "name": "load tester"})
	}))

	server := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
	}

	logger.Info("starting test server", "addr", *addr, "cpus", runtime.NumCPU(), "delay", *delay, "failRate", *failRate)
	if err := server.ListenAndServe(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
