/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Seednode/mathlobby/coordinator"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config, log zerolog.Logger, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("mathlobby v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logServe(log, r, "version page", written, startTime)
	}
}

// newRouter wires every HTTP route onto a fresh router. registry may be nil,
// in which case no metrics endpoint is served.
func newRouter(cfg *Config, log zerolog.Logger, lobby *coordinator.Coordinator, registry *prometheus.Registry, errs chan<- error) *httprouter.Router {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		log.Error().Str("component", "SERVE").Interface("panic", i).Str("path", r.URL.Path).Msg("handler panicked")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		_, _ = io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	mux.GET(cfg.prefix+"/ws", serveSocket(cfg, log, lobby))

	mux.GET(cfg.prefix+"/lobby", serveLobby(cfg, log, lobby, errs))

	mux.POST(cfg.prefix+"/sessions/:session/score", serveScore(cfg, log, lobby, errs))

	mux.POST(cfg.prefix+"/sessions/:session/complete", serveComplete(cfg, log, lobby))

	mux.GET(cfg.prefix+"/qr", serveQR(cfg, log, errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, log, errs))

	if registry != nil {
		registerMetricsHandler(cfg, mux, registry)
	}

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	return mux
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return eris.Wrapf(err, "invalid TZ %q", timeZone)
		}
	}

	log := newLogger(cfg, os.Stderr)

	log.Info().Str("component", "START").Msgf("mathlobby v%s", releaseVersion)

	var registry *prometheus.Registry
	var registerer prometheus.Registerer
	if cfg.metrics {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registerer = registry
	}

	lobby := coordinator.New(coordinator.Options{
		Logger:        log,
		Metrics:       coordinator.NewMetrics(registerer),
		HistorySize:   cfg.historySize,
		SendBuffer:    cfg.sendBuffer,
		RateLimit:     rate.Limit(cfg.rateLimit),
		RateBurst:     cfg.rateBurst,
		DefaultAvatar: cfg.defaultAvatar,
	})

	// The coordinator outlives the listener so in-flight sockets are closed
	// through their outboxes after Shutdown returns.
	lobbyCtx, stopLobby := context.WithCancel(context.Background())
	defer stopLobby()

	go func() {
		_ = lobby.Run(lobbyCtx)
	}()

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	errs := make(chan error, 64)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           newRouter(cfg, log, lobby, registry, errs),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	serveErr := make(chan error, 1)

	go func() {
		var err error

		log.Info().Str("component", "SERVE").Msgf("Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)

		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-errs:
			log.Debug().Str("component", "SERVE").Err(err).Msg("write failed")
		case err := <-serveErr:
			runErr = eris.Wrap(err, "listener failed")
			break loop
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	stopLobby()
	<-lobby.Done()

	log.Info().Str("component", "STOP").Msg("mathlobby stopped")

	return runErr
}
