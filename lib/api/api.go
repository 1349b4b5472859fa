// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package api implements the WebDAV-flavored HTTP surface: method
// dispatch, the custom SUBSCRIBE long-poll verb, and the headers every
// response carries.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"tdserver/lib/core"
	"tdserver/lib/logger"
	"tdserver/lib/svcutil"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var l = logger.DefaultLogger.NewFacility("api", "HTTP API")

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tdserver_http_requests_total",
		Help: "Total HTTP requests, by method and status class.",
	}, []string{"method", "status"})

	subscribeWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tdserver_subscribe_wait_seconds",
		Help:    "Time a SUBSCRIBE request spent waiting before it resolved.",
		Buckets: []float64{0, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 90},
	})
)

const allowedMethods = "GET,HEAD,OPTIONS,PUT,PROPFIND,MKCOL,DELETE,SUBSCRIBE,EDITOR"

// Service serves the API over HTTP and implements suture.Service so it
// can be supervised alongside the rest of the process.
type Service struct {
	addr string
	core *core.Core
}

func New(addr string, c *core.Core) *Service {
	return &Service{addr: addr, core: c}
}

// Serve listens and serves until ctx is cancelled. A bind failure is
// reported as a svcutil.FatalErr with ExitError, since suture retrying the
// same listen on the same address is never going to succeed.
func (s *Service) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return svcutil.AsFatalErr(err, svcutil.ExitError)
	}
	defer listener.Close()

	var handler http.Handler = s.buildMux()
	if s.core.AuthEnabled() {
		handler = basicAuthMiddleware(s.core, handler)
	}
	handler = davHeadersMiddleware(handler)
	handler = metricsMiddleware(handler)

	srv := &http.Server{
		Handler:  handler,
		ErrorLog: log.New(io.Discard, "", 0),
	}

	l.Infoln("API listening on", listener.Addr())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		l.Debugln("shutting down")
	case err = <-serveErr:
		l.Warnln("API:", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
	}

	if ctx.Err() != nil {
		// Cancelled by our own caller: this isn't a failure suture should
		// act on by restarting us.
		return svcutil.NoRestartErr(nil)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return svcutil.AsFatalErr(err, svcutil.ExitError)
	}
	return nil
}

func (s *Service) String() string {
	return fmt.Sprintf("api.Service(%s)", s.addr)
}

func (s *Service) buildMux() http.Handler {
	mux := httprouter.New()
	mux.HandleMethodNotAllowed = true

	// httprouter cannot hold a static "/metrics" route beside the "/*path"
	// catch-all, so the GET handler dispatches that one path itself.
	mux.HandlerFunc(http.MethodGet, "/*path", func(w http.ResponseWriter, r *http.Request) {
		if requestPath(r) == "/metrics" {
			promhttp.Handler().ServeHTTP(w, r)
			return
		}
		s.handleGet(w, r)
	})
	mux.HandlerFunc(http.MethodHead, "/*path", s.handleHead)
	mux.HandlerFunc(http.MethodPut, "/*path", s.handlePut)
	mux.HandlerFunc(http.MethodDelete, "/*path", s.handleDelete)
	mux.HandlerFunc(http.MethodOptions, "/*path", s.handleOptions)
	mux.HandlerFunc("PROPFIND", "/*path", s.handlePropfind)
	mux.HandlerFunc("MKCOL", "/*path", s.handleMkcol)
	mux.HandlerFunc("SUBSCRIBE", "/*path", s.handleSubscribe)
	mux.HandlerFunc("EDITOR", "/*path", s.handleEditor)

	return mux
}

func davHeadersMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, post-check=0, pre-check=0")
		w.Header().Set("DAV", "1")
		h.ServeHTTP(w, r)
	})
}

func metricsMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(sw, r)
		requestsTotal.WithLabelValues(r.Method, statusClass(sw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush lets the long-poll SUBSCRIBE handler flush headers before it
// blocks, even though it only ever sees the wrapped statusWriter.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func statusClass(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
