// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command tdserver serves a directory tree over a WebDAV-flavored HTTP API
// with long-poll change notifications, for synchronizing userscripts
// between a browser extension and a working copy on disk.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"tdserver/lib/api"
	_ "tdserver/lib/automaxprocs"
	"tdserver/lib/build"
	"tdserver/lib/config"
	"tdserver/lib/core"
	"tdserver/lib/logger"
	"tdserver/lib/svcutil"

	"github.com/thejerf/suture/v4"
)

var l = logger.DefaultLogger

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(int(svcutil.ExitError))
	}

	if cfg.Debug {
		l.SetDebug("main", true)
		l.SetFlags(logger.DebugFlags)
	}

	l.Infoln(build.LongVersion)

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		l.Warnln("Creating root:", err)
		os.Exit(int(svcutil.ExitError))
	}

	if cfg.Username == "" && cfg.Password == "" && !cfg.NoAuthWarning {
		l.Warnln("Starting without authentication: anyone who can reach this address can read and write", cfg.Path)
	}

	c := core.New(cfg.Path, cfg.MetaTouch, cfg.Username, cfg.Password).WithOpenInEditor(cfg.OpenInEditor)
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	apiSvc := api.New(addr, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	spec := svcutil.SpecWithInfoLogger(l)
	if cfg.Debug {
		spec = svcutil.SpecWithDebugLogger(l)
	}
	sup := suture.New("main", spec)
	sup.Add(apiSvc)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	sup.Add(svcutil.AsService(func(ctx context.Context) error {
		select {
		case <-stop:
			l.Infoln("Shutting down")
			cancel()
		case <-ctx.Done():
		}
		return svcutil.NoRestartErr(nil)
	}, "signal-handler"))
	svcutil.OnSupervisorDone(sup, func() {
		c.Watcher.Stop()
	})

	exitStatus := svcutil.ExitSuccess
	if err := <-sup.ServeBackground(ctx); err != nil && !errors.Is(err, context.Canceled) {
		var fatalErr *svcutil.FatalErr
		if errors.As(err, &fatalErr) {
			exitStatus = fatalErr.Status
			l.Warnln("Exiting:", fatalErr.Err)
		} else {
			exitStatus = svcutil.ExitError
			l.Warnln("Exiting:", err)
		}
	}
	os.Exit(exitStatus.AsInt())
}
