// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The gemcutter command runs the gem hosting server: gem publishes on
// /api/v1/gems and index/artifact delivery on everything else.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ddollar/gemcutter/pkg/api"
	"github.com/ddollar/gemcutter/pkg/config"
	"github.com/ddollar/gemcutter/pkg/cutter"
	"github.com/ddollar/gemcutter/pkg/db"
	"github.com/ddollar/gemcutter/pkg/hostess"
	"github.com/ddollar/gemcutter/pkg/indexer"
	"github.com/ddollar/gemcutter/pkg/jobs"
	"github.com/ddollar/gemcutter/pkg/vault"
)

var (
	configPath = flag.String("config", config.DefaultFile, "path to config file")
	listenAddr = flag.String("listen", "", "listen address (overrides config)")
	addUser    = flag.String("add-user", "", "create a user with the given login, print their API key, and exit")
	importer   = flag.Bool("importer", false, "with -add-user, mark the user as a trusted importer")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *listenAddr != "" {
		cfg.Listen = *listenAddr
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	store := db.NewStore(filepath.Join(cfg.DataDir, "gemcutter.json"))

	if *addUser != "" {
		u, err := store.AddUser(*addUser, *importer)
		if err != nil {
			log.Fatalf("add user: %v", err)
		}
		fmt.Printf("%s\t%s\n", u.Login, u.APIKey)
		return
	}

	v, err := newVault(cfg)
	if err != nil {
		log.Fatalf("init %s vault: %v", cfg.Backend, err)
	}

	queue := jobs.NewQueue(256)
	builder := indexer.New(store, v)
	c := cutter.New(store, v, queue, builder)

	mux := http.NewServeMux()
	mux.Handle("/api/", api.New(store, c))
	mux.Handle("/", hostess.New(v, c, cfg.Redirect))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobsCtx, stopJobs := context.WithCancel(context.Background())
	jobsDone := make(chan struct{})
	go func() {
		defer close(jobsDone)
		queue.Run(jobsCtx, cfg.Workers)
	}()

	srv := &http.Server{Addr: cfg.Listen, Handler: mux}
	go func() {
		log.Printf("gemcutter listening on %s (backend=%s)", cfg.Listen, cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}

	// Stop the workers only after the server has drained; in-flight
	// publishes may still enqueue rebuilds.
	stopJobs()
	select {
	case <-jobsDone:
	case <-time.After(10 * time.Second):
		log.Printf("job workers did not stop in time")
	}
}

func newVault(cfg *config.Config) (vault.Vault, error) {
	switch cfg.Backend {
	case config.BackendS3:
		return vault.NewS3(context.Background(), cfg.S3Config())
	default:
		return vault.NewFS(filepath.Join(cfg.DataDir, "vault"))
	}
}
