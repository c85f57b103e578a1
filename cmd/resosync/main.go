// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Command resosync ingests IDX, VOW, and MEDIA records from a RESO
// OData feed into a local relational store.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/swander00/real-estate-backend/internal/config"
	"github.com/swander00/real-estate-backend/internal/coordinator"
	"github.com/swander00/real-estate-backend/internal/odata"
	"github.com/swander00/real-estate-backend/internal/scheduler"
	"github.com/swander00/real-estate-backend/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.FromEnv()
	if err != nil {
		log.WithError(err).Error("resosync: failed to load configuration")
		return 1
	}

	cfg.Bind(pflag.CommandLine)
	pflag.Parse()

	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	if err := cfg.Preflight(); err != nil {
		log.WithError(err).Error("resosync: invalid configuration")
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("resosync: received shutdown signal, cancelling in-flight requests")
		cancel()
	}()

	pool, closePool, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Error("resosync: failed to open database")
		return 1
	}
	defer closePool()

	checkpoints := &store.PoolCheckpointStore{Pool: pool}
	if err := checkpoints.EnsureSchema(ctx); err != nil {
		log.WithError(err).Error("resosync: failed to ensure sync_log schema")
		return 1
	}

	upserter := &store.PoolUpserter{Pool: pool}
	fetcher := odata.NewFetcher(http.DefaultClient)

	sched := &scheduler.Scheduler{
		Fetcher:   fetcher,
		Upserter:  upserter,
		BatchSize: cfg.BatchSize,
	}

	coord := &coordinator.Coordinator{
		Scheduler:  sched,
		Checkpoint: checkpoints,
		Descriptor: cfg.Descriptor,
	}

	opts := coordinator.RunOptions{
		Resources:   cfg.SelectedResources(),
		Incremental: cfg.Incremental,
		FailFast:    cfg.FailFast,
	}

	if err := coord.Run(ctx, opts); err != nil {
		log.WithError(err).Error("resosync: sync run failed")
		return 1
	}

	return 0
}
