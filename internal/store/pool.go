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

// Package store holds the downstream database layer: the batch
// upserter and the checkpoint store, both backed by a single pgxpool
// connection pool.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Open opens a connection pool against connectString and verifies
// connectivity with a ping, retrying while the database is still
// coming up. The returned cleanup function closes the pool.
func Open(ctx context.Context, connectString string) (*pgxpool.Pool, func(), error) {
	cfg, err := pgxpool.ParseConfig(connectString)
	if err != nil {
		return nil, nil, errors.Wrap(err, "store: parse connection string")
	}
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "store: open pool")
	}

	const maxPingAttempts = 10
	var pingErr error
	for attempt := 1; attempt <= maxPingAttempts; attempt++ {
		if pingErr = pool.Ping(ctx); pingErr == nil {
			break
		}
		log.WithError(pingErr).Warn("store: waiting for database to become ready")
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if pingErr != nil {
		pool.Close()
		return nil, nil, errors.Wrap(pingErr, "store: could not ping database")
	}

	return pool, pool.Close, nil
}
