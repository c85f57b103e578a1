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

// Package coordinator orchestrates per-resource sync runs: consulting
// the checkpoint store, choosing a run mode, invoking the scheduler,
// and recording the new checkpoint on success. Implements spec.md
// §4.G.
package coordinator

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/swander00/real-estate-backend/internal/model"
	"github.com/swander00/real-estate-backend/internal/scheduler"
	"github.com/swander00/real-estate-backend/internal/store"
)

// Resources lists the order resources are processed in when more than
// one is selected: IDX, then VOW, then MEDIA.
var Resources = []model.Resource{model.IDX, model.VOW, model.Media}

// RunOptions selects which resources to sync and how.
type RunOptions struct {
	Resources   []model.Resource
	Incremental bool
	FailFast    bool
}

// Coordinator wires together the scheduler and checkpoint store to
// drive one full sync invocation.
type Coordinator struct {
	Scheduler  *scheduler.Scheduler
	Checkpoint store.CheckpointStore
	Descriptor func(model.Resource) (model.Descriptor, bool)
}

// Run executes the sync for each resource in opts.Resources, in the
// canonical IDX -> VOW -> MEDIA order, regardless of the order they
// were supplied in.
//
// On success for a resource, with a non-zero latest timestamp, the
// checkpoint is updated. On failure, the error is logged and the
// coordinator moves on to the next resource, unless opts.FailFast is
// set, in which case Run returns the error immediately.
func (c *Coordinator) Run(ctx context.Context, opts RunOptions) error {
	selected := make(map[model.Resource]bool, len(opts.Resources))
	for _, r := range opts.Resources {
		selected[r] = true
	}

	mode := scheduler.Full
	if opts.Incremental {
		mode = scheduler.Incremental
	}

	for _, resource := range Resources {
		if !selected[resource] {
			continue
		}

		if err := c.runOne(ctx, resource, mode); err != nil {
			log.WithFields(log.Fields{
				"resource": resource,
				"error":    err,
			}).Error("coordinator: resource sync failed")

			if opts.FailFast {
				return err
			}
			continue
		}
	}

	return nil
}

func (c *Coordinator) runOne(ctx context.Context, resource model.Resource, mode scheduler.Mode) error {
	desc, ok := c.Descriptor(resource)
	if !ok {
		log.WithField("resource", resource).Warn("coordinator: no descriptor configured, skipping")
		return nil
	}

	checkpoint, hasCheckpoint, err := c.Checkpoint.Get(ctx, resource)
	if err != nil {
		return err
	}

	result, err := c.Scheduler.RunResource(ctx, desc, mode, checkpoint, hasCheckpoint)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"resource": resource,
		"fetched":  result.Fetched,
		"unique":   result.Unique,
		"upserted": result.Upserted,
		"latest":   result.LatestTS,
	}).Info("coordinator: resource sync complete")

	if !result.LatestTS.IsZero() {
		if err := c.Checkpoint.Set(ctx, resource, result.LatestTS); err != nil {
			// Checkpoint write failures are logged as a warning and do
			// not fail the resource run: the data is already
			// persisted, and a lost checkpoint only causes the next
			// run to reprocess some already-idempotent records.
			log.WithFields(log.Fields{
				"resource": resource,
				"error":    err,
			}).Warn("coordinator: failed to persist checkpoint")
		}
	}

	return nil
}
