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

// Package scheduler contains the slice executor (component E) and the
// window scheduler (component F): together they enumerate every
// record matching a resource's time-windowed predicates despite the
// upstream's 100,000-record-per-filter cap.
package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/swander00/real-estate-backend/internal/metrics"
	"github.com/swander00/real-estate-backend/internal/model"
	"github.com/swander00/real-estate-backend/internal/normalize"
	"github.com/swander00/real-estate-backend/internal/odata"
	"github.com/swander00/real-estate-backend/internal/store"
	"github.com/swander00/real-estate-backend/internal/util/msort"
)

// apiCap is the upstream's hard per-$filter record ceiling.
const apiCap = 100_000

// defaultBatchSize is used when a Descriptor-independent caller
// doesn't override it via Scheduler.BatchSize.
const defaultBatchSize = 5000

// ErrUnexpectedSaturation is returned by RunSlice when fail_on_cap is
// true and the slice hits the upstream's cap. The caller's slice
// result is still valid and should be inspected; this error is purely
// a signal that the caller did not expect saturation at this point.
var ErrUnexpectedSaturation = errors.New("scheduler: slice saturated the cap unexpectedly")

// PageFetcher is the interface the slice executor uses to read pages
// from the upstream feed. odata.Fetcher implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, endpoint, credential string, top, skip int, filter, orderBy string) (odata.Page, error)
}

// DedupSet tracks record identities already processed during one
// resource run. It is owned by the caller (the window scheduler) and
// shared across every slice in that run.
type DedupSet map[string]struct{}

// RunSlice fetches every page of one (filter, ordering) slice,
// deduplicating against dedup and upserting accepted rows in batches.
// It implements spec.md §4.E.
func RunSlice(
	ctx context.Context,
	fetcher PageFetcher,
	upserter store.Upserter,
	desc model.Descriptor,
	filter string,
	dedup DedupSet,
	batchSize int,
	failOnCap bool,
) (model.SliceResult, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	start := time.Now()
	defer func() {
		metrics.SliceDuration.WithLabelValues(string(desc.Name)).Observe(time.Since(start).Seconds())
	}()

	var result model.SliceResult
	skip := 0

	for {
		if skip >= apiCap {
			result.HitLimit = true
			break
		}

		page, err := fetcher.FetchPage(ctx, desc.Endpoint, desc.Credential, batchSize, skip, filter, "")
		if err != nil {
			if _, isCap := err.(*odata.CapExceededError); isCap {
				result.HitLimit = true
				metrics.SliceCapHits.WithLabelValues(string(desc.Name)).Inc()
				if failOnCap {
					return result, ErrUnexpectedSaturation
				}
				break
			}
			return result, errors.Wrap(err, "scheduler: fetch page")
		}
		metrics.SlicePagesFetched.WithLabelValues(string(desc.Name)).Inc()

		result.Fetched += len(page.Records)

		rows := normalize.Batch(page.Records)
		rows = msort.UniqueByKey(rows, desc.ConflictKey, desc.TimestampField, desc.AltTimestampFields)

		var toUpsert []model.Row
		for _, row := range rows {
			if ts, ok := normalize.TimestampField(row, desc.TimestampField, desc.AltTimestampFields); ok {
				if result.OldestTS.IsZero() || ts.Before(result.OldestTS) {
					result.OldestTS = ts
				}
				if ts.After(result.LatestTS) {
					result.LatestTS = ts
				}
			}

			key := normalize.IdentityKey(row, desc.ConflictKey)
			if _, seen := dedup[key]; seen {
				continue
			}
			dedup[key] = struct{}{}
			result.Unique++
			toUpsert = append(toUpsert, row)
		}

		if len(toUpsert) > 0 {
			affected, err := upserter.Upsert(ctx, desc.Table, toUpsert, desc.ConflictKey)
			if err != nil {
				return result, errors.Wrap(err, "scheduler: upsert batch")
			}
			result.Upserted += int(affected)
			metrics.SliceRecordsUpserted.WithLabelValues(string(desc.Name)).Add(float64(affected))
		}

		if len(page.Records) < batchSize {
			// Fewer rows than requested: end of stream.
			break
		}

		skip += len(page.Records)
		if skip >= apiCap {
			result.HitLimit = true
			break
		}
	}

	log.WithFields(log.Fields{
		"resource": desc.Name,
		"filter":   filter,
		"fetched":  result.Fetched,
		"unique":   result.Unique,
		"upserted": result.Upserted,
		"hitLimit": result.HitLimit,
	}).Debug("scheduler: slice complete")

	return result, nil
}
