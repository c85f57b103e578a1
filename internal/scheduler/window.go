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

package scheduler

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/swander00/real-estate-backend/internal/metrics"
	"github.com/swander00/real-estate-backend/internal/model"
	"github.com/swander00/real-estate-backend/internal/store"
)

// Mode selects between a full date-partitioned walk and the
// incremental optimistic single-predicate attempt.
type Mode int

// The two run modes accepted by RunResource.
const (
	Full Mode = iota
	Incremental
)

const (
	maxConsecutiveEmpty = 10
	maxWindowsProcessed = 500
)

// Scheduler runs one resource's full ingestion: the initial window
// set, the backward walk, and any deferred-window drill-down.
// Implements spec.md §4.F.
type Scheduler struct {
	Fetcher   PageFetcher
	Upserter  store.Upserter
	BatchSize int

	// Now is injected so tests can pin "now"; production callers
	// leave it nil and time.Now is used.
	Now func() time.Time
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// RunResource enumerates every matching record for desc and returns
// the combined totals. checkpoint/hasCheckpoint carry the resource's
// prior high-water mark, if any.
func (s *Scheduler) RunResource(
	ctx context.Context, desc model.Descriptor, mode Mode, checkpoint time.Time, hasCheckpoint bool,
) (model.ResourceResult, error) {
	var result model.ResourceResult
	dedup := DedupSet{}

	if mode == Incremental && hasCheckpoint {
		filter := fmt.Sprintf("%s gt %s", desc.TimestampField, formatISO(checkpoint))
		sr, err := RunSlice(ctx, s.Fetcher, s.Upserter, desc, filter, dedup, s.BatchSize, false)
		if err != nil {
			return result, err
		}
		combine(&result, sr)

		if !sr.HitLimit {
			return result, nil
		}

		// Fall through to a date-partitioned drill-down covering
		// [checkpoint, upper). The canonical cap signal is an
		// immediate CapExceededError, which carries zero records, so
		// OldestTS is still the zero value here; drilling only when
		// OldestTS happened to advance would silently drop the entire
		// overflow interval. Fall back to now+1day in that case so the
		// drill-down still covers everything past the checkpoint.
		upper := sr.OldestTS
		if upper.IsZero() {
			upper = s.now().Add(24 * time.Hour)
		}
		if upper.After(checkpoint) {
			if err := s.drillDown(ctx, desc, model.Window{Start: checkpoint, End: upper}, dedup, &result); err != nil {
				return result, err
			}
		}
		return result, nil
	}

	if err := s.backwardWalk(ctx, desc, dedup, &result); err != nil {
		return result, err
	}
	return result, nil
}

// backwardWalk implements the date-partitioned walk from now+1day
// backward to desc.FloorDate, deferring any window that saturates the
// cap for later drill-down.
func (s *Scheduler) backwardWalk(
	ctx context.Context, desc model.Descriptor, dedup DedupSet, result *model.ResourceResult,
) error {
	width := windowWidth(desc)
	end := s.now().Add(24 * time.Hour)
	start := end.Add(-width)
	reachedFloor := false
	if !start.After(desc.FloorDate) {
		start = desc.FloorDate
		reachedFloor = true
	}

	var deferred []model.Deferred
	emptyStreak := 0
	windowsProcessed := 0

	for {
		if windowsProcessed >= maxWindowsProcessed {
			log.WithField("resource", desc.Name).Warn("scheduler: reached safety cap on windows processed")
			break
		}

		window := model.Window{Start: start, End: end}
		filter := windowFilter(desc.TimestampField, start, end)
		sr, err := RunSlice(ctx, s.Fetcher, s.Upserter, desc, filter, dedup, s.BatchSize, false)
		if err != nil {
			return err
		}
		windowsProcessed++
		combine(result, sr)

		if sr.HitLimit {
			deferred = append(deferred, model.Deferred{Window: window, PartialCount: sr.Fetched})
			metrics.WindowsDeferred.WithLabelValues(string(desc.Name)).Inc()
			emptyStreak = 0
		} else if sr.Fetched == 0 {
			emptyStreak++
		} else {
			emptyStreak = 0
		}

		if reachedFloor {
			break
		}
		if emptyStreak >= maxConsecutiveEmpty {
			break
		}

		end = start
		start = end.Add(-width)
		if !start.After(desc.FloorDate) {
			start = desc.FloorDate
			reachedFloor = true
		}
	}

	for _, win := range deferred {
		if err := s.drillDown(ctx, desc, win.Window, dedup, result); err != nil {
			return err
		}
	}
	return nil
}

// drillDown re-partitions a saturated window into daily, then hourly,
// sub-windows. A sub-window that is itself saturated at the hourly
// granularity is accepted as a partial extraction: the pathological-
// hour case described in spec.md §4.F.
func (s *Scheduler) drillDown(
	ctx context.Context, desc model.Descriptor, win model.Window, dedup DedupSet, result *model.ResourceResult,
) error {
	for day := win.Start; day.Before(win.End); day = day.Add(24 * time.Hour) {
		dayEnd := day.Add(24 * time.Hour)
		if dayEnd.After(win.End) {
			dayEnd = win.End
		}

		filter := windowFilter(desc.TimestampField, day, dayEnd)
		sr, err := RunSlice(ctx, s.Fetcher, s.Upserter, desc, filter, dedup, s.BatchSize, false)
		if err != nil {
			return err
		}
		combine(result, sr)

		if !sr.HitLimit {
			continue
		}

		for hour := day; hour.Before(dayEnd); hour = hour.Add(time.Hour) {
			hourEnd := hour.Add(time.Hour)
			if hourEnd.After(dayEnd) {
				hourEnd = dayEnd
			}

			hf := windowFilter(desc.TimestampField, hour, hourEnd)
			hsr, err := RunSlice(ctx, s.Fetcher, s.Upserter, desc, hf, dedup, s.BatchSize, false)
			if err != nil {
				return err
			}
			combine(result, hsr)

			if hsr.HitLimit {
				metrics.PathologicalHours.WithLabelValues(string(desc.Name)).Inc()
				log.WithFields(log.Fields{
					"resource":  desc.Name,
					"hourStart": hour,
					"hourEnd":   hourEnd,
				}).Error("scheduler: hour still saturated after drill-down; accepting partial extraction")
			}
		}
	}
	return nil
}

// combine folds one slice's result into the resource-level totals.
func combine(result *model.ResourceResult, sr model.SliceResult) {
	result.Fetched += sr.Fetched
	result.Unique += sr.Unique
	result.Upserted += sr.Upserted
	if sr.LatestTS.After(result.LatestTS) {
		result.LatestTS = sr.LatestTS
	}
}

// windowWidth selects the backward-walk window size per spec.md §4.F:
// 7 days for media, 30 days for listings, and 7 days for any resource
// known to carry more than 1,000,000 records.
func windowWidth(desc model.Descriptor) time.Duration {
	if desc.WindowWidth > 0 {
		return desc.WindowWidth
	}
	if desc.Name == model.Media || desc.HighCardinality {
		return 7 * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}

func windowFilter(field string, start, end time.Time) string {
	return fmt.Sprintf("%s ge %s and %s lt %s", field, formatISO(start), field, formatISO(end))
}

func formatISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
