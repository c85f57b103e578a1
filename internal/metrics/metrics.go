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

// Package metrics declares the Prometheus metrics emitted by the
// scheduler and slice executor, grounded on the teacher's
// internal/staging/stage/metrics.go.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ResourceLabels tags every metric below with the resource stream.
var ResourceLabels = []string{"resource"}

// LatencyBuckets are the histogram buckets shared by all duration
// metrics in this package.
var LatencyBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300}

var (
	SlicePagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_slice_pages_fetched_total",
		Help: "the number of OData pages fetched per resource",
	}, ResourceLabels)

	SliceRecordsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_slice_records_upserted_total",
		Help: "the number of records upserted per resource",
	}, ResourceLabels)

	SliceCapHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_slice_cap_hits_total",
		Help: "the number of slices that saturated the upstream's per-filter record cap",
	}, ResourceLabels)

	SliceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_slice_duration_seconds",
		Help:    "the length of time it took to run one slice to completion",
		Buckets: LatencyBuckets,
	}, ResourceLabels)

	WindowsDeferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_windows_deferred_total",
		Help: "the number of windows deferred for drill-down because they saturated the cap",
	}, ResourceLabels)

	PathologicalHours = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_pathological_hours_total",
		Help: "the number of hourly sub-windows that still saturated the cap after drill-down",
	}, ResourceLabels)
)
