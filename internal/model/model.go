// Package model contains the data types shared by the windowed
// ingestion engine: resource descriptors, time windows, and slice
// results. Keeping them in one package mirrors the teacher's own
// internal/types package, which exists so the rest of the code can
// compose around a small, stable vocabulary.
package model

import "time"

// Resource names the three logical streams this engine ingests.
type Resource string

// The three resource streams known to the sync engine.
const (
	IDX   Resource = "IDX"
	VOW   Resource = "VOW"
	Media Resource = "MEDIA"
)

// Descriptor is the static configuration for one resource stream.
type Descriptor struct {
	Name Resource

	Endpoint   string
	Credential string

	// TimestampField is used for window predicates and ordering.
	TimestampField string
	// AltTimestampFields are checked, in order, when a record is
	// missing TimestampField. The upstream is not perfectly
	// consistent about which field carries the modification time.
	AltTimestampFields []string

	// ConflictKey is the column set that defines row identity.
	ConflictKey []string

	// FloorDate is the earliest timestamp a run will consider.
	FloorDate time.Time

	// Table is the destination table name.
	Table string

	// HighCardinality resources (media, VOW) are known to exceed the
	// upstream's cap; the window scheduler gives them the 7-day
	// backward-walk window. The choice between the incremental attempt
	// and the walk depends only on the run mode and checkpoint.
	HighCardinality bool

	// WindowWidth, when positive, overrides the backward-walk window
	// size for this resource. Zero selects the default: 7 days for
	// media or HighCardinality resources, 30 days otherwise.
	WindowWidth time.Duration
}

// Window is a half-open interval [Start, End) over a resource's
// timestamp field.
type Window struct {
	Start time.Time
	End   time.Time
}

// Deferred marks a window that saturated the upstream cap and is
// queued for drill-down into finer sub-windows.
type Deferred struct {
	Window
	PartialCount int
}

// SliceResult is returned by the slice executor for one (filter,
// ordering) request.
type SliceResult struct {
	Fetched  int
	Unique   int
	Upserted int

	OldestTS time.Time
	LatestTS time.Time

	HitLimit bool
}

// ResourceResult is returned by the window scheduler for one resource
// run: the combined totals over the initial attempt, the backward
// walk, and any drill-downs.
type ResourceResult struct {
	Fetched  int
	Unique   int
	Upserted int
	LatestTS time.Time
}

// Row is a single normalized record ready to be upserted. Column names
// match the destination table's schema.
type Row map[string]any
