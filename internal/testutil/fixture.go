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

package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/swander00/real-estate-backend/internal/model"
	"github.com/swander00/real-estate-backend/internal/odata"
)

// Fixture bundles the fakes a scheduler or coordinator test needs,
// grounded on the teacher's sinktest.Fixture: a single struct that
// hands back every fake collaborator a test will want to inspect.
type Fixture struct {
	Fetcher    *FakeFetcher
	Upserter   *FakeUpserter
	Checkpoint *FakeCheckpointStore
}

// NewFixture returns a Fixture with empty fakes ready to be populated
// by the calling test.
func NewFixture() *Fixture {
	return &Fixture{
		Fetcher:    &FakeFetcher{Pages: map[string][]odata.Page{}},
		Upserter:   &FakeUpserter{},
		Checkpoint: &FakeCheckpointStore{values: map[model.Resource]time.Time{}},
	}
}

// FakeFetcher serves scripted pages keyed by the filter string, so a
// test can arrange exactly which records each window's query returns
// without a real HTTP transport.
type FakeFetcher struct {
	mu sync.Mutex
	// Pages maps a filter string to the sequence of pages returned for
	// successive calls against that filter (keyed by call index).
	Pages map[string][]odata.Page
	// Err, if set, is returned verbatim instead of a page for calls
	// against this filter.
	Err map[string]error

	calls map[string]int
}

func (f *FakeFetcher) FetchPage(
	_ context.Context, _, _ string, _, _ int, filter, _ string,
) (odata.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.calls == nil {
		f.calls = map[string]int{}
	}
	if err, ok := f.Err[filter]; ok {
		return odata.Page{}, err
	}

	pages := f.Pages[filter]
	idx := f.calls[filter]
	f.calls[filter]++
	if idx >= len(pages) {
		return odata.Page{Records: nil}, nil
	}
	return pages[idx], nil
}

// FakeUpserter records every batch it receives so tests can assert on
// row counts and ordering-independent contents.
type FakeUpserter struct {
	mu      sync.Mutex
	Batches []FakeBatch
}

// FakeBatch is one recorded call to Upsert.
type FakeBatch struct {
	Table       string
	Rows        []model.Row
	ConflictKey []string
}

func (u *FakeUpserter) Upsert(
	_ context.Context, table string, rows []model.Row, conflictKey []string,
) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.Batches = append(u.Batches, FakeBatch{Table: table, Rows: rows, ConflictKey: conflictKey})
	return int64(len(rows)), nil
}

// TotalRows returns the number of rows across every recorded batch.
func (u *FakeUpserter) TotalRows() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, b := range u.Batches {
		n += len(b.Rows)
	}
	return n
}

// FakeCheckpointStore is an in-memory CheckpointStore.
type FakeCheckpointStore struct {
	mu     sync.Mutex
	values map[model.Resource]time.Time
}

func (c *FakeCheckpointStore) Get(_ context.Context, resource model.Resource) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.values[resource]
	return ts, ok, nil
}

func (c *FakeCheckpointStore) Set(_ context.Context, resource model.Resource, ts time.Time) error {
	if ts.IsZero() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[resource] = ts
	return nil
}
