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

// Package msort contains utility functions for de-duplicating a batch
// of rows by identity before they reach the run-scoped dedup set. A
// single page can itself carry more than one row for the same
// identity when the upstream's cap-boundary retries overlap;
// collapsing those first keeps the dedup set's "unique" count
// meaningful.
package msort

import (
	"github.com/swander00/real-estate-backend/internal/model"
	"github.com/swander00/real-estate-backend/internal/normalize"
)

// UniqueByKey implements a "last one wins" approach to removing rows
// with duplicate identities from the input slice. If two rows share
// the same identity, the one with the later timestamp is kept. If two
// rows share both an identity and a timestamp, exactly one of the two
// is kept, chosen arbitrarily.
//
// The modified slice is returned.
func UniqueByKey(rows []model.Row, conflictKey []string, tsField string, altTsFields []string) []model.Row {
	seenIdx := make(map[string]int, len(rows))

	// Iterate backwards, moving winners to the rear, so the return
	// value is a compacted view of the original slice rather than a
	// fresh allocation.
	dest := len(rows)
	for src := len(rows) - 1; src >= 0; src-- {
		key := normalize.IdentityKey(rows[src], conflictKey)

		if curIdx, found := seenIdx[key]; found {
			if laterWins(rows[src], rows[curIdx], tsField, altTsFields) {
				rows[curIdx] = rows[src]
			}
			continue
		}

		dest--
		seenIdx[key] = dest
		rows[dest] = rows[src]
	}

	return rows[dest:]
}

func laterWins(candidate, incumbent model.Row, tsField string, altTsFields []string) bool {
	ct, cok := normalize.TimestampField(candidate, tsField, altTsFields)
	it, iok := normalize.TimestampField(incumbent, tsField, altTsFields)
	if !cok {
		return false
	}
	if !iok {
		return true
	}
	return ct.After(it)
}
