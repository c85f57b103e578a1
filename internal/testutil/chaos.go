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

// Package testutil provides fakes and fault-injection wrappers used
// across this module's tests: a fake page fetcher and upserter, and a
// chaos wrapper that injects errors at a configurable rate so the
// abort and fail-fast paths can be exercised.
package testutil

import (
	"context"
	"math/rand"

	"github.com/swander00/real-estate-backend/internal/odata"
)

// ErrChaos identifies an injected chaos failure. ChaosFetcher does not
// return it: its injected failure is an *odata.TransportError with
// status 503.
var ErrChaos = errChaos{}

type errChaos struct{}

func (errChaos) Error() string { return "testutil: injected chaos failure" }

// ChaosFetcher wraps a scheduler.PageFetcher and injects a
// non-CapExceeded transport failure with probability Prob on each
// call, otherwise delegating to Delegate. It lets tests exercise the
// slice executor's abort-on-transport-error path without a flaky real
// transport; the injected error is not retried.
type ChaosFetcher struct {
	Delegate interface {
		FetchPage(ctx context.Context, endpoint, credential string, top, skip int, filter, orderBy string) (odata.Page, error)
	}
	Prob float32
	Rand *rand.Rand
}

func (c *ChaosFetcher) FetchPage(
	ctx context.Context, endpoint, credential string, top, skip int, filter, orderBy string,
) (odata.Page, error) {
	if c.chance() < c.Prob {
		return odata.Page{}, &odata.TransportError{StatusCode: 503, Body: "chaos"}
	}
	return c.Delegate.FetchPage(ctx, endpoint, credential, top, skip, filter, orderBy)
}

func (c *ChaosFetcher) chance() float32 {
	if c.Rand != nil {
		return c.Rand.Float32()
	}
	return rand.Float32()
}
