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

// Package odata fetches single pages from the upstream RESO/OData
// feed, retrying transient transport failures with exponential
// backoff and classifying the upstream's cap-exceeded response as a
// distinct, non-transport error.
package odata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Page is a single page of results from the upstream feed.
type Page struct {
	Records    []map[string]any
	NextLink   string
	TotalCount *int64
}

type rawPage struct {
	Value      []map[string]any `json:"value"`
	NextLink   string           `json:"@odata.nextLink"`
	TotalCount *int64           `json:"@odata.count"`
}

// Fetcher performs single-page GET requests against an OData endpoint.
type Fetcher struct {
	Client *http.Client

	// MaxAttempts bounds the number of transport attempts for one
	// page, including the first. Defaults to 3.
	MaxAttempts int
	// BaseBackoff is the delay before the first retry; it doubles on
	// each subsequent attempt. Defaults to 500ms.
	BaseBackoff time.Duration
	// RequestTimeout bounds a single HTTP round-trip. Defaults to 60s.
	RequestTimeout time.Duration
}

// NewFetcher returns a Fetcher with the teacher's default retry
// policy: 3 attempts, 500ms base backoff, 60s per-request timeout.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{
		Client:         client,
		MaxAttempts:    3,
		BaseBackoff:    500 * time.Millisecond,
		RequestTimeout: 60 * time.Second,
	}
}

// FetchPage performs a single GET against endpoint with the given
// $filter, $top, $skip, and optional $orderby. Only spaces in the
// filter and ordering are encoded (as %20, which an HTTP request line
// requires); everything else is passed through unencoded: the upstream
// requires raw ISO-8601 timestamps in predicates, and percent-encoding
// them breaks matching.
func (f *Fetcher) FetchPage(
	ctx context.Context, endpoint, credential string, top, skip int, filter, orderBy string,
) (Page, error) {
	url := fmt.Sprintf("%s?$filter=%s&$top=%d&$skip=%d", endpoint, strings.ReplaceAll(filter, " ", "%20"), top, skip)
	if orderBy != "" {
		url += "&$orderby=" + strings.ReplaceAll(orderBy, " ", "%20")
	}

	var lastErr error
	attempts := f.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := f.BaseBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		page, err := f.fetchOnce(ctx, url, credential)
		if err == nil {
			return page, nil
		}

		if _, isCap := err.(*CapExceededError); isCap {
			// Not a transport failure; never retried.
			return Page{}, err
		}

		lastErr = err
		if te, ok := err.(*TransportError); ok && !te.retryable() {
			return Page{}, err
		}

		if attempt == attempts {
			break
		}

		log.WithFields(log.Fields{
			"attempt": attempt,
			"url":     url,
			"error":   err,
		}).Warn("odata page fetch failed, retrying")

		select {
		case <-ctx.Done():
			return Page{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return Page{}, errors.Wrap(lastErr, "odata: exhausted retries")
}

func (f *Fetcher) fetchOnce(ctx context.Context, url, credential string) (Page, error) {
	timeout := f.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, errors.Wrap(err, "odata: build request")
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		// Network errors (including context deadline) are transient.
		return Page{}, errors.Wrap(err, "odata: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, errors.Wrap(err, "odata: read response body")
	}

	if containsCapMarker(body) {
		return Page{}, &CapExceededError{Filter: url}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, &TransportError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var raw rawPage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Page{}, errors.Wrap(err, "odata: decode response body")
	}

	return Page{
		Records:    raw.Value,
		NextLink:   raw.NextLink,
		TotalCount: raw.TotalCount,
	}, nil
}

func containsCapMarker(body []byte) bool {
	return strings.Contains(string(body), capMarker)
}
