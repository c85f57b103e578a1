package odata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(client *http.Client) *Fetcher {
	f := NewFetcher(client)
	f.BaseBackoff = time.Millisecond
	return f
}

func TestFetchPageDecodesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{"value":[{"ListingKey":"a"}],"@odata.nextLink":"","@odata.count":1}`))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.Client())
	page, err := f.FetchPage(context.Background(), srv.URL, "secret", 100, 0, "ModificationTimestamp gt 2025-01-01T00:00:00Z", "")
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "a", page.Records[0]["ListingKey"])
	require.NotNil(t, page.TotalCount)
	assert.EqualValues(t, 1, *page.TotalCount)
}

func TestFetchPageReturnsCapExceededWithoutRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"total exceeds 100000 records"}}`))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.Client())
	_, err := f.FetchPage(context.Background(), srv.URL, "secret", 100, 0, "filter", "")

	var capErr *CapExceededError
	require.ErrorAs(t, err, &capErr)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestFetchPageRetriesTransientTransportErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"value":[]}`))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.Client())
	page, err := f.FetchPage(context.Background(), srv.URL, "secret", 100, 0, "filter", "")
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestFetchPageDoesNotRetryPermanentTransportErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`unauthorized`))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.Client())
	_, err := f.FetchPage(context.Background(), srv.URL, "secret", 100, 0, "filter", "")

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusUnauthorized, transportErr.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestFetchPageExhaustsRetriesThenReturnsError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.Client())
	f.MaxAttempts = 3
	_, err := f.FetchPage(context.Background(), srv.URL, "secret", 100, 0, "filter", "")
	require.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestTransportErrorRetryableClassification(t *testing.T) {
	assert.True(t, (&TransportError{StatusCode: 500}).retryable())
	assert.True(t, (&TransportError{StatusCode: 429}).retryable())
	assert.False(t, (&TransportError{StatusCode: 404}).retryable())
	assert.False(t, (&TransportError{StatusCode: 401}).retryable())
}
