// SPDX-License-Identifier: MIT

package newznab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racecarr/racecarr/internal/model"
)

func testClient() *Client {
	c := NewClient()
	c.retryBase = time.Millisecond
	c.maxRetryIv = 2 * time.Millisecond
	return c
}

func indexer(baseURL string) model.Indexer {
	return model.Indexer{
		ID:         1,
		Name:       "test-ix",
		Kind:       model.IndexerNewznab,
		BaseURL:    baseURL,
		APIKey:     "sekret-key-1234",
		Categories: []int{5060, 5070},
		Enabled:    true,
	}
}

func TestSearchBuildsQueryAndParses(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssFixture))
	}))
	defer srv.Close()

	c := testClient()
	releases, err := c.Search(context.Background(), indexer(srv.URL), Query{
		Q:          "Formula 1 2024 Canadian Race",
		Limit:      100,
		MaxAgeDays: 14,
	})
	require.NoError(t, err)
	require.Len(t, releases, 2)
	assert.Equal(t, "test-ix", releases[0].Indexer)
	assert.Equal(t, int64(1), releases[0].IndexerID)

	q := gotQuery.Load().(url.Values)
	assert.Equal(t, "search", q.Get("t"))
	assert.Equal(t, "sekret-key-1234", q.Get("apikey"))
	assert.Equal(t, "5060,5070", q.Get("cat"))
	assert.Equal(t, "14", q.Get("maxage"))
	assert.Equal(t, "100", q.Get("limit"))
}

func TestSearchTVSearchParams(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		_, _ = w.Write([]byte(rssFixture))
	}))
	defer srv.Close()

	c := testClient()
	_, err := c.Search(context.Background(), indexer(srv.URL), Query{
		Type:    "tvsearch",
		Q:       "Formula 1 Race",
		Season:  2024,
		Episode: 6,
	})
	require.NoError(t, err)

	q := gotQuery.Load().(url.Values)
	assert.Equal(t, "tvsearch", q.Get("t"))
	assert.Equal(t, "2024", q.Get("season"))
	assert.Equal(t, "6", q.Get("ep"))
}

func TestSearchRetriesTransientOnly(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(rssFixture))
	}))
	defer srv.Close()

	c := testClient()
	releases, err := c.Search(context.Background(), indexer(srv.URL), Query{Q: "x"})
	require.NoError(t, err)
	assert.Len(t, releases, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearchAuthFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := testClient()
	_, err := c.Search(context.Background(), indexer(srv.URL), Query{Q: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var ie *Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, KindAuthRejected, ie.Kind)
}

func TestSearchInBodyErrorElement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<error code="101" description="Account suspended"/>`))
	}))
	defer srv.Close()

	c := testClient()
	_, err := c.Search(context.Background(), indexer(srv.URL), Query{Q: "x"})
	var ie *Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, KindAuthRejected, ie.Kind)
}

func TestSearchRateLimitElementRetryable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			_, _ = w.Write([]byte(`<error code="500" description="Request limit reached"/>`))
			return
		}
		_, _ = w.Write([]byte(rssFixture))
	}))
	defer srv.Close()

	c := testClient()
	releases, err := c.Search(context.Background(), indexer(srv.URL), Query{Q: "x"})
	require.NoError(t, err)
	assert.Len(t, releases, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "caps", r.URL.Query().Get("t"))
		_, _ = w.Write([]byte(`<caps><server version="1.1"/></caps>`))
	}))
	defer srv.Close()

	c := testClient()
	require.NoError(t, c.TestConnection(context.Background(), indexer(srv.URL)))
}

func TestTestConnectionNoCaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>login please</body></html>`))
	}))
	defer srv.Close()

	c := testClient()
	err := c.TestConnection(context.Background(), indexer(srv.URL))
	var ie *Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, KindParse, ie.Kind)
}
