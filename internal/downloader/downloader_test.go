// SPDX-License-Identifier: MIT

package downloader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racecarr/racecarr/internal/model"
)

func sab(baseURL string) model.Downloader {
	return model.Downloader{
		ID: 1, Name: "sab", Kind: model.DownloaderSAB,
		BaseURL: baseURL, APIKey: "sab-key", Category: "f1", Enabled: true,
	}
}

func nzbg(baseURL string) model.Downloader {
	return model.Downloader{
		ID: 2, Name: "nzbg", Kind: model.DownloaderNZBG,
		BaseURL: baseURL, APIKey: "nzbg-key", Category: "f1", Enabled: true,
	}
}

func TestSABSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "addurl", q.Get("mode"))
		require.Equal(t, "https://ix/getnzb/abc", q.Get("name"))
		require.Equal(t, "F1 Race rc-6-race", q.Get("nzbname"))
		require.Equal(t, "f1", q.Get("cat"))
		require.Equal(t, "json", q.Get("output"))
		require.Equal(t, "sab-key", q.Get("apikey"))
		_, _ = w.Write([]byte(`{"status":true,"nzo_ids":["SABnzbd_nzo_x1"]}`))
	}))
	defer srv.Close()

	c := &sabClient{http: srv.Client()}
	id, err := c.Send(context.Background(), sab(srv.URL), SendRequest{
		NZBURL: "https://ix/getnzb/abc",
		Title:  "F1 Race rc-6-race",
	})
	require.NoError(t, err)
	assert.Equal(t, "SABnzbd_nzo_x1", id)
}

func TestSABSendAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":false,"error":"API Key Incorrect"}`))
	}))
	defer srv.Close()

	c := &sabClient{http: srv.Client()}
	_, err := c.Send(context.Background(), sab(srv.URL), SendRequest{NZBURL: "https://ix/x"})
	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, KindAuthRejected, de.Kind)
	assert.False(t, de.Retryable())
}

func TestSABStatusQueueThenHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("mode") {
		case "queue":
			_, _ = w.Write([]byte(`{"queue":{"slots":[]}}`))
		case "history":
			_, _ = w.Write([]byte(`{"history":{"slots":[{"nzo_id":"x1","status":"Completed"}]}}`))
		}
	}))
	defer srv.Close()

	c := &sabClient{http: srv.Client()}
	st, err := c.Status(context.Background(), sab(srv.URL), "x1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, st)
}

func TestSABStatusUnknownWhenAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"queue":{"slots":[]},"history":{"slots":[]}}`))
	}))
	defer srv.Close()

	c := &sabClient{http: srv.Client()}
	st, err := c.Status(context.Background(), sab(srv.URL), "nope")
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, st)
}

func TestNZBGetSendAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "nzbg-key", user)
		require.Empty(t, pass)

		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch req.Method {
		case "append":
			require.Equal(t, "https://ix/getnzb/abc", req.Params[1])
			require.Equal(t, "f1", req.Params[2])
			_, _ = w.Write([]byte(`{"result":42}`))
		case "listgroups":
			_, _ = w.Write([]byte(`{"result":[{"NZBID":42,"Status":"DOWNLOADING"}]}`))
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
	}))
	defer srv.Close()

	c := &nzbgetClient{http: srv.Client()}
	id, err := c.Send(context.Background(), nzbg(srv.URL), SendRequest{
		NZBURL: "https://ix/getnzb/abc",
		Title:  "F1 Race",
	})
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	st, err := c.Status(context.Background(), nzbg(srv.URL), id)
	require.NoError(t, err)
	assert.Equal(t, StatusDownloading, st)
}

func TestNZBGetHistoryStatusMapping(t *testing.T) {
	assert.Equal(t, StatusCompleted, nzbgetHistoryStatus("SUCCESS/UNPACK"))
	assert.Equal(t, StatusFailed, nzbgetHistoryStatus("FAILURE/PAR"))
	assert.Equal(t, StatusFailed, nzbgetHistoryStatus("WARNING/SCRIPT"))
	assert.Equal(t, StatusUnknown, nzbgetHistoryStatus("weird"))
}

func TestNZBGetRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"code":401,"message":"Access denied"}}`))
	}))
	defer srv.Close()

	c := &nzbgetClient{http: srv.Client()}
	_, err := c.Send(context.Background(), nzbg(srv.URL), SendRequest{NZBURL: "https://ix/x"})
	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, KindRejected, de.Kind)
}

func TestDispatcherDedupesWithinWindow(t *testing.T) {
	var sends atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mode") == "addurl" {
			sends.Add(1)
		}
		_, _ = w.Write([]byte(`{"status":true,"nzo_ids":["x1"]}`))
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC))
	d := NewDispatcher(clock)
	d.sab = &sabClient{http: srv.Client()}

	dl := sab(srv.URL)
	req := SendRequest{NZBURL: "https://ix/getnzb/abc", Title: "t"}

	id1, err := d.Send(context.Background(), dl, req)
	require.NoError(t, err)
	id2, err := d.Send(context.Background(), dl, req)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Equal(t, int32(1), sends.Load(), "second send within 5 min is a no-op")

	clock.Advance(6 * time.Minute)
	_, err = d.Send(context.Background(), dl, req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), sends.Load(), "window expired, real send again")
}

func TestDispatcherUnsupportedKind(t *testing.T) {
	d := NewDispatcher(clockwork.NewFakeClock())
	_, err := d.Send(context.Background(), model.Downloader{Kind: "torrent"}, SendRequest{})
	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, KindUnknown, de.Kind)
}
