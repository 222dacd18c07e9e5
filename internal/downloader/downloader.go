// SPDX-License-Identifier: MIT

// Package downloader adapts SABnzbd- and NZBGet-style APIs behind one
// contract: send an NZB URL, poll its status, test connectivity.
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/racecarr/racecarr/internal/model"
)

// Status is the downloader-side state of one acquisition.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusUnknown     Status = "unknown"
)

// Kind classifies downloader failures.
type Kind string

const (
	KindAuthRejected Kind = "auth-rejected"
	KindUnavailable  Kind = "unavailable"
	KindRejected     Kind = "rejected"
	KindBadCategory  Kind = "bad-category"
	KindUnknown      Kind = "unknown"
)

// Error is a classified downloader failure.
type Error struct {
	Kind       Kind
	Downloader string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("downloader: %s: %s", e.Downloader, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a send is worth retrying later.
func (e *Error) Retryable() bool {
	return e.Kind == KindUnavailable || e.Kind == KindUnknown
}

// IsRetryable reports whether err is a retryable downloader failure.
func IsRetryable(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Retryable()
}

// SendRequest is one dispatch order.
type SendRequest struct {
	NZBURL   string
	Title    string // queue display name, carries the marker tag
	Category string
	Priority int
}

// Client is the per-kind adapter contract.
type Client interface {
	// Send hands the NZB URL over and returns the downloader-side id.
	Send(ctx context.Context, d model.Downloader, req SendRequest) (string, error)
	// Status resolves one acquisition id. StatusUnknown is not an error.
	Status(ctx context.Context, d model.Downloader, acquisitionID string) (Status, error)
	// Test verifies reachability and credentials.
	Test(ctx context.Context, d model.Downloader) error
}

const (
	defaultTimeout = 15 * time.Second
	dedupeWindow   = 5 * time.Minute
)

// Dispatcher routes to the right adapter by kind and dedupes repeat sends
// of the same (downloader, url) within a 5 minute window.
type Dispatcher struct {
	sab   Client
	nzbg  Client
	clock clockwork.Clock

	mu     sync.Mutex
	recent map[string]recentSend
}

type recentSend struct {
	acquisitionID string
	at            time.Time
}

// NewDispatcher wires the stock adapters over one shared HTTP client.
func NewDispatcher(clock clockwork.Clock) *Dispatcher {
	httpc := &http.Client{Timeout: defaultTimeout}
	return &Dispatcher{
		sab:    &sabClient{http: httpc},
		nzbg:   &nzbgetClient{http: httpc},
		clock:  clock,
		recent: make(map[string]recentSend),
	}
}

func (d *Dispatcher) adapter(dl model.Downloader) (Client, error) {
	switch dl.Kind {
	case model.DownloaderSAB:
		return d.sab, nil
	case model.DownloaderNZBG:
		return d.nzbg, nil
	}
	return nil, &Error{Kind: KindUnknown, Downloader: dl.Name,
		Err: fmt.Errorf("unsupported kind %q", dl.Kind)}
}

func sendKey(downloaderID int64, nzbURL string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", downloaderID, nzbURL)))
	return hex.EncodeToString(sum[:])
}

// Send dispatches req, returning the prior acquisition id without
// re-POSTing when the same URL went to the same downloader recently.
func (d *Dispatcher) Send(ctx context.Context, dl model.Downloader, req SendRequest) (string, error) {
	key := sendKey(dl.ID, req.NZBURL)
	now := d.clock.Now()

	d.mu.Lock()
	if prev, ok := d.recent[key]; ok && now.Sub(prev.at) < dedupeWindow {
		d.mu.Unlock()
		return prev.acquisitionID, nil
	}
	d.mu.Unlock()

	adapter, err := d.adapter(dl)
	if err != nil {
		return "", err
	}
	id, err := adapter.Send(ctx, dl, req)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	d.recent[key] = recentSend{acquisitionID: id, at: now}
	for k, v := range d.recent {
		if now.Sub(v.at) >= dedupeWindow {
			delete(d.recent, k)
		}
	}
	d.mu.Unlock()
	return id, nil
}

func (d *Dispatcher) Status(ctx context.Context, dl model.Downloader, acquisitionID string) (Status, error) {
	adapter, err := d.adapter(dl)
	if err != nil {
		return StatusUnknown, err
	}
	return adapter.Status(ctx, dl, acquisitionID)
}

func (d *Dispatcher) Test(ctx context.Context, dl model.Downloader) error {
	adapter, err := d.adapter(dl)
	if err != nil {
		return err
	}
	return adapter.Test(ctx, dl)
}
