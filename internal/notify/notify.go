// SPDX-License-Identifier: MIT

// Package notify fans lifecycle events out to Apprise-style URLs and raw
// webhooks. Delivery is best-effort: failures are logged, never surfaced
// into entity state.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/containrrr/shoutrrr"

	"github.com/racecarr/racecarr/internal/log"
	"github.com/racecarr/racecarr/internal/metrics"
	"github.com/racecarr/racecarr/internal/model"
	"github.com/racecarr/racecarr/internal/store"
)

const (
	targetDeadline = 10 * time.Second
	maxAttempts    = 3
	retryDelay     = 2 * time.Second
)

// Message is one notification to deliver.
type Message struct {
	Event   model.NotificationEvent
	Title   string
	Body    string
	Payload map[string]any
}

// Dispatcher resolves targets from the store and delivers to each on its
// own deadline.
type Dispatcher struct {
	store       *store.Store
	http        *http.Client
	appriseSend func(ctx context.Context, rawURL, message string) error
	retryDelay  time.Duration
	deadline    time.Duration
}

func NewDispatcher(st *store.Store) *Dispatcher {
	return &Dispatcher{
		store:       st,
		http:        &http.Client{Timeout: targetDeadline},
		appriseSend: appriseSend,
		retryDelay:  retryDelay,
		deadline:    targetDeadline,
	}
}

// appriseSend runs shoutrrr under the caller's deadline. shoutrrr has no
// context variant; a send that outlives the deadline keeps running but
// its result is dropped.
func appriseSend(ctx context.Context, rawURL, message string) error {
	done := make(chan error, 1)
	go func() { done <- shoutrrr.Send(rawURL, message) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Dispatch delivers msg to every target whose mask wants the event and
// waits for the fan-out to finish. Callers on a hot path use Async.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) {
	targets, err := d.store.ListNotificationTargets(ctx)
	if err != nil {
		logger := log.WithComponentFromContext(ctx, "notify")
		logger.Warn().Err(err).
			Str("event", "notify.targets_failed").
			Msg("could not list notification targets")
		return
	}

	var wg sync.WaitGroup
	for _, t := range targets {
		if !t.Wants(msg.Event) {
			continue
		}
		wg.Add(1)
		go func(t model.NotificationTarget) {
			defer wg.Done()
			d.deliver(ctx, t, msg)
		}(t)
	}
	wg.Wait()
}

// Async runs Dispatch in the background so the caller never blocks.
func (d *Dispatcher) Async(ctx context.Context, msg Message) {
	go d.Dispatch(context.WithoutCancel(ctx), msg)
}

func (d *Dispatcher) deliver(ctx context.Context, t model.NotificationTarget, msg Message) {
	logger := log.WithComponentFromContext(ctx, "notify").With().
		Str("target", t.Name).
		Str("target_fp", targetFingerprint(t.URL)).
		Str("kind", string(t.Kind)).
		Str("notification", string(msg.Event)).
		Logger()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tctx, cancel := context.WithTimeout(ctx, d.deadline)
		switch t.Kind {
		case model.NotifyWebhook:
			lastErr = d.sendWebhook(tctx, t, msg)
		default:
			lastErr = d.appriseSend(tctx, t.URL, msg.Title+"\n"+msg.Body)
		}
		cancel()

		if lastErr == nil {
			metrics.NotificationsTotal.WithLabelValues(string(t.Kind), "ok").Inc()
			logger.Info().Str("event", "notify.sent").Int("attempt", attempt).Msg("notification delivered")
			return
		}
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.retryDelay):
			}
		}
	}
	metrics.NotificationsTotal.WithLabelValues(string(t.Kind), "error").Inc()
	logger.Warn().
		Err(fmt.Errorf("%s", log.Redact(lastErr.Error()))).
		Str("event", "notify.failed").
		Msg("notification delivery failed")
}

func (d *Dispatcher) sendWebhook(ctx context.Context, t model.NotificationTarget, msg Message) error {
	body, err := json.Marshal(map[string]any{
		"type":    msg.Event,
		"payload": msg.Payload,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.WebhookSecret != "" {
		mac := hmac.New(sha256.New, []byte(t.WebhookSecret))
		mac.Write(body)
		req.Header.Set("X-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	res, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("webhook returned HTTP %d", res.StatusCode)
	}
	return nil
}

// TestTarget sends a test notification to one target, ignoring its mask.
func (d *Dispatcher) TestTarget(ctx context.Context, t model.NotificationTarget) error {
	msg := Message{
		Event:   model.EventTest,
		Title:   "Racecarr test",
		Body:    "Notification target is reachable.",
		Payload: map[string]any{"message": "test notification"},
	}
	tctx, cancel := context.WithTimeout(ctx, d.deadline)
	defer cancel()
	switch t.Kind {
	case model.NotifyWebhook:
		return d.sendWebhook(tctx, t, msg)
	default:
		return d.appriseSend(tctx, t.URL, msg.Title+"\n"+msg.Body)
	}
}

// targetFingerprint identifies a target in logs without exposing the
// secret-bearing URL.
func targetFingerprint(rawURL string) string {
	u, err := url.Parse(rawURL)
	scheme, host := "invalid", ""
	if err == nil {
		scheme, host = u.Scheme, u.Host
	}
	sum := sha256.Sum256([]byte(scheme + "::" + host))
	return hex.EncodeToString(sum[:])[:8]
}
