// SPDX-License-Identifier: MIT

package f1api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/racecarr/racecarr/internal/log"
)

// Error is a provider failure. Transient failures (network, 5xx) are
// retried by the client itself; callers see only the final outcome.
type Error struct {
	Op        string
	Status    int
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("f1api: %s: provider responded %d", e.Op, e.Status)
	}
	return fmt.Sprintf("f1api: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Transient
}

// Client talks to the schedule metadata provider.
type Client struct {
	base         string
	http         *http.Client
	retryInitial time.Duration
}

// New returns a provider client for the given base URL.
func New(base string) *Client {
	return &Client{
		base:         strings.TrimRight(base, "/"),
		http:         &http.Client{Timeout: 15 * time.Second},
		retryInitial: time.Second,
	}
}

// Season fetches the season-level payload for a year.
func (c *Client) Season(ctx context.Context, year int) (SeasonPayload, error) {
	var payload SeasonPayload
	err := c.getJSON(ctx, fmt.Sprintf("%s/api/%d", c.base, year), &payload)
	return payload, err
}

// Round fetches the round-level payload, which additionally carries
// winner, team winner and fastest lap.
func (c *Client) Round(ctx context.Context, year, round int) (RoundPayload, error) {
	var payload RoundPayload
	err := c.getJSON(ctx, fmt.Sprintf("%s/api/%d/%d", c.base, year, round), &payload)
	return payload, err
}

// getJSON performs a GET with retry on transient failures: 3 attempts,
// exponential backoff starting at 1s with factor 2.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	logger := log.WithComponentFromContext(ctx, "f1api")

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInitial
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0

	attempts := 0
	op := func() error {
		attempts++
		err := c.getJSONOnce(ctx, url, out)
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempts >= 3 {
			return backoff.Permanent(err)
		}
		logger.Warn().
			Err(err).
			Str("event", "provider.retry").
			Str("url", log.MaskURL(url)).
			Int("attempt", attempts).
			Msg("transient provider failure, retrying")
		return err
	}
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}

func (c *Client) getJSONOnce(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &Error{Op: "request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: "fetch", Transient: true, Err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
	case res.StatusCode >= 500:
		return &Error{Op: "fetch", Status: res.StatusCode, Transient: true}
	default:
		return &Error{Op: "fetch", Status: res.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return &Error{Op: "read", Transient: true, Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Op: "decode", Err: err}
	}
	return nil
}
