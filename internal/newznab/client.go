// SPDX-License-Identifier: MIT

// Package newznab is the HTTP client for Newznab-compatible indexers.
package newznab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/racecarr/racecarr/internal/log"
	"github.com/racecarr/racecarr/internal/model"
)

const (
	defaultTimeout = 15 * time.Second
	maxRetries     = 3
)

// Query is one indexer API call.
type Query struct {
	Type       string // "search" or "tvsearch"
	Q          string
	Season     int // tvsearch only
	Episode    int // tvsearch only
	Limit      int
	Offset     int
	MaxAgeDays int
}

// Release is one result item, already normalized across response shapes.
type Release struct {
	Title     string    `json:"title"`
	NZBURL    string    `json:"nzb_url"`
	PubDate   time.Time `json:"pub_date"`
	SizeBytes int64     `json:"size_bytes"`
	Group     string    `json:"group"`
	Category  string    `json:"category"`
	Indexer   string    `json:"indexer"`
	IndexerID int64     `json:"indexer_id"`
}

// Client executes queries against one or more configured indexers. It is
// stateless apart from the shared connection pool.
type Client struct {
	http       *http.Client
	retryBase  time.Duration
	maxRetryIv time.Duration
	rand       *rand.Rand
}

// NewClient returns a client with the default 15s per-call deadline.
func NewClient() *Client {
	return &Client{
		http:       &http.Client{Timeout: defaultTimeout},
		retryBase:  time.Second,
		maxRetryIv: 8 * time.Second,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}
}

// Search executes one query against one indexer, with retries on
// transient failures.
func (c *Client) Search(ctx context.Context, ix model.Indexer, q Query) ([]Release, error) {
	correlation := uuid.NewString()
	logger := log.WithComponentFromContext(ctx, "newznab").With().
		Str("indexer", ix.Name).
		Str("correlation_id", correlation).
		Logger()

	endpoint, err := c.buildURL(ix, q)
	if err != nil {
		return nil, &Error{Kind: KindBadRequest, Indexer: ix.Name, Err: err}
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		start := time.Now()
		releases, err := c.doSearch(ctx, ix, endpoint)
		if err == nil {
			logger.Debug().
				Str("event", "search.ok").
				Str("query", q.Q).
				Int("results", len(releases)).
				Dur("elapsed", time.Since(start)).
				Msg("indexer query succeeded")
			return releases, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == maxRetries {
			break
		}
		delay := c.backoffDelay(attempt)
		logger.Warn().
			Err(errors.New(log.Redact(err.Error()))).
			Str("event", "search.retry").
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("transient indexer failure, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	logger.Warn().
		Err(errors.New(log.Redact(lastErr.Error()))).
		Str("event", "search.failed").
		Str("url", log.MaskURL(endpoint)).
		Msg("indexer query failed")
	return nil, lastErr
}

// backoffDelay is exponential 1s -> 8s with +/-25% jitter.
func (c *Client) backoffDelay(attempt int) time.Duration {
	d := c.retryBase << (attempt - 1)
	if d > c.maxRetryIv {
		d = c.maxRetryIv
	}
	jitter := 0.75 + 0.5*c.rand.Float64()
	return time.Duration(float64(d) * jitter)
}

func (c *Client) buildURL(ix model.Indexer, q Query) (string, error) {
	base := strings.TrimRight(ix.BaseURL, "/")
	if !strings.HasSuffix(base, "/api") {
		base += "/api"
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	values := url.Values{}
	if q.Type == "" {
		q.Type = "search"
	}
	values.Set("t", q.Type)
	if ix.APIKey != "" {
		values.Set("apikey", ix.APIKey)
	}
	if q.Q != "" {
		values.Set("q", q.Q)
	}
	if len(ix.Categories) > 0 {
		cats := make([]string, len(ix.Categories))
		for i, c := range ix.Categories {
			cats[i] = strconv.Itoa(c)
		}
		values.Set("cat", strings.Join(cats, ","))
	}
	if q.MaxAgeDays > 0 {
		values.Set("maxage", strconv.Itoa(q.MaxAgeDays))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		values.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Type == "tvsearch" {
		if q.Season > 0 {
			values.Set("season", strconv.Itoa(q.Season))
		}
		if q.Episode > 0 {
			values.Set("ep", strconv.Itoa(q.Episode))
		}
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

func (c *Client) doSearch(ctx context.Context, ix model.Indexer, endpoint string) ([]Release, error) {
	body, err := c.get(ctx, ix, endpoint)
	if err != nil {
		return nil, err
	}
	releases, err := parseResults(body)
	if err != nil {
		return nil, &Error{Kind: KindParse, Indexer: ix.Name, Err: err}
	}
	for i := range releases {
		releases[i].Indexer = ix.Name
		releases[i].IndexerID = ix.ID
	}
	return releases, nil
}

// TestConnection calls t=caps. Success is HTTP 200 with parseable caps.
func (c *Client) TestConnection(ctx context.Context, ix model.Indexer) error {
	base := strings.TrimRight(ix.BaseURL, "/")
	if !strings.HasSuffix(base, "/api") {
		base += "/api"
	}
	endpoint := base + "?t=caps"
	if ix.APIKey != "" {
		endpoint += "&apikey=" + url.QueryEscape(ix.APIKey)
	}

	body, err := c.get(ctx, ix, endpoint)
	if err != nil {
		return err
	}
	if !hasCaps(body) {
		return &Error{Kind: KindParse, Indexer: ix.Name, Err: errors.New("response carries no caps element")}
	}
	return nil
}

func (c *Client) get(ctx context.Context, ix model.Indexer, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &Error{Kind: KindBadRequest, Indexer: ix.Name, Err: err}
	}

	res, err := c.http.Do(req)
	if err != nil {
		kind := KindUnavailable
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = KindUnavailable
		}
		return nil, &Error{Kind: kind, Indexer: ix.Name, Err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
	case res.StatusCode == http.StatusUnauthorized, res.StatusCode == http.StatusForbidden:
		return nil, &Error{Kind: KindAuthRejected, Indexer: ix.Name, Status: res.StatusCode}
	case res.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Kind: KindRateLimited, Indexer: ix.Name, Status: res.StatusCode}
	case res.StatusCode >= 500:
		return nil, &Error{Kind: KindUnavailable, Indexer: ix.Name, Status: res.StatusCode}
	default:
		return nil, &Error{Kind: KindBadRequest, Indexer: ix.Name, Status: res.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Indexer: ix.Name, Err: err}
	}

	// Newznab reports auth failures inside a 200 body.
	if code, desc, ok := errorElement(body); ok {
		kind := KindBadRequest
		if code >= 100 && code < 200 {
			kind = KindAuthRejected
		} else if code == 500 {
			kind = KindRateLimited // request limit reached
		}
		return nil, &Error{Kind: kind, Indexer: ix.Name, Err: fmt.Errorf("indexer error %d: %s", code, desc)}
	}
	return body, nil
}
