// SPDX-License-Identifier: MIT

package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/racecarr/racecarr/internal/model"
)

// sabClient speaks the SABnzbd query-string API with output=json.
type sabClient struct {
	http *http.Client
}

type sabAddResponse struct {
	Status bool     `json:"status"`
	NzoIDs []string `json:"nzo_ids"`
	Error  string   `json:"error"`
}

type sabSlot struct {
	NzoID  string `json:"nzo_id"`
	Status string `json:"status"`
}

type sabQueueResponse struct {
	Queue struct {
		Slots []sabSlot `json:"slots"`
	} `json:"queue"`
	History struct {
		Slots []sabSlot `json:"slots"`
	} `json:"history"`
	Status bool   `json:"status"`
	Error  string `json:"error"`
}

func (c *sabClient) call(ctx context.Context, d model.Downloader, params url.Values) ([]byte, error) {
	params.Set("output", "json")
	if d.APIKey != "" {
		params.Set("apikey", d.APIKey)
	}
	endpoint := strings.TrimRight(d.BaseURL, "/") + "/api?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Downloader: d.Name, Err: err}
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Downloader: d.Name, Err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
	case res.StatusCode == http.StatusUnauthorized, res.StatusCode == http.StatusForbidden:
		return nil, &Error{Kind: KindAuthRejected, Downloader: d.Name,
			Err: fmt.Errorf("HTTP %d", res.StatusCode)}
	case res.StatusCode >= 500:
		return nil, &Error{Kind: KindUnavailable, Downloader: d.Name,
			Err: fmt.Errorf("HTTP %d", res.StatusCode)}
	default:
		return nil, &Error{Kind: KindRejected, Downloader: d.Name,
			Err: fmt.Errorf("HTTP %d", res.StatusCode)}
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Downloader: d.Name, Err: err}
	}
	return body, nil
}

// classifySABError maps SAB's in-body error strings to failure kinds.
func classifySABError(d model.Downloader, msg string) error {
	lower := strings.ToLower(msg)
	kind := KindRejected
	switch {
	case strings.Contains(lower, "api key"), strings.Contains(lower, "apikey"):
		kind = KindAuthRejected
	case strings.Contains(lower, "category"):
		kind = KindBadCategory
	}
	return &Error{Kind: kind, Downloader: d.Name, Err: errors.New(msg)}
}

func (c *sabClient) Send(ctx context.Context, d model.Downloader, req SendRequest) (string, error) {
	params := url.Values{}
	params.Set("mode", "addurl")
	params.Set("name", req.NZBURL)
	if req.Title != "" {
		params.Set("nzbname", req.Title)
	}
	cat := req.Category
	if cat == "" {
		cat = d.Category
	}
	if cat != "" {
		params.Set("cat", cat)
	}
	if req.Priority != 0 {
		params.Set("priority", strconv.Itoa(req.Priority))
	}

	body, err := c.call(ctx, d, params)
	if err != nil {
		return "", err
	}
	var out sabAddResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &Error{Kind: KindUnknown, Downloader: d.Name, Err: err}
	}
	if !out.Status || len(out.NzoIDs) == 0 {
		msg := out.Error
		if msg == "" {
			msg = "addurl returned no nzo id"
		}
		return "", classifySABError(d, msg)
	}
	return out.NzoIDs[0], nil
}

func (c *sabClient) Status(ctx context.Context, d model.Downloader, acquisitionID string) (Status, error) {
	// Still queued or downloading?
	if st, found, err := c.lookup(ctx, d, "queue", acquisitionID); err != nil {
		return StatusUnknown, err
	} else if found {
		return st, nil
	}
	// Finished one way or the other?
	if st, found, err := c.lookup(ctx, d, "history", acquisitionID); err != nil {
		return StatusUnknown, err
	} else if found {
		return st, nil
	}
	return StatusUnknown, nil
}

func (c *sabClient) lookup(ctx context.Context, d model.Downloader, mode, acquisitionID string) (Status, bool, error) {
	params := url.Values{}
	params.Set("mode", mode)
	body, err := c.call(ctx, d, params)
	if err != nil {
		return StatusUnknown, false, err
	}
	var out sabQueueResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return StatusUnknown, false, &Error{Kind: KindUnknown, Downloader: d.Name, Err: err}
	}
	if out.Error != "" {
		return StatusUnknown, false, classifySABError(d, out.Error)
	}
	slots := out.Queue.Slots
	if mode == "history" {
		slots = out.History.Slots
	}
	for _, slot := range slots {
		if slot.NzoID != acquisitionID {
			continue
		}
		return sabStatus(slot.Status), true, nil
	}
	return StatusUnknown, false, nil
}

func sabStatus(s string) Status {
	switch strings.ToLower(s) {
	case "queued", "paused", "grabbing":
		return StatusQueued
	case "downloading", "fetching", "extracting", "verifying", "repairing", "running":
		return StatusDownloading
	case "completed":
		return StatusCompleted
	case "failed":
		return StatusFailed
	}
	return StatusUnknown
}

func (c *sabClient) Test(ctx context.Context, d model.Downloader) error {
	params := url.Values{}
	params.Set("mode", "queue")
	body, err := c.call(ctx, d, params)
	if err != nil {
		return err
	}
	var out sabQueueResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return &Error{Kind: KindUnknown, Downloader: d.Name, Err: err}
	}
	if out.Error != "" {
		return classifySABError(d, out.Error)
	}
	return nil
}
