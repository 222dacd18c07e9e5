// SPDX-License-Identifier: MIT

package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/racecarr/racecarr/internal/model"
)

// nzbgetClient speaks the NZBGet JSON-RPC API at {base}/jsonrpc.
type nzbgetClient struct {
	http *http.Client
}

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
	ID     int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *nzbgetClient) call(ctx context.Context, d model.Downloader, method string, params []any, result any) error {
	payload, err := json.Marshal(rpcRequest{Method: method, Params: params, ID: 1})
	if err != nil {
		return &Error{Kind: KindUnknown, Downloader: d.Name, Err: err}
	}

	endpoint := strings.TrimRight(d.BaseURL, "/") + "/jsonrpc"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return &Error{Kind: KindUnknown, Downloader: d.Name, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if d.APIKey != "" {
		req.SetBasicAuth(d.APIKey, "")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindUnavailable, Downloader: d.Name, Err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
	case res.StatusCode == http.StatusUnauthorized, res.StatusCode == http.StatusForbidden:
		return &Error{Kind: KindAuthRejected, Downloader: d.Name,
			Err: fmt.Errorf("HTTP %d", res.StatusCode)}
	case res.StatusCode >= 500:
		return &Error{Kind: KindUnavailable, Downloader: d.Name,
			Err: fmt.Errorf("HTTP %d", res.StatusCode)}
	default:
		return &Error{Kind: KindRejected, Downloader: d.Name,
			Err: fmt.Errorf("HTTP %d", res.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return &Error{Kind: KindUnavailable, Downloader: d.Name, Err: err}
	}
	var rpc rpcResponse
	if err := json.Unmarshal(body, &rpc); err != nil {
		return &Error{Kind: KindUnknown, Downloader: d.Name, Err: err}
	}
	if rpc.Error != nil {
		return &Error{Kind: KindRejected, Downloader: d.Name,
			Err: fmt.Errorf("rpc %d: %s", rpc.Error.Code, rpc.Error.Message)}
	}
	if result != nil {
		if err := json.Unmarshal(rpc.Result, result); err != nil {
			return &Error{Kind: KindUnknown, Downloader: d.Name, Err: err}
		}
	}
	return nil
}

func (c *nzbgetClient) Send(ctx context.Context, d model.Downloader, req SendRequest) (string, error) {
	cat := req.Category
	if cat == "" {
		cat = d.Category
	}
	// append(NZBFilename, Content, Category, Priority, AddToTop, AddPaused,
	// DupeKey, DupeScore, DupeMode). Content may be a URL.
	params := []any{req.Title, req.NZBURL, cat, req.Priority, false, false, "", 0, "SCORE"}

	var id int64
	if err := c.call(ctx, d, "append", params, &id); err != nil {
		return "", err
	}
	if id <= 0 {
		return "", &Error{Kind: KindRejected, Downloader: d.Name,
			Err: errors.New("append returned no id")}
	}
	return strconv.FormatInt(id, 10), nil
}

type nzbgetGroup struct {
	NZBID  int64  `json:"NZBID"`
	Status string `json:"Status"`
}

func (c *nzbgetClient) Status(ctx context.Context, d model.Downloader, acquisitionID string) (Status, error) {
	id, err := strconv.ParseInt(acquisitionID, 10, 64)
	if err != nil {
		return StatusUnknown, &Error{Kind: KindUnknown, Downloader: d.Name, Err: err}
	}

	var groups []nzbgetGroup
	if err := c.call(ctx, d, "listgroups", []any{0}, &groups); err != nil {
		return StatusUnknown, err
	}
	for _, g := range groups {
		if g.NZBID == id {
			return nzbgetQueueStatus(g.Status), nil
		}
	}

	var history []nzbgetGroup
	if err := c.call(ctx, d, "history", []any{false}, &history); err != nil {
		return StatusUnknown, err
	}
	for _, h := range history {
		if h.NZBID == id {
			return nzbgetHistoryStatus(h.Status), nil
		}
	}
	return StatusUnknown, nil
}

func nzbgetQueueStatus(s string) Status {
	switch {
	case strings.HasPrefix(s, "QUEUED"), strings.HasPrefix(s, "PAUSED"), strings.HasPrefix(s, "FETCHING"):
		return StatusQueued
	case strings.HasPrefix(s, "DOWNLOADING"), strings.HasPrefix(s, "POST"):
		return StatusDownloading
	}
	return StatusDownloading
}

func nzbgetHistoryStatus(s string) Status {
	switch {
	case strings.HasPrefix(s, "SUCCESS"):
		return StatusCompleted
	case strings.HasPrefix(s, "FAILURE"), strings.HasPrefix(s, "WARNING"), strings.HasPrefix(s, "DELETED"):
		return StatusFailed
	}
	return StatusUnknown
}

func (c *nzbgetClient) Test(ctx context.Context, d model.Downloader) error {
	var version string
	return c.call(ctx, d, "version", nil, &version)
}
