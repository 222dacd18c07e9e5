// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/racecarr/racecarr/internal/downloader"
	"github.com/racecarr/racecarr/internal/log"
	"github.com/racecarr/racecarr/internal/newznab"
	"github.com/racecarr/racecarr/internal/service"
	"github.com/racecarr/racecarr/internal/store"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes. Upstream probe
// failures (indexer, downloader) surface as 502 so the operator can tell
// a bad request from a broken remote.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var ixErr *newznab.Error
	var dlErr *downloader.Error
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, store.ErrConflict), service.IsStateConflict(err):
		code = http.StatusConflict
	case service.IsValidation(err):
		code = http.StatusBadRequest
	case errors.As(err, &ixErr), errors.As(err, &dlErr):
		code = http.StatusBadGateway
	}
	writeJSON(w, code, map[string]string{"error": log.Redact(err.Error())})
}

// decodeBody binds a JSON request body, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
