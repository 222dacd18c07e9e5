// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"net/http"
	"os"
	"strconv"

	"github.com/racecarr/racecarr/internal/version"
)

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// handleReadyz reports ready only when the store answers.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

const (
	defaultTailLines = 100
	maxTailLines     = 1000
)

// handleLogTail returns the last N lines of the rotated JSON log.
func (s *Server) handleLogTail(w http.ResponseWriter, r *http.Request) {
	lines := defaultTailLines
	if raw := r.URL.Query().Get("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad lines"})
			return
		}
		if n > maxTailLines {
			n = maxTailLines
		}
		lines = n
	}

	if s.logFile == "" {
		writeJSON(w, http.StatusOK, map[string]any{"lines": []string{}})
		return
	}
	raw, err := os.ReadFile(s.logFile) // #nosec G304 -- path comes from our own config
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, map[string]any{"lines": []string{}})
			return
		}
		writeError(w, err)
		return
	}

	split := bytes.Split(bytes.TrimRight(raw, "\n"), []byte("\n"))
	if len(split) > lines {
		split = split[len(split)-lines:]
	}
	out := make([]string, 0, len(split))
	for _, l := range split {
		if len(l) > 0 {
			out = append(out, string(l))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": out})
}
