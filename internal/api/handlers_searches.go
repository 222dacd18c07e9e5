// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"net/http"
)

func (s *Server) handleListSearches(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.ListSearches(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCreateSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoundID      int64  `json:"round_id"`
		EventType    string `json:"event_type"`
		DownloaderID *int64 `json:"downloader_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	entry, err := s.svc.CreateSearch(r.Context(), req.RoundID, req.EventType, req.DownloaderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleGetSearch(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad search id"})
		return
	}
	entry, err := s.svc.SearchByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteSearch(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad search id"})
		return
	}
	if err := s.svc.DeleteSearch(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetSearchDownloader(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad search id"})
		return
	}
	var req struct {
		DownloaderID *int64 `json:"downloader_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.svc.SetSearchDownloader(r.Context(), id, req.DownloaderID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePauseSearch(w http.ResponseWriter, r *http.Request) {
	s.searchTransition(w, r, s.svc.PauseSearch)
}

func (s *Server) handleResumeSearch(w http.ResponseWriter, r *http.Request) {
	s.searchTransition(w, r, s.svc.ResumeSearch)
}

func (s *Server) handleRunSearchNow(w http.ResponseWriter, r *http.Request) {
	s.searchTransition(w, r, s.svc.RunSearchNow)
}

func (s *Server) searchTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) error) {
	id, err := idParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad search id"})
		return
	}
	if err := fn(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
