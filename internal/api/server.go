// SPDX-License-Identifier: MIT

// Package api is the HTTP operator surface.
package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/racecarr/racecarr/internal/service"
	"github.com/racecarr/racecarr/internal/store"
)

// Server holds the handler dependencies.
type Server struct {
	svc     *service.Service
	store   *store.Store
	logFile string // rotated JSON log, served by the tail endpoint
}

// NewServer wires the operator surface.
func NewServer(svc *service.Service, st *store.Store, logFile string) *Server {
	return &Server{svc: svc, store: st, logFile: logFile}
}

// Routes builds the router with the canonical middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(rateLimit(30))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/seasons", func(r chi.Router) {
			r.Get("/", s.handleListSeasons)
			r.Post("/refresh", s.handleRefreshSeason)
			r.Get("/{id}/rounds", s.handleListRounds)
			r.Post("/{id}/hide", s.handleHideSeason)
			r.Post("/{id}/restore", s.handleRestoreSeason)
			r.Delete("/{id}", s.handleDeleteSeason)
		})

		r.Route("/rounds/{id}", func(r chi.Router) {
			r.Get("/events", s.handleListEvents)
			r.Post("/search", s.handleRoundSearch)
			r.Post("/grab", s.handleRoundGrab)
		})

		r.Route("/searches", func(r chi.Router) {
			r.Get("/", s.handleListSearches)
			r.Post("/", s.handleCreateSearch)
			r.Get("/{id}", s.handleGetSearch)
			r.Delete("/{id}", s.handleDeleteSearch)
			r.Put("/{id}/downloader", s.handleSetSearchDownloader)
			r.Post("/{id}/pause", s.handlePauseSearch)
			r.Post("/{id}/resume", s.handleResumeSearch)
			r.Post("/{id}/run", s.handleRunSearchNow)
		})

		r.Route("/indexers", func(r chi.Router) {
			r.Get("/", s.handleListIndexers)
			r.Post("/", s.handleCreateIndexer)
			r.Put("/{id}", s.handleUpdateIndexer)
			r.Delete("/{id}", s.handleDeleteIndexer)
			r.Post("/{id}/test", s.handleTestIndexer)
		})

		r.Route("/downloaders", func(r chi.Router) {
			r.Get("/", s.handleListDownloaders)
			r.Post("/", s.handleCreateDownloader)
			r.Put("/{id}", s.handleUpdateDownloader)
			r.Delete("/{id}", s.handleDeleteDownloader)
			r.Post("/{id}/test", s.handleTestDownloader)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleListTargets)
			r.Post("/", s.handleCreateTarget)
			r.Put("/{id}", s.handleUpdateTarget)
			r.Delete("/{id}", s.handleDeleteTarget)
			r.Post("/{id}/test", s.handleTestTarget)
		})

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)
		r.Get("/history", s.handleListHistory)
		r.Get("/venues/aliases", s.handleListVenueAliases)
		r.Put("/venues/aliases/{circuit}", s.handleSetVenueAliases)
		r.Get("/logs/tail", s.handleLogTail)
	})

	return r
}

// idParam parses the {id} URL parameter.
func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
