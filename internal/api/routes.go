package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/blossom-os/softwarehub/internal/cache"
	"github.com/blossom-os/softwarehub/internal/catalog"
	"github.com/blossom-os/softwarehub/internal/system"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		// Streaming stays outside the request timeout
		r.Get("/cache/progress", s.handleCacheProgress)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/health", s.handleHealth)
			r.Get("/status", s.handleStatus)

			r.Route("/apps", func(r chi.Router) {
				r.Get("/", s.handleListApps)
				r.Get("/{id}", s.handleGetApp)
			})

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", s.handleListCategories)
				r.Get("/{id}", s.handleGetCategory)
			})

			r.Get("/collections/{type}", s.handleGetCollection)
			r.Get("/search", s.handleSearch)
			r.Get("/homepage", s.handleHomepage)
			r.Get("/installed", s.handleInstalled)

			r.Route("/cache", func(r chi.Router) {
				r.Get("/ready", s.handleCacheReady)
				r.Post("/initialize", s.handleCacheInitialize)
				r.Post("/reset", s.handleCacheReset)
			})
		})
	})
}

// handleHealth returns the health status of the service
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type statusResponse struct {
	Privileged bool         `json:"privileged"`
	CacheReady bool         `json:"cacheReady"`
	System     system.Stats `json:"system"`
}

// handleStatus reports which data source is active and host resource usage
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Privileged: s.catalog.Privileged(),
		CacheReady: s.catalog.IsCacheReady(r.Context()),
	}
	if s.monitor != nil {
		resp.System = s.monitor.Stats()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleListApps returns every known app, or only the comma-separated ids
// given in ?ids=
func (s *Server) handleListApps(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if !query.Has("ids") {
		respondJSON(w, http.StatusOK, map[string]any{
			"apps": s.catalog.GetAllApps(r.Context()),
		})
		return
	}

	skipIconData, err := boolParam(r, "skip_icon_data")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var ids []string
	for _, id := range strings.Split(query.Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"apps": s.catalog.GetApps(r.Context(), ids, skipIconData),
	})
}

// handleGetApp returns one app; unknown ids come back with only app_id set
func (s *Server) handleGetApp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	respondJSON(w, http.StatusOK, s.catalog.GetApp(r.Context(), id))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.catalog.GetCollectionCategories(r.Context()))
}

// handleGetCategory returns one page of a category collection
func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r, catalog.DefaultCategoryLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	collection, err := s.catalog.GetCollectionCategory(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if errors.Is(err, catalog.ErrEmptyCategory) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("failed to get category", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get category")
		return
	}

	respondJSON(w, http.StatusOK, collection)
}

// handleGetCollection serves the special collections by type; any other
// value is looked up as a curated collection
func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var collection catalog.Collection
	switch collectionType := chi.URLParam(r, "type"); collectionType {
	case cache.CollectionPopular:
		collection = s.catalog.GetCollectionPopular(ctx)
	case cache.CollectionTrending:
		collection = s.catalog.GetCollectionTrending(ctx)
	case cache.CollectionRecentlyUpdated:
		collection = s.catalog.GetCollectionRecentlyUpdated(ctx)
	case "recently-added":
		collection = s.catalog.GetCollectionRecentlyAdded(ctx)
	default:
		collection = s.catalog.GetCollection(ctx, collectionType)
	}

	respondJSON(w, http.StatusOK, collection)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "q is required")
		return
	}

	limit, offset, err := pageParams(r, catalog.DefaultSearchLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, s.catalog.SearchApps(r.Context(), query, limit, offset))
}

func (s *Server) handleHomepage(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.catalog.GetHomepage(r.Context()))
}

// handleInstalled reports whether a flatpak ref is installed on this host
func (s *Server) handleInstalled(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("ref")
	if ref == "" {
		respondError(w, http.StatusBadRequest, "ref is required")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ref":       ref,
		"installed": s.catalog.IsInstallReferencePresent(r.Context(), ref),
	})
}

func (s *Server) handleCacheReady(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{
		"ready": s.catalog.IsCacheReady(r.Context()),
	})
}

// handleCacheInitialize starts a background population; follow it on
// /api/cache/progress
func (s *Server) handleCacheInitialize(w http.ResponseWriter, r *http.Request) {
	clear, err := boolParam(r, "clear")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("cache initialization requested", "clear", clear)
	s.catalog.InitializeCache(r.Context(), clear)

	respondJSON(w, http.StatusAccepted, map[string]any{
		"status": "started",
		"clear":  clear,
	})
}

// handleCacheReset drops in-memory icons and refresh marks
func (s *Server) handleCacheReset(w http.ResponseWriter, r *http.Request) {
	s.catalog.Reset()
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "reset",
	})
}

func pageParams(r *http.Request, defaultLimit int) (limit, offset int, err error) {
	limit, err = intParam(r, "limit", defaultLimit)
	if err != nil {
		return 0, 0, err
	}
	offset, err = intParam(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func intParam(r *http.Request, name string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, value)
	}
	return n, nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", name, value)
	}
	return b, nil
}

// Helper functions for JSON responses

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
