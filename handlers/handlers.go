package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/icco/moviecatalog/lib/catalog"
	"github.com/icco/moviecatalog/lib/health"
	"github.com/icco/moviecatalog/lib/images"
	"github.com/icco/moviecatalog/lib/types"
	"github.com/icco/moviecatalog/lib/validation"
	"github.com/icco/moviecatalog/models"
	"gorm.io/gorm"
)

// maxBodyBytes bounds create/update bodies, which may carry a base64 photo.
const maxBodyBytes = 16 << 20

// Catalog is the part of catalog.Catalog the handlers use.
type Catalog interface {
	Snapshot() catalog.Snapshot
	Favorites() []models.Movie
	Search(query string) []models.Movie
	Get(id string) (models.Movie, bool)
	Stats() types.StatsData
	Load(ctx context.Context) *catalog.FetchTask
	Add(ctx context.Context, in models.MovieInput) (string, bool)
	Update(ctx context.Context, id string, in models.MovieInput) bool
	Delete(ctx context.Context, id string)
	ToggleFavorite(ctx context.Context, id string)
}

type movieResponse struct {
	models.Movie
	ImageURL string `json:"image_url,omitempty"`
	HasImage bool   `json:"has_image"`
}

func toResponse(m models.Movie) movieResponse {
	return movieResponse{Movie: m, ImageURL: m.ImageURL(), HasImage: m.HasImage()}
}

func toResponses(movies []models.Movie) []movieResponse {
	out := make([]movieResponse, 0, len(movies))
	for _, m := range movies {
		out = append(out, toResponse(m))
	}
	return out
}

// NewRouter wires every catalog route onto a chi router.
func NewRouter(db *gorm.DB, cat Catalog, maxImageDim int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", health.Check(db, cat))
	r.Get("/stats", HandleStats(cat))
	r.Get("/favorites", HandleFavorites(cat))
	r.Post("/refresh", HandleRefresh(cat))

	r.Route("/movies", func(r chi.Router) {
		r.Get("/", HandleList(cat))
		r.Post("/", HandleCreate(cat, maxImageDim))
		r.Get("/{id}", HandleGet(cat))
		r.Put("/{id}", HandleUpdate(cat, maxImageDim))
		r.Delete("/{id}", HandleDelete(cat))
		r.Get("/{id}/image", HandleImage(cat))
		r.Post("/{id}/favorite", HandleToggleFavorite(cat))
	})

	return r
}

func writeJSON(w http.ResponseWriter, v interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", slog.Any("error", err))
	}
}

// writeUnchanged answers a command whose save failed. The failure is already
// logged; the client gets the list as it stands.
func writeUnchanged(w http.ResponseWriter, cat Catalog) {
	snap := cat.Snapshot()
	writeJSON(w, struct {
		Movies    []movieResponse `json:"movies"`
		Favorites []movieResponse `json:"favorites"`
	}{toResponses(snap.Movies), toResponses(snap.Favorites)}, http.StatusAccepted)
}

func readMovieInput(w http.ResponseWriter, r *http.Request, maxImageDim int) (models.MovieInput, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		validation.WriteError(w, fmt.Errorf("failed to read body: %w", err), http.StatusRequestEntityTooLarge)
		return models.MovieInput{}, false
	}

	in, err := validation.ValidateAndParseMovieInput(body)
	if err != nil {
		validation.WriteError(w, err, http.StatusBadRequest)
		return models.MovieInput{}, false
	}

	in.ImageData, err = images.Normalize(in.ImageData, maxImageDim)
	if err != nil {
		validation.WriteError(w, err, http.StatusBadRequest)
		return models.MovieInput{}, false
	}

	return in, true
}

func HandleList(cat Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, toResponses(cat.Search(r.URL.Query().Get("q"))), http.StatusOK)
	}
}

func HandleFavorites(cat Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, toResponses(cat.Favorites()), http.StatusOK)
	}
}

func HandleStats(cat Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, cat.Stats(), http.StatusOK)
	}
}

func HandleGet(cat Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := cat.Get(chi.URLParam(r, "id"))
		if !ok {
			validation.WriteError(w, errors.New("movie not found"), http.StatusNotFound)
			return
		}
		writeJSON(w, toResponse(m), http.StatusOK)
	}
}

func HandleImage(cat Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := cat.Get(chi.URLParam(r, "id"))
		if !ok || !m.HasImage() {
			validation.WriteError(w, errors.New("image not found"), http.StatusNotFound)
			return
		}

		width, err := validation.ParseThumbnailWidth(r.URL.Query().Get("w"))
		if err != nil {
			validation.WriteError(w, err, http.StatusBadRequest)
			return
		}

		data := m.ImageData
		if width > 0 {
			data, err = images.Thumbnail(m.ImageData, width)
			if err != nil {
				slog.Error("Failed to resize image", slog.String("id", m.ID), slog.Any("error", err))
				data = m.ImageData
			}
		}

		w.Header().Set("Content-Type", http.DetectContentType(data))
		w.Header().Set("Cache-Control", "private, max-age=300")
		if _, err := w.Write(data); err != nil {
			slog.Error("Failed to write image", slog.String("id", m.ID), slog.Any("error", err))
		}
	}
}

func HandleCreate(cat Catalog, maxImageDim int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := readMovieInput(w, r, maxImageDim)
		if !ok {
			return
		}

		id, saved := cat.Add(r.Context(), in)
		if !saved {
			writeUnchanged(w, cat)
			return
		}

		m, found := cat.Get(id)
		if !found {
			writeUnchanged(w, cat)
			return
		}
		writeJSON(w, toResponse(m), http.StatusCreated)
	}
}

func HandleUpdate(cat Catalog, maxImageDim int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		existing, ok := cat.Get(id)
		if !ok {
			validation.WriteError(w, errors.New("movie not found"), http.StatusNotFound)
			return
		}
		if !existing.Persisted() {
			validation.WriteError(w, errors.New("movies from the popular feed cannot be edited"), http.StatusConflict)
			return
		}

		in, ok := readMovieInput(w, r, maxImageDim)
		if !ok {
			return
		}

		if !cat.Update(r.Context(), id, in) {
			writeUnchanged(w, cat)
			return
		}

		m, found := cat.Get(id)
		if !found {
			writeUnchanged(w, cat)
			return
		}
		writeJSON(w, toResponse(m), http.StatusOK)
	}
}

func HandleDelete(cat Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cat.Delete(r.Context(), chi.URLParam(r, "id"))
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleToggleFavorite(cat Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, ok := cat.Get(id); !ok {
			validation.WriteError(w, errors.New("movie not found"), http.StatusNotFound)
			return
		}

		cat.ToggleFavorite(r.Context(), id)

		m, ok := cat.Get(id)
		if !ok {
			writeUnchanged(w, cat)
			return
		}
		writeJSON(w, toResponse(m), http.StatusOK)
	}
}

func HandleRefresh(cat Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cat.Load(r.Context())
		writeJSON(w, map[string]string{"status": "refreshing"}, http.StatusAccepted)
	}
}
