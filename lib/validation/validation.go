package validation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/icco/moviecatalog/models"
)

// maxThumbnailWidth bounds the ?w= parameter of the image endpoint.
const maxThumbnailWidth = 2000

// ValidateMovieInput checks the fields the add and edit forms require:
// a non-empty title, a year that fits the store and a rating in [0,5].
func ValidateMovieInput(in models.MovieInput) error {
	if in.Title == "" {
		return fmt.Errorf("title must not be empty")
	}
	if in.ReleaseYear < 0 || in.ReleaseYear > math.MaxInt16 {
		return fmt.Errorf("release year must be between 0 and %d", math.MaxInt16)
	}
	if in.Rating < 0 || in.Rating > 5 {
		return fmt.Errorf("rating must be between 0 and 5")
	}
	return nil
}

// ParseThumbnailWidth parses the optional width parameter. An empty value
// means the original size and is returned as 0.
func ParseThumbnailWidth(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	width, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid width: %s", raw)
	}
	if width < 1 || width > maxThumbnailWidth {
		return 0, fmt.Errorf("width must be between 1 and %d", maxThumbnailWidth)
	}
	return width, nil
}

// WriteError writes a validation error response to the HTTP response writer.
// It takes a response writer, error message, and HTTP status code.
func WriteError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
	}); err != nil {
		slog.Error("Failed to encode error response", slog.Any("error", err))
	}
}
