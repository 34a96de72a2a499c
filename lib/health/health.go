package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"log/slog"

	"github.com/icco/moviecatalog/lib/types"
	"gorm.io/gorm"
)

// StatsSource reports counts for the in-memory catalog.
type StatsSource interface {
	Stats() types.StatsData
}

// Health is the body of the health endpoint. A failed database ping marks
// the service degraded; the catalog section is informational.
type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	DB        struct {
		Status  string `json:"status"`
		Message string `json:"message,omitempty"`
	} `json:"db"`
	Catalog struct {
		LocalMovies  int64 `json:"local_movies"`
		RemoteMovies int64 `json:"remote_movies"`
	} `json:"catalog"`
}

// Check returns an HTTP handler that pings the database and reports catalog sizes.
func Check(db *gorm.DB, catalog StatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := Health{
			Status:    "ok",
			Timestamp: time.Now(),
		}
		if catalog != nil {
			stats := catalog.Stats()
			health.Catalog.LocalMovies = stats.LocalMovies
			health.Catalog.RemoteMovies = stats.RemoteMovies
		}

		sqlDB, err := db.DB()
		if err != nil {
			health.Status = "degraded"
			health.DB.Status = "error"
			health.DB.Message = "Failed to get database connection"
			writeHealth(w, health, http.StatusServiceUnavailable)
			return
		}

		if err := sqlDB.PingContext(ctx); err != nil {
			health.Status = "degraded"
			health.DB.Status = "error"
			health.DB.Message = "Database ping failed"
			writeHealth(w, health, http.StatusServiceUnavailable)
			return
		}

		health.DB.Status = "ok"
		writeHealth(w, health, http.StatusOK)
	}
}

func writeHealth(w http.ResponseWriter, health Health, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		slog.Error("Failed to encode health response", slog.Any("error", err))
	}
}
