package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"github.com/icco/moviecatalog/lib/types"
	"github.com/icco/moviecatalog/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned by Get when no movie has the requested id.
var ErrNotFound = errors.New("movie not found")

// ErrOutOfRange is returned when a year or rating does not fit its column.
var ErrOutOfRange = errors.New("value out of range")

// Store persists locally created movies.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

func New(db *gorm.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// List returns every persisted movie in creation order.
func (s *Store) List(ctx context.Context) ([]models.Movie, error) {
	var entities []models.MovieEntity
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("failed to list movies: %w", err)
	}

	movies := make([]models.Movie, 0, len(entities))
	for _, e := range entities {
		movies = append(movies, e.ToMovie())
	}
	return movies, nil
}

func (s *Store) Get(ctx context.Context, id string) (models.Movie, error) {
	var entity models.MovieEntity
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Movie{}, ErrNotFound
		}
		return models.Movie{}, fmt.Errorf("failed to get movie %s: %w", id, err)
	}
	return entity.ToMovie(), nil
}

// Create persists a new movie and returns its generated id.
func (s *Store) Create(ctx context.Context, in models.MovieInput) (string, error) {
	if err := checkRange(in); err != nil {
		return "", err
	}

	entity := models.MovieEntity{
		ID:               uuid.NewString(),
		Title:            in.Title,
		ReleaseYear:      int16(in.ReleaseYear),
		Rating:           int16(in.Rating),
		MovieDescription: in.Description,
		ImageData:        in.ImageData,
		PosterPath:       in.PosterPath,
	}

	if err := s.db.WithContext(ctx).Create(&entity).Error; err != nil {
		return "", fmt.Errorf("failed to save movie: %w", err)
	}

	s.logger.DebugContext(ctx, "Created movie", slog.String("id", entity.ID), slog.String("title", entity.Title))
	return entity.ID, nil
}

// Update rewrites the editable fields of a movie. The photo is replaced by
// in.ImageData, so a nil photo clears it. Unknown ids are logged and ignored.
func (s *Store) Update(ctx context.Context, id string, in models.MovieInput) error {
	if err := checkRange(in); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Model(&models.MovieEntity{}).Where("id = ?", id).Updates(map[string]interface{}{
		"title":             in.Title,
		"release_year":      int16(in.ReleaseYear),
		"rating":            int16(in.Rating),
		"movie_description": in.Description,
		"image_data":        in.ImageData,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update movie %s: %w", id, result.Error)
	}

	if result.RowsAffected == 0 {
		s.logger.WarnContext(ctx, "Update of unknown movie ignored", slog.String("id", id))
	}
	return nil
}

// checkRange rejects values that would wrap in the int16 columns.
func checkRange(in models.MovieInput) error {
	if in.ReleaseYear < math.MinInt16 || in.ReleaseYear > math.MaxInt16 {
		return fmt.Errorf("release year %d: %w", in.ReleaseYear, ErrOutOfRange)
	}
	if in.Rating < math.MinInt16 || in.Rating > math.MaxInt16 {
		return fmt.Errorf("rating %d: %w", in.Rating, ErrOutOfRange)
	}
	return nil
}

// Delete removes a movie. Deleting an unknown id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.MovieEntity{}).Error; err != nil {
		return fmt.Errorf("failed to delete movie %s: %w", id, err)
	}
	return nil
}

// ToggleFavorite flips the favorite flag in place. Unknown ids are a no-op.
func (s *Store) ToggleFavorite(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Model(&models.MovieEntity{}).Where("id = ?", id).
		Update("is_favorite", gorm.Expr("NOT is_favorite"))
	if result.Error != nil {
		return fmt.Errorf("failed to toggle favorite for %s: %w", id, result.Error)
	}

	if result.RowsAffected == 0 {
		s.logger.DebugContext(ctx, "Toggle of unknown movie ignored", slog.String("id", id))
	}
	return nil
}

// Stats counts persisted movies. Remote counts are left at zero.
func (s *Store) Stats(ctx context.Context) (types.StatsData, error) {
	var stats types.StatsData
	q := s.db.WithContext(ctx).Model(&models.MovieEntity{})

	if err := q.Session(&gorm.Session{}).Count(&stats.LocalMovies).Error; err != nil {
		return stats, fmt.Errorf("failed to count movies: %w", err)
	}
	if err := q.Session(&gorm.Session{}).Where("is_favorite = ?", true).Count(&stats.Favorites).Error; err != nil {
		return stats, fmt.Errorf("failed to count favorites: %w", err)
	}
	if err := q.Session(&gorm.Session{}).Where("image_data IS NOT NULL AND LENGTH(image_data) > 0").Count(&stats.WithImages).Error; err != nil {
		return stats, fmt.Errorf("failed to count images: %w", err)
	}

	var total struct{ Bytes int64 }
	if err := q.Session(&gorm.Session{}).Select("COALESCE(SUM(LENGTH(image_data)), 0) AS bytes").Scan(&total).Error; err != nil {
		return stats, fmt.Errorf("failed to sum image sizes: %w", err)
	}
	stats.ImageBytesTotal = total.Bytes
	stats.TotalMovies = stats.LocalMovies

	return stats, nil
}
