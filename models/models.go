package models

import (
	"fmt"
	"time"
)

const (
	// SourceLocal marks a movie persisted in the local store.
	SourceLocal = "local"
	// SourceTMDB marks a transient movie from the popular feed.
	SourceTMDB = "tmdb"

	posterBaseURL = "https://image.tmdb.org/t/p/w500"
)

// Movie is the in-memory catalog entry shared by the local store and the feed.
type Movie struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	ReleaseYear int     `json:"release_year"`
	Rating      int     `json:"rating"`
	Description string  `json:"description"`
	ImageData   []byte  `json:"-"`
	PosterPath  *string `json:"poster_path,omitempty"`
	IsFavorite  bool    `json:"is_favorite"`
	Source      string  `json:"source"` // "local" or "tmdb"
}

// Persisted reports whether the movie has a durable counterpart.
func (m Movie) Persisted() bool {
	return m.Source == SourceLocal
}

// HasImage reports whether a locally supplied photo is attached.
func (m Movie) HasImage() bool {
	return len(m.ImageData) > 0
}

// ImageURL returns the poster URL for feed movies, or "" when there is none.
func (m Movie) ImageURL() string {
	if m.PosterPath == nil || *m.PosterPath == "" {
		return ""
	}
	return fmt.Sprintf("%s%s", posterBaseURL, *m.PosterPath)
}

// MovieInput carries the user-editable fields for create and update.
type MovieInput struct {
	Title       string  `json:"title"`
	ReleaseYear int     `json:"release_year"`
	Rating      int     `json:"rating"`
	Description string  `json:"description"`
	ImageData   []byte  `json:"image_data,omitempty"`
	PosterPath  *string `json:"poster_path,omitempty"`
}

// MovieEntity is the persisted row for a locally created movie.
type MovieEntity struct {
	ID               string  `gorm:"primaryKey;size:36"`
	Title            string  `gorm:"not null"`
	ReleaseYear      int16   `gorm:"not null;default:0"`
	Rating           int16   `gorm:"not null;default:0"`
	MovieDescription string
	ImageData        []byte
	PosterPath       *string
	IsFavorite       bool `gorm:"not null;default:false;index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (MovieEntity) TableName() string {
	return "movies"
}

// ToMovie converts a row into a catalog entry, defaulting missing text.
func (e MovieEntity) ToMovie() Movie {
	title := e.Title
	if title == "" {
		title = "Unknown"
	}

	description := e.MovieDescription
	if description == "" {
		description = "No description"
	}

	var poster *string
	if e.PosterPath != nil && *e.PosterPath != "" {
		p := *e.PosterPath
		poster = &p
	}

	return Movie{
		ID:          e.ID,
		Title:       title,
		ReleaseYear: int(e.ReleaseYear),
		Rating:      int(e.Rating),
		Description: description,
		ImageData:   e.ImageData,
		PosterPath:  poster,
		IsFavorite:  e.IsFavorite,
		Source:      SourceLocal,
	}
}
