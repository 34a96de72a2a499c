package catalog

import (
	"strconv"
	"strings"

	"github.com/icco/moviecatalog/models"
)

func merge(local, remote []models.Movie) []models.Movie {
	movies := make([]models.Movie, 0, len(local)+len(remote))
	movies = append(movies, local...)
	return append(movies, remote...)
}

// Favorites returns the favorite movies in list order.
func Favorites(movies []models.Movie) []models.Movie {
	favorites := []models.Movie{}
	for _, m := range movies {
		if m.IsFavorite {
			favorites = append(favorites, m)
		}
	}
	return favorites
}

// Filter keeps movies whose title starts with query, ignoring case, or
// whose release year starts with query. An empty query keeps everything.
func Filter(movies []models.Movie, query string) []models.Movie {
	if query == "" {
		return movies
	}

	lower := strings.ToLower(query)
	matches := []models.Movie{}
	for _, m := range movies {
		if strings.HasPrefix(strings.ToLower(m.Title), lower) ||
			strings.HasPrefix(strconv.Itoa(m.ReleaseYear), query) {
			matches = append(matches, m)
		}
	}
	return matches
}
