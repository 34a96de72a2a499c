package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/icco/moviecatalog/models"
)

const (
	DefaultBaseURL = "https://api.themoviedb.org/3"
	posterBaseURL  = "https://image.tmdb.org/t/p/w500"
)

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRand sets the source used for the ratings the feed does not provide.
func WithRand(rnd *rand.Rand) Option {
	return func(c *Client) {
		c.rnd = rnd
	}
}

// PopularResult is the body of /movie/popular.
type PopularResult struct {
	Page    int           `json:"page"`
	Results []PopularItem `json:"results"`
}

type PopularItem struct {
	Title       string  `json:"title"`
	ReleaseDate string  `json:"release_date"`
	Overview    string  `json:"overview"`
	PosterPath  *string `json:"poster_path"`
}

func NewClient(apiKey string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 - ratings are cosmetic
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPopular fetches a single page of popular movies as transient catalog entries.
func (c *Client) FetchPopular(ctx context.Context, page int) ([]models.Movie, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("language", "en-US")
	q.Set("page", strconv.Itoa(page))
	reqURL := fmt.Sprintf("%s/movie/popular?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.DebugContext(ctx, "Fetching popular movies", slog.Int("page", page))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status from tmdb: %s", resp.Status)
	}

	var result PopularResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.mu.Lock()
	movies := MapPopular(result, c.rnd)
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "Fetched popular movies", slog.Int("page", page), slog.Int("count", len(movies)))
	return movies, nil
}

// MapPopular converts feed entries into transient movies. The feed carries no
// rating, so each entry gets one drawn from rnd in [1,5].
func MapPopular(result PopularResult, rnd *rand.Rand) []models.Movie {
	movies := make([]models.Movie, 0, len(result.Results))
	for _, item := range result.Results {
		var poster *string
		if item.PosterPath != nil && *item.PosterPath != "" {
			p := *item.PosterPath
			poster = &p
		}

		movies = append(movies, models.Movie{
			ID:          uuid.NewString(),
			Title:       item.Title,
			ReleaseYear: ParseReleaseYear(item.ReleaseDate),
			Rating:      rnd.Intn(5) + 1,
			Description: item.Overview,
			PosterPath:  poster,
			Source:      models.SourceTMDB,
		})
	}
	return movies
}

// ParseReleaseYear reads the year from the first four characters of a
// release date, returning 0 when they are not a number.
func ParseReleaseYear(releaseDate string) int {
	prefix := releaseDate
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	year, err := strconv.Atoi(prefix)
	if err != nil {
		return 0
	}
	return year
}

func (c *Client) GetPosterURL(posterPath string) string {
	if posterPath == "" {
		return ""
	}
	return fmt.Sprintf("%s%s", posterBaseURL, posterPath)
}
