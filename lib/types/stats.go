package types

// StatsData represents counts over the local store and the merged catalog.
type StatsData struct {
	TotalMovies     int64 `json:"total_movies"`
	LocalMovies     int64 `json:"local_movies"`
	RemoteMovies    int64 `json:"remote_movies"`
	Favorites       int64 `json:"favorites"`
	WithImages      int64 `json:"with_images"`
	ImageBytesTotal int64 `json:"image_bytes_total"`
}
