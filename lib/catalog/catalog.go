// Package catalog merges the local movie store and the popular feed into a
// single list.
//
// The merged list and the favorites derived from it are published as an
// immutable Snapshot. Store and network calls run on the caller's goroutine
// (or a fetch goroutine); only the application of their results to the list
// is serialized, through a queue drained by one goroutine. Local movies
// always precede feed movies in the list.
//
// Store listings carry a generation taken before the store is read. A
// listing older than the last applied listing or local edit is dropped.
package catalog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/icco/moviecatalog/lib/types"
	"github.com/icco/moviecatalog/models"
)

// Store is the durable side of the catalog.
type Store interface {
	List(ctx context.Context) ([]models.Movie, error)
	Create(ctx context.Context, in models.MovieInput) (string, error)
	Update(ctx context.Context, id string, in models.MovieInput) error
	Delete(ctx context.Context, id string) error
	ToggleFavorite(ctx context.Context, id string) error
}

// Feed supplies transient movies one page at a time.
type Feed interface {
	FetchPopular(ctx context.Context, page int) ([]models.Movie, error)
}

// Snapshot is the published state. Its slices must not be modified.
type Snapshot struct {
	Movies    []models.Movie `json:"movies"`
	Favorites []models.Movie `json:"favorites"`
}

type state struct {
	local    []models.Movie
	localGen uint64
	remote   []models.Movie
	subs     map[int]chan Snapshot
	nextID   int
}

// mutation reports whether it changed the list; only changes are published.
type mutation struct {
	fn   func(*state) bool
	done chan struct{}
}

type Catalog struct {
	store  Store
	feed   Feed
	logger *slog.Logger

	queue     chan mutation
	closed    chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	snap    atomic.Pointer[Snapshot]
	listSeq atomic.Uint64
	st      state
}

// New starts a catalog. feed may be nil, in which case Load only lists the store.
func New(store Store, feed Feed, logger *slog.Logger) *Catalog {
	c := &Catalog{
		store:   store,
		feed:    feed,
		logger:  logger,
		queue:   make(chan mutation),
		closed:  make(chan struct{}),
		stopped: make(chan struct{}),
		st:      state{subs: map[int]chan Snapshot{}},
	}
	c.snap.Store(&Snapshot{Movies: []models.Movie{}, Favorites: []models.Movie{}})

	go c.run()
	return c
}

func (c *Catalog) run() {
	defer close(c.stopped)
	for {
		select {
		case m := <-c.queue:
			if m.fn(&c.st) {
				c.publish()
			}
			close(m.done)
		case <-c.closed:
			for id, ch := range c.st.subs {
				close(ch)
				delete(c.st.subs, id)
			}
			return
		}
	}
}

// apply runs fn on the queue goroutine and waits for it. It reports false
// once the catalog is closed.
func (c *Catalog) apply(fn func(*state) bool) bool {
	m := mutation{fn: fn, done: make(chan struct{})}
	select {
	case c.queue <- m:
	case <-c.closed:
		return false
	}
	<-m.done
	return true
}

func (c *Catalog) publish() {
	movies := merge(c.st.local, c.st.remote)
	snap := &Snapshot{Movies: movies, Favorites: Favorites(movies)}
	c.snap.Store(snap)

	for _, ch := range c.st.subs {
		offer(ch, *snap)
	}
}

// offer delivers s to a buffered subscriber, replacing an unread snapshot.
func offer(ch chan Snapshot, s Snapshot) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// Close stops the queue. Fetches already in flight finish but their results
// are dropped.
func (c *Catalog) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	<-c.stopped
}

func (c *Catalog) Snapshot() Snapshot {
	return *c.snap.Load()
}

func (c *Catalog) Movies() []models.Movie {
	return c.snap.Load().Movies
}

func (c *Catalog) Favorites() []models.Movie {
	return c.snap.Load().Favorites
}

// Search filters the current list by title or year prefix.
func (c *Catalog) Search(query string) []models.Movie {
	return Filter(c.Movies(), query)
}

func (c *Catalog) Get(id string) (models.Movie, bool) {
	for _, m := range c.Movies() {
		if m.ID == id {
			return m, true
		}
	}
	return models.Movie{}, false
}

// Stats counts the current list.
func (c *Catalog) Stats() types.StatsData {
	var stats types.StatsData
	for _, m := range c.Movies() {
		stats.TotalMovies++
		if m.Persisted() {
			stats.LocalMovies++
		} else {
			stats.RemoteMovies++
		}
		if m.IsFavorite {
			stats.Favorites++
		}
		if m.HasImage() {
			stats.WithImages++
			stats.ImageBytesTotal += int64(len(m.ImageData))
		}
	}
	return stats
}

// Subscribe returns a channel that receives the latest snapshot after every
// change, starting with the current one. Slow readers only see the newest.
func (c *Catalog) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	var id int
	if !c.apply(func(s *state) bool {
		id = s.nextID
		s.nextID++
		s.subs[id] = ch
		offer(ch, *c.snap.Load())
		return false
	}) {
		close(ch)
		return ch, func() {}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.apply(func(s *state) bool {
				if _, ok := s.subs[id]; ok {
					delete(s.subs, id)
					close(ch)
				}
				return false
			})
		})
	}
	return ch, cancel
}

// Load lists the store into the local section of the list, then fetches the
// first feed page in the background and appends it to the feed section.
// Nothing is cached, so every call appends another copy of the page.
func (c *Catalog) Load(ctx context.Context) *FetchTask {
	c.refreshLocal(ctx)

	task := newFetchTask()
	if c.feed == nil {
		c.logger.WarnContext(ctx, "No feed configured, skipping popular movies")
		task.finish(0, nil)
		return task
	}

	// The fetch outlives the caller.
	fetchCtx := context.WithoutCancel(ctx)
	go func() {
		movies, err := c.feed.FetchPopular(fetchCtx, 1)
		if err != nil {
			c.logger.ErrorContext(fetchCtx, "Failed to fetch popular movies", slog.Any("error", err))
			task.finish(0, err)
			return
		}

		if !c.apply(func(s *state) bool {
			s.remote = append(s.remote, movies...)
			return true
		}) {
			c.logger.WarnContext(fetchCtx, "Catalog closed, dropping popular movies", slog.Int("count", len(movies)))
			task.finish(0, nil)
			return
		}

		c.logger.InfoContext(fetchCtx, "Appended popular movies", slog.Int("count", len(movies)))
		task.finish(len(movies), nil)
	}()

	return task
}

// refreshLocal replaces the local section with a fresh store listing. On
// failure the previous section is kept. A listing overtaken by a newer one
// is discarded.
func (c *Catalog) refreshLocal(ctx context.Context) {
	gen := c.listSeq.Add(1)
	movies, err := c.store.List(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to fetch movies", slog.Any("error", err))
		return
	}

	c.apply(func(s *state) bool {
		if gen < s.localGen {
			c.logger.DebugContext(ctx, "Dropping stale store listing", slog.Uint64("generation", gen), slog.Uint64("current", s.localGen))
			return false
		}
		s.local = movies
		s.localGen = gen
		return true
	})
}

// editLocal applies fn to the local section and invalidates every listing
// started before it. Callers follow up with refreshLocal.
func (c *Catalog) editLocal(fn func(s *state) bool) {
	c.apply(func(s *state) bool {
		s.localGen = c.listSeq.Add(1)
		return fn(s)
	})
}

// Add persists a new movie and reports its id.
func (c *Catalog) Add(ctx context.Context, in models.MovieInput) (string, bool) {
	id, err := c.store.Create(ctx, in)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to save movie", slog.String("title", in.Title), slog.Any("error", err))
		return "", false
	}

	c.refreshLocal(ctx)
	return id, true
}

// Update edits a persisted movie. Feed movies cannot be edited; for those,
// and for unknown ids, it reports false.
func (c *Catalog) Update(ctx context.Context, id string, in models.MovieInput) bool {
	m, ok := c.Get(id)
	if !ok || !m.Persisted() {
		c.logger.WarnContext(ctx, "Update of non-persisted movie ignored", slog.String("id", id))
		return false
	}

	if err := c.store.Update(ctx, id, in); err != nil {
		c.logger.ErrorContext(ctx, "Failed to update movie", slog.String("id", id), slog.Any("error", err))
		return false
	}

	c.refreshLocal(ctx)
	return true
}

// Delete drops the movie from the list and, unless it came from the feed,
// from the store. Ids missing from the list are still deleted from the store.
func (c *Catalog) Delete(ctx context.Context, id string) {
	if m, ok := c.Get(id); ok && !m.Persisted() {
		c.apply(func(s *state) bool {
			var removed bool
			s.remote, removed = without(s.remote, id)
			return removed
		})
		return
	}

	if err := c.store.Delete(ctx, id); err != nil {
		c.logger.ErrorContext(ctx, "Failed to delete movie", slog.String("id", id), slog.Any("error", err))
		c.refreshLocal(ctx)
		return
	}

	c.editLocal(func(s *state) bool {
		var removed bool
		s.local, removed = without(s.local, id)
		return removed
	})
	c.refreshLocal(ctx)
}

// ToggleFavorite flips the favorite flag in the list and, unless the movie
// came from the feed, in the store. Feed movies lose the flag on the next
// launch.
func (c *Catalog) ToggleFavorite(ctx context.Context, id string) {
	if m, ok := c.Get(id); ok && !m.Persisted() {
		c.apply(func(s *state) bool {
			return flip(s.remote, id)
		})
		return
	}

	if err := c.store.ToggleFavorite(ctx, id); err != nil {
		c.logger.ErrorContext(ctx, "Failed to toggle favorite", slog.String("id", id), slog.Any("error", err))
		return
	}

	c.editLocal(func(s *state) bool {
		return flip(s.local, id)
	})
	c.refreshLocal(ctx)
}

func without(movies []models.Movie, id string) ([]models.Movie, bool) {
	out := make([]models.Movie, 0, len(movies))
	removed := false
	for _, m := range movies {
		if m.ID == id {
			removed = true
			continue
		}
		out = append(out, m)
	}
	return out, removed
}

func flip(movies []models.Movie, id string) bool {
	for i := range movies {
		if movies[i].ID == id {
			movies[i].IsFavorite = !movies[i].IsFavorite
			return true
		}
	}
	return false
}
