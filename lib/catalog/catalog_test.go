package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/icco/moviecatalog/lib/db"
	"github.com/icco/moviecatalog/lib/store"
	"github.com/icco/moviecatalog/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeStore is an in-memory Store with switchable failures.
type fakeStore struct {
	mu      sync.Mutex
	movies  []models.Movie
	nextID  int
	listErr error
	saveErr error
	calls   []string

	// holdList, when set, parks the next List after it has read the rows.
	holdList chan struct{}
	held     chan struct{}
}

func (f *fakeStore) List(_ context.Context) ([]models.Movie, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "list")
	if f.listErr != nil {
		err := f.listErr
		f.mu.Unlock()
		return nil, err
	}
	out := make([]models.Movie, len(f.movies))
	copy(out, f.movies)
	hold, held := f.holdList, f.held
	f.holdList, f.held = nil, nil
	f.mu.Unlock()

	if hold != nil {
		close(held)
		<-hold
	}
	return out, nil
}

// holdNextList parks the next List call. held is closed once that call has
// read the rows; closing release lets it return.
func (f *fakeStore) holdNextList() (release chan struct{}, held chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdList = make(chan struct{})
	f.held = make(chan struct{})
	return f.holdList, f.held
}

func (f *fakeStore) Create(_ context.Context, in models.MovieInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create")
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.nextID++
	id := fmt.Sprintf("local-%d", f.nextID)
	f.movies = append(f.movies, models.Movie{
		ID:          id,
		Title:       in.Title,
		ReleaseYear: in.ReleaseYear,
		Rating:      in.Rating,
		Description: in.Description,
		ImageData:   in.ImageData,
		PosterPath:  in.PosterPath,
		Source:      models.SourceLocal,
	})
	return id, nil
}

func (f *fakeStore) Update(_ context.Context, id string, in models.MovieInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "update")
	if f.saveErr != nil {
		return f.saveErr
	}
	for i := range f.movies {
		if f.movies[i].ID == id {
			f.movies[i].Title = in.Title
			f.movies[i].ReleaseYear = in.ReleaseYear
			f.movies[i].Rating = in.Rating
			f.movies[i].Description = in.Description
			f.movies[i].ImageData = in.ImageData
		}
	}
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete")
	if f.saveErr != nil {
		return f.saveErr
	}
	out := f.movies[:0]
	for _, m := range f.movies {
		if m.ID != id {
			out = append(out, m)
		}
	}
	f.movies = out
	return nil
}

func (f *fakeStore) ToggleFavorite(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "toggle")
	if f.saveErr != nil {
		return f.saveErr
	}
	for i := range f.movies {
		if f.movies[i].ID == id {
			f.movies[i].IsFavorite = !f.movies[i].IsFavorite
		}
	}
	return nil
}

func (f *fakeStore) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

// fakeFeed returns a fixed page; when gate is set, each fetch waits on it.
type fakeFeed struct {
	mu    sync.Mutex
	page  []string
	err   error
	gate  chan struct{}
	count int
}

func (f *fakeFeed) FetchPopular(_ context.Context, page int) ([]models.Movie, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var movies []models.Movie
	for _, title := range f.page {
		f.count++
		movies = append(movies, models.Movie{
			ID:          fmt.Sprintf("tmdb-%d", f.count),
			Title:       title,
			ReleaseYear: 1999,
			Rating:      3,
			Source:      models.SourceTMDB,
		})
	}
	return movies, nil
}

func newCatalog(t *testing.T, s Store, f Feed) *Catalog {
	t.Helper()
	c := New(s, f, slog.Default())
	t.Cleanup(c.Close)
	return c
}

func waitFetch(t *testing.T, task *FetchTask) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, _ := task.Wait(ctx)
	require.NoError(t, ctx.Err())
	return n
}

func titles(movies []models.Movie) []string {
	out := make([]string, 0, len(movies))
	for _, m := range movies {
		out = append(out, m.Title)
	}
	return out
}

func assertFavoritesDerived(t *testing.T, c *Catalog) {
	t.Helper()
	snap := c.Snapshot()
	var want []string
	for _, m := range snap.Movies {
		if m.IsFavorite {
			want = append(want, m.ID)
		}
	}
	var got []string
	for _, m := range snap.Favorites {
		got = append(got, m.ID)
	}
	assert.Equal(t, want, got)
}

func TestLoadLocalBeforeRemote(t *testing.T) {
	s := &fakeStore{}
	ctx := context.Background()
	_, err := s.Create(ctx, models.MovieInput{Title: "Mine"})
	require.NoError(t, err)

	c := newCatalog(t, s, &fakeFeed{page: []string{"Popular A", "Popular B"}})
	n := waitFetch(t, c.Load(ctx))

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"Mine", "Popular A", "Popular B"}, titles(c.Movies()))
	assert.True(t, c.Movies()[0].Persisted())
	assert.False(t, c.Movies()[1].Persisted())
}

func TestLoadListsLocalBeforeReturning(t *testing.T) {
	s := &fakeStore{}
	_, err := s.Create(context.Background(), models.MovieInput{Title: "Mine"})
	require.NoError(t, err)

	feed := &fakeFeed{page: []string{"Popular"}, gate: make(chan struct{})}
	c := newCatalog(t, s, feed)

	task := c.Load(context.Background())
	assert.Equal(t, []string{"Mine"}, titles(c.Movies()))

	close(feed.gate)
	waitFetch(t, task)
	assert.Equal(t, []string{"Mine", "Popular"}, titles(c.Movies()))
}

func TestLocalMutationRacingFetchKeepsOrder(t *testing.T) {
	s := &fakeStore{}
	feed := &fakeFeed{page: []string{"Popular"}, gate: make(chan struct{})}
	c := newCatalog(t, s, feed)
	ctx := context.Background()

	task := c.Load(ctx)
	_, ok := c.Add(ctx, models.MovieInput{Title: "Added while fetching"})
	require.True(t, ok)

	close(feed.gate)
	waitFetch(t, task)

	_, ok = c.Add(ctx, models.MovieInput{Title: "Added after"})
	require.True(t, ok)

	assert.Equal(t, []string{"Added while fetching", "Added after", "Popular"}, titles(c.Movies()))
}

func TestReloadDuplicatesRemote(t *testing.T) {
	c := newCatalog(t, &fakeStore{}, &fakeFeed{page: []string{"Popular"}})
	ctx := context.Background()

	waitFetch(t, c.Load(ctx))
	waitFetch(t, c.Load(ctx))

	movies := c.Movies()
	assert.Equal(t, []string{"Popular", "Popular"}, titles(movies))
	assert.NotEqual(t, movies[0].ID, movies[1].ID)
}

func TestFetchFailureAppendsNothing(t *testing.T) {
	s := &fakeStore{}
	_, err := s.Create(context.Background(), models.MovieInput{Title: "Mine"})
	require.NoError(t, err)

	c := newCatalog(t, s, &fakeFeed{err: errors.New("connection refused")})
	task := c.Load(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := task.Wait(ctx)
	assert.Equal(t, 0, n)
	assert.EqualError(t, err, "connection refused")
	assert.Equal(t, []string{"Mine"}, titles(c.Movies()))
}

func TestLoadWithoutFeed(t *testing.T) {
	c := newCatalog(t, &fakeStore{}, nil)
	assert.Equal(t, 0, waitFetch(t, c.Load(context.Background())))
	assert.Empty(t, c.Movies())
}

func TestListFailureKeepsPreviousLocal(t *testing.T) {
	s := &fakeStore{}
	ctx := context.Background()
	c := newCatalog(t, s, nil)

	_, ok := c.Add(ctx, models.MovieInput{Title: "Kept"})
	require.True(t, ok)

	s.mu.Lock()
	s.listErr = errors.New("database is locked")
	s.mu.Unlock()

	waitFetch(t, c.Load(ctx))
	assert.Equal(t, []string{"Kept"}, titles(c.Movies()))
}

func TestAddSaveFailure(t *testing.T) {
	s := &fakeStore{saveErr: errors.New("disk full")}
	c := newCatalog(t, s, nil)

	id, ok := c.Add(context.Background(), models.MovieInput{Title: "Lost"})
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.Empty(t, c.Movies())
}

func TestUpdate(t *testing.T) {
	s := &fakeStore{}
	c := newCatalog(t, s, &fakeFeed{page: []string{"Popular"}})
	ctx := context.Background()

	id, ok := c.Add(ctx, models.MovieInput{Title: "Draft", ReleaseYear: 2020})
	require.True(t, ok)
	waitFetch(t, c.Load(ctx))

	assert.True(t, c.Update(ctx, id, models.MovieInput{Title: "Final", ReleaseYear: 2021, Rating: 5}))
	m, found := c.Get(id)
	require.True(t, found)
	assert.Equal(t, "Final", m.Title)
	assert.Equal(t, 2021, m.ReleaseYear)

	remote := c.Movies()[1]
	assert.False(t, c.Update(ctx, remote.ID, models.MovieInput{Title: "Edited feed"}))
	assert.False(t, c.Update(ctx, "missing", models.MovieInput{Title: "Nope"}))
	assert.Equal(t, 1, s.callCount("update"))
	assert.Equal(t, []string{"Final", "Popular"}, titles(c.Movies()))
}

func TestDeletePersisted(t *testing.T) {
	s := &fakeStore{}
	c := newCatalog(t, s, nil)
	ctx := context.Background()

	keep, _ := c.Add(ctx, models.MovieInput{Title: "Keep"})
	drop, _ := c.Add(ctx, models.MovieInput{Title: "Drop"})

	c.Delete(ctx, drop)
	_, found := c.Get(drop)
	assert.False(t, found)

	listed, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, keep, listed[0].ID)

	c.Delete(ctx, drop)
	assert.Equal(t, []string{"Keep"}, titles(c.Movies()))
}

func TestDeleteRemoteIsSessionOnly(t *testing.T) {
	s := &fakeStore{}
	c := newCatalog(t, s, &fakeFeed{page: []string{"A", "B"}})
	ctx := context.Background()
	waitFetch(t, c.Load(ctx))

	c.Delete(ctx, c.Movies()[0].ID)
	assert.Equal(t, []string{"B"}, titles(c.Movies()))
	assert.Equal(t, 0, s.callCount("delete"))
}

func TestToggleFavorite(t *testing.T) {
	s := &fakeStore{}
	c := newCatalog(t, s, &fakeFeed{page: []string{"Popular"}})
	ctx := context.Background()

	id, _ := c.Add(ctx, models.MovieInput{Title: "Mine"})
	waitFetch(t, c.Load(ctx))
	remoteID := c.Movies()[1].ID

	c.ToggleFavorite(ctx, id)
	assertFavoritesDerived(t, c)
	assert.Equal(t, []string{"Mine"}, titles(c.Favorites()))

	c.ToggleFavorite(ctx, remoteID)
	assertFavoritesDerived(t, c)
	assert.Equal(t, []string{"Mine", "Popular"}, titles(c.Favorites()))
	assert.Equal(t, 1, s.callCount("toggle"))

	// A reload re-lists the store but leaves feed movies untouched.
	waitFetch(t, c.Load(ctx))
	assertFavoritesDerived(t, c)
	assert.Equal(t, []string{"Mine", "Popular"}, titles(c.Favorites()))

	c.ToggleFavorite(ctx, id)
	c.ToggleFavorite(ctx, remoteID)
	assertFavoritesDerived(t, c)
	assert.Empty(t, c.Favorites())

	listed, err := s.List(ctx)
	require.NoError(t, err)
	assert.False(t, listed[0].IsFavorite)
}

func TestToggleFavoriteSaveFailureReverts(t *testing.T) {
	s := &fakeStore{}
	c := newCatalog(t, s, nil)
	ctx := context.Background()

	id, _ := c.Add(ctx, models.MovieInput{Title: "Mine"})
	s.mu.Lock()
	s.saveErr = errors.New("readonly database")
	s.mu.Unlock()

	c.ToggleFavorite(ctx, id)
	m, _ := c.Get(id)
	assert.False(t, m.IsFavorite)
	assert.Empty(t, c.Favorites())
}

func TestStaleListingAfterDelete(t *testing.T) {
	s := &fakeStore{}
	c := newCatalog(t, s, nil)
	ctx := context.Background()

	id, ok := c.Add(ctx, models.MovieInput{Title: "X"})
	require.True(t, ok)

	release, held := s.holdNextList()
	loaded := make(chan *FetchTask, 1)
	go func() { loaded <- c.Load(ctx) }()
	<-held

	c.Delete(ctx, id)
	assert.Empty(t, c.Movies())

	close(release)
	waitFetch(t, <-loaded)

	_, found := c.Get(id)
	assert.False(t, found)
	assert.Empty(t, c.Movies())
}

func TestStaleListingAfterToggle(t *testing.T) {
	s := &fakeStore{}
	c := newCatalog(t, s, nil)
	ctx := context.Background()

	id, ok := c.Add(ctx, models.MovieInput{Title: "X"})
	require.True(t, ok)

	release, held := s.holdNextList()
	loaded := make(chan *FetchTask, 1)
	go func() { loaded <- c.Load(ctx) }()
	<-held

	c.ToggleFavorite(ctx, id)
	assert.Equal(t, []string{"X"}, titles(c.Favorites()))

	close(release)
	waitFetch(t, <-loaded)

	m, found := c.Get(id)
	require.True(t, found)
	assert.True(t, m.IsFavorite)
	assertFavoritesDerived(t, c)
}

func TestStaleListingAfterAdd(t *testing.T) {
	s := &fakeStore{}
	c := newCatalog(t, s, nil)
	ctx := context.Background()

	release, held := s.holdNextList()
	loaded := make(chan *FetchTask, 1)
	go func() { loaded <- c.Load(ctx) }()
	<-held

	_, ok := c.Add(ctx, models.MovieInput{Title: "New"})
	require.True(t, ok)

	close(release)
	waitFetch(t, <-loaded)
	assert.Equal(t, []string{"New"}, titles(c.Movies()))
}

func TestSearch(t *testing.T) {
	s := &fakeStore{}
	c := newCatalog(t, s, nil)
	ctx := context.Background()

	for _, in := range []models.MovieInput{
		{Title: "Alien", ReleaseYear: 1979},
		{Title: "Aliens", ReleaseYear: 1986},
		{Title: "Heat", ReleaseYear: 1995},
	} {
		_, ok := c.Add(ctx, in)
		require.True(t, ok)
	}

	assert.Equal(t, []string{"Alien", "Aliens"}, titles(c.Search("ali")))
	assert.Equal(t, []string{"Alien", "Aliens"}, titles(c.Search("19")[:2]))
	assert.Equal(t, []string{"Heat"}, titles(c.Search("1995")))
	assert.Len(t, c.Search(""), 3)
	assert.Empty(t, c.Search("zzz"))
}

func TestStats(t *testing.T) {
	s := &fakeStore{}
	c := newCatalog(t, s, &fakeFeed{page: []string{"Popular"}})
	ctx := context.Background()

	id, _ := c.Add(ctx, models.MovieInput{Title: "Mine", ImageData: []byte{1, 2}})
	waitFetch(t, c.Load(ctx))
	c.ToggleFavorite(ctx, id)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.TotalMovies)
	assert.Equal(t, int64(1), stats.LocalMovies)
	assert.Equal(t, int64(1), stats.RemoteMovies)
	assert.Equal(t, int64(1), stats.Favorites)
	assert.Equal(t, int64(1), stats.WithImages)
	assert.Equal(t, int64(2), stats.ImageBytesTotal)
}

func TestSubscribe(t *testing.T) {
	c := New(&fakeStore{}, nil, slog.Default())
	ctx := context.Background()

	updates, cancel := c.Subscribe()
	first := <-updates
	assert.Empty(t, first.Movies)

	_, ok := c.Add(ctx, models.MovieInput{Title: "Mine"})
	require.True(t, ok)

	select {
	case snap := <-updates:
		assert.Equal(t, []string{"Mine"}, titles(snap.Movies))
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot after add")
	}

	cancel()
	cancel()
	_, open := <-updates
	assert.False(t, open)

	other, _ := c.Subscribe()
	c.Close()
	for range other {
	}

	closedUpdates, _ := c.Subscribe()
	_, open = <-closedUpdates
	assert.False(t, open)
}

func TestSubscribeDoesNotRebroadcast(t *testing.T) {
	c := newCatalog(t, &fakeStore{}, nil)

	first, cancelFirst := c.Subscribe()
	<-first

	second, cancelSecond := c.Subscribe()
	<-second

	select {
	case <-first:
		t.Fatal("existing subscriber notified of a new subscription")
	default:
	}

	cancelSecond()
	select {
	case <-first:
		t.Fatal("existing subscriber notified of a cancelled subscription")
	default:
	}
	cancelFirst()
}

func TestFetchAfterCloseIsDropped(t *testing.T) {
	feed := &fakeFeed{page: []string{"Late"}, gate: make(chan struct{})}
	c := New(&fakeStore{}, feed, slog.Default())

	task := c.Load(context.Background())
	c.Close()
	close(feed.gate)

	assert.Equal(t, 0, waitFetch(t, task))
	assert.Empty(t, c.Movies())
}

func TestFavoritesAndFilterArePure(t *testing.T) {
	movies := []models.Movie{
		{ID: "1", Title: "Up", ReleaseYear: 2009, IsFavorite: true},
		{ID: "2", Title: "Upgrade", ReleaseYear: 2018},
		{ID: "3", Title: "Cars", ReleaseYear: 2006, IsFavorite: true},
	}

	assert.Equal(t, []string{"Up", "Cars"}, titles(Favorites(movies)))
	assert.Equal(t, []string{"Up", "Upgrade"}, titles(Filter(movies, "UP")))
	assert.Equal(t, []string{"Up", "Cars"}, titles(Filter(movies, "200")))
	assert.NotNil(t, Favorites(nil))
	assert.Equal(t, "Up", movies[0].Title)
}

func TestWithSQLiteStore(t *testing.T) {
	gormDB, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(gormDB, slog.Default()))
	t.Cleanup(func() { _ = db.Close(gormDB) })

	ctx := context.Background()
	c := newCatalog(t, store.New(gormDB, slog.Default()), &fakeFeed{page: []string{"Popular"}})
	waitFetch(t, c.Load(ctx))

	id, ok := c.Add(ctx, models.MovieInput{Title: "X", ReleaseYear: 2024, Rating: 4})
	require.True(t, ok)
	assert.Equal(t, []string{"X", "Popular"}, titles(c.Movies()))

	c.ToggleFavorite(ctx, id)
	c.ToggleFavorite(ctx, id)
	m, _ := c.Get(id)
	assert.False(t, m.IsFavorite)

	c.Delete(ctx, id)
	reloaded := New(store.New(gormDB, slog.Default()), nil, slog.Default())
	defer reloaded.Close()
	waitFetch(t, reloaded.Load(ctx))
	for _, m := range reloaded.Movies() {
		assert.NotEqual(t, id, m.ID)
	}
}
