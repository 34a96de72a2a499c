package catalog

import "context"

// FetchTask tracks one background feed fetch started by Load.
type FetchTask struct {
	done  chan struct{}
	count int
	err   error
}

func newFetchTask() *FetchTask {
	return &FetchTask{done: make(chan struct{})}
}

func (t *FetchTask) finish(count int, err error) {
	t.count = count
	t.err = err
	close(t.done)
}

// Done is closed once the fetch result has been applied or discarded.
func (t *FetchTask) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the fetch finishes and returns the number of movies
// appended. A fetch error has already been logged by the catalog and is
// returned for information only.
func (t *FetchTask) Wait(ctx context.Context) (int, error) {
	select {
	case <-t.done:
		return t.count, t.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
