package catalogclient

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/catalog"
)

// ErrSuperseded is returned by Latest.Query when a newer query was issued
// before this one completed.
var ErrSuperseded = errors.New("query superseded")

// Querier runs catalog queries.
type Querier interface {
	Query(ctx context.Context, q catalog.Query) (catalog.Result, error)
}

// Latest applies last-request-wins: each Query cancels the one in flight, so
// only the most recent filters ever produce a result.
type Latest struct {
	q Querier

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewLatest wraps q.
func NewLatest(q Querier) *Latest {
	return &Latest{q: q}
}

// Query cancels any in-flight query and runs q. If another Query starts before
// this one returns, the result is discarded and ErrSuperseded returned.
func (l *Latest) Query(ctx context.Context, q catalog.Query) (catalog.Result, error) {
	ctx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.seq++
	seq := l.seq
	l.cancel = cancel
	l.mu.Unlock()

	res, err := l.q.Query(ctx, q)

	l.mu.Lock()
	current := l.seq == seq
	if current {
		l.cancel = nil
	}
	l.mu.Unlock()
	cancel()

	if !current {
		return catalog.Result{}, ErrSuperseded
	}
	return res, err
}

// Cancel aborts the in-flight query, if any; it then returns ErrSuperseded.
func (l *Latest) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.seq++
}
