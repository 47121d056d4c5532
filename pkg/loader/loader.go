// Package loader runs snapshot queries for live views. At most one query per
// scope is in flight: a new Load cancels the previous one, and results of
// cancelled queries are never delivered.
package loader

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/grovetools/cryoview/errors"
	"github.com/grovetools/cryoview/pkg/live"
)

// DefaultRefreshInterval is the minimum spacing of manual refreshes.
const DefaultRefreshInterval = time.Second

// Query fetches the authoritative snapshot of a collection for scope.
type Query[R any] func(ctx context.Context, scope string) (live.Snapshot[R], error)

// Result is the outcome of one Load.
type Result[R any] struct {
	Ticket   live.Ticket
	Scope    string
	Snapshot live.Snapshot[R]
	// Err is classified as AUTH_FAILURE or TRANSIENT_FETCH_FAILURE.
	Err      error
	Duration time.Duration
}

type options struct {
	logger          *logrus.Entry
	refreshInterval time.Duration
}

type Option func(*options)

func WithLogger(l *logrus.Entry) Option { return func(o *options) { o.logger = l } }

// WithRefreshInterval sets the minimum spacing between manual refreshes.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) { o.refreshInterval = d }
}

// Loader executes a Query in the background and reports on Results.
type Loader[R any] struct {
	query   Query[R]
	logger  *logrus.Entry
	limiter *rate.Limiter
	results chan Result[R]
	done    chan struct{}

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	wg       sync.WaitGroup
	closed   bool
}

func New[R any](query Query[R], opts ...Option) *Loader[R] {
	o := options{refreshInterval: DefaultRefreshInterval}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		o.logger = logrus.NewEntry(l)
	}
	limit := rate.Inf
	if o.refreshInterval > 0 {
		limit = rate.Every(o.refreshInterval)
	}
	return &Loader[R]{
		query:    query,
		logger:   o.logger,
		limiter:  rate.NewLimiter(limit, 1),
		results:  make(chan Result[R], 1),
		done:     make(chan struct{}),
		inflight: make(map[string]context.CancelFunc),
	}
}

// Results delivers completed loads. Superseded loads never appear here.
func (l *Loader[R]) Results() <-chan Result[R] { return l.results }

// Load starts a query for scope tagged with ticket, cancelling any query for
// the same scope still in flight.
func (l *Loader[R]) Load(ctx context.Context, scope string, ticket live.Ticket) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	if cancel, ok := l.inflight[scope]; ok {
		cancel()
		l.logger.WithFields(logrus.Fields{"scope": scope, "ticket": ticket}).Debug("Superseding in-flight load")
	}
	qctx, cancel := context.WithCancel(ctx)
	l.inflight[scope] = cancel
	l.wg.Add(1)
	l.mu.Unlock()

	go l.run(qctx, cancel, scope, ticket)
}

func (l *Loader[R]) run(ctx context.Context, cancel context.CancelFunc, scope string, ticket live.Ticket) {
	defer l.wg.Done()
	defer cancel()

	start := time.Now()
	snap, err := l.safeQuery(ctx, scope)
	elapsed := time.Since(start)

	l.mu.Lock()
	superseded := ctx.Err() != nil
	if !superseded {
		delete(l.inflight, scope)
	}
	l.mu.Unlock()
	if superseded {
		return
	}

	res := Result[R]{Ticket: ticket, Scope: scope, Snapshot: snap, Duration: elapsed}
	if err != nil {
		res.Err = Classify(err)
		res.Snapshot = live.Snapshot[R]{}
		l.logger.WithFields(logrus.Fields{
			"scope": scope,
			"code":  errors.GetCode(res.Err),
		}).WithError(err).Warn("Snapshot load failed")
	} else {
		l.logger.WithFields(logrus.Fields{
			"scope":    scope,
			"records":  len(snap.Records),
			"duration": elapsed,
		}).Debug("Snapshot loaded")
	}

	select {
	case l.results <- res:
	case <-l.done:
	case <-ctx.Done():
	}
}

func (l *Loader[R]) safeQuery(ctx context.Context, scope string) (snap live.Snapshot[R], err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.New(errors.ErrCodeInternal, "query panicked").WithDetail("panic", p)
		}
	}()
	return l.query(ctx, scope)
}

// RefreshDelay reserves the next manual refresh slot and returns how long to
// wait before running it. Zero means refresh now.
func (l *Loader[R]) RefreshDelay() time.Duration {
	return l.limiter.Reserve().Delay()
}

// Pending reports whether a query for scope is in flight.
func (l *Loader[R]) Pending(scope string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.inflight[scope]
	return ok
}

func (l *Loader[R]) cancelAll() {
	l.mu.Lock()
	for scope, cancel := range l.inflight {
		cancel()
		delete(l.inflight, scope)
	}
	l.mu.Unlock()
	l.wg.Wait()
}

// Close cancels in-flight queries and waits for them to return. Further
// Loads are ignored.
func (l *Loader[R]) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.done)
	l.mu.Unlock()
	l.cancelAll()
}

// Classify maps a query error onto the two failure kinds a view can show.
// Errors already carrying one of those codes pass through.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch errors.GetCode(err) {
	case errors.ErrCodeAuthFailure, errors.ErrCodeTransientFetchFailure:
		return err
	case errors.ErrCodePermissionDenied:
		return errors.AuthFailure(err)
	}
	return errors.TransientFetchFailure(err)
}
