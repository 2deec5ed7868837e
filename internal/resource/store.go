// Package resource caches one remote data domain at a time. A Store keeps
// the last successful response, a loading flag and the last error, and decides
// per Fetch whether the network has to be asked again.
package resource

import (
	"context"
	"slices"
	"sync"
	"time"

	slogctx "github.com/veqryn/slog-context"
)

const DefaultTTL = 5 * time.Minute

// Params are the query parameters of a fetch.
type Params interface {
	// PaginationChanging reports whether the params select a page, a page
	// size or a search term. Such fetches bypass the freshness check.
	PaginationChanging() bool
	// Pagination returns the requested page (1 based) and page size.
	Pagination() (page, limit int)
}

// Result is what a FetchFunc hands back. TotalCount is set for paginated
// endpoints only.
type Result[T any] struct {
	Data       T
	TotalCount *int
}

type FetchFunc[T any, P Params] func(ctx context.Context, params P) (Result[T], error)

type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	PageSize    int  `json:"pageSize"`
	TotalCount  int  `json:"totalCount"`
	HasNext     bool `json:"hasNext"`
}

// Entry is a snapshot of a Store.
type Entry[T any] struct {
	Data          T
	Loading       bool
	Err           error
	LastFetchedAt *time.Time
	Pagination    *Pagination
}

// Outcome tells a caller what Fetch did.
type Outcome int

const (
	// Dropped: another fetch was in flight.
	Dropped Outcome = iota
	// Cached: the data was fresh and nothing was requested.
	Cached
	Fetched
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Dropped:
		return "dropped"
	case Cached:
		return "cached"
	case Fetched:
		return "fetched"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type options struct {
	ttl time.Duration
	now func() time.Time
}

type Option func(*options)

func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type Store[T any, P Params] struct {
	name  string
	fetch FetchFunc[T, P]
	ttl   time.Duration
	now   func() time.Time

	mu          sync.Mutex
	entry       Entry[T]
	version     uint64
	subscribers []*subscriber[T]
	nextSubID   int
}

// subscriber serializes the calls to fn and skips snapshots older than the
// last one fn saw.
type subscriber[T any] struct {
	id int
	fn func(Entry[T])

	mu         sync.Mutex
	queue      []versioned[T]
	delivering bool
	last       uint64
}

type versioned[T any] struct {
	entry   Entry[T]
	version uint64
}

func NewStore[T any, P Params](name string, fetch FetchFunc[T, P], opts ...Option) *Store[T, P] {
	o := options{ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Store[T, P]{
		name:        name,
		fetch:       fetch,
		ttl:         o.ttl,
		now:         o.now,
	}
}

func (s *Store[T, P]) Name() string {
	return s.name
}

// Fetch loads data for params unless a fetch is already running or the
// cached data is still fresh. Once accepted, the fetch runs to completion
// even if ctx is cancelled, and its result is always written back. A failed
// fetch keeps the previous data next to the error.
func (s *Store[T, P]) Fetch(ctx context.Context, params P) Outcome {
	ctx = slogctx.With(ctx, "resource", s.name)

	s.mu.Lock()
	if s.entry.Loading {
		s.mu.Unlock()
		slogctx.Debug(ctx, "Fetch dropped, another one is in flight")
		return Dropped
	}

	if s.freshLocked() && !params.PaginationChanging() {
		s.mu.Unlock()
		return Cached
	}

	s.entry.Loading = true
	snapshot, version := s.changedLocked()
	s.mu.Unlock()
	s.notify(snapshot, version)

	res, err := s.fetch(context.WithoutCancel(ctx), params)

	s.mu.Lock()
	s.entry.Loading = false

	outcome := Fetched
	if err != nil {
		s.entry.Err = err
		outcome = Failed
	} else {
		now := s.now()
		s.entry.Data = res.Data
		s.entry.Err = nil
		s.entry.LastFetchedAt = &now
		if res.TotalCount != nil {
			s.entry.Pagination = paginate(params, *res.TotalCount)
		}
	}

	snapshot, version = s.changedLocked()
	s.mu.Unlock()
	s.notify(snapshot, version)

	if err != nil {
		slogctx.Warn(ctx, "Fetch failed", "error", err)
	}

	return outcome
}

// ClearCache forgets the data so the next Fetch goes to the network. The
// loading flag and the last error are left alone.
func (s *Store[T, P]) ClearCache() {
	s.mu.Lock()
	var zero T
	s.entry.Data = zero
	s.entry.LastFetchedAt = nil
	snapshot, version := s.changedLocked()
	s.mu.Unlock()

	s.notify(snapshot, version)
}

func (s *Store[T, P]) Snapshot() Entry[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

// Fresh reports whether the data was fetched less than the TTL ago.
func (s *Store[T, P]) Fresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.freshLocked()
}

// Subscribe calls fn with a snapshot after every state change until the
// returned function is called. Calls to fn never overlap and snapshots arrive
// in the order the changes happened; one that is older than a snapshot fn
// already saw is skipped. A snapshot may reach fn after the call that caused
// it returned, when fn is still busy with an earlier one.
func (s *Store[T, P]) Subscribe(fn func(Entry[T])) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers = append(s.subscribers, &subscriber[T]{id: id, fn: fn, last: s.version})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.subscribers = slices.DeleteFunc(s.subscribers, func(sub *subscriber[T]) bool { return sub.id == id })
	}
}

func (s *Store[T, P]) freshLocked() bool {
	if s.entry.LastFetchedAt == nil {
		return false
	}

	return s.now().Sub(*s.entry.LastFetchedAt) < s.ttl
}

// changedLocked numbers a state change and returns its snapshot.
func (s *Store[T, P]) changedLocked() (Entry[T], uint64) {
	s.version++

	return s.snapshotLocked(), s.version
}

func (s *Store[T, P]) snapshotLocked() Entry[T] {
	e := s.entry
	if e.LastFetchedAt != nil {
		at := *e.LastFetchedAt
		e.LastFetchedAt = &at
	}
	if e.Pagination != nil {
		p := *e.Pagination
		e.Pagination = &p
	}

	return e
}

func (s *Store[T, P]) notify(e Entry[T], version uint64) {
	s.mu.Lock()
	subs := slices.Clone(s.subscribers)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(e, version)
	}
}

// deliver queues the snapshot. The goroutine that finds the subscriber idle
// drains the queue, so a snapshot queued from inside fn is handled after fn
// returns instead of deadlocking.
func (sub *subscriber[T]) deliver(e Entry[T], version uint64) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, versioned[T]{entry: e, version: version})
	if sub.delivering {
		sub.mu.Unlock()
		return
	}

	sub.delivering = true
	for len(sub.queue) > 0 {
		next := sub.queue[0]
		sub.queue = sub.queue[1:]
		if next.version <= sub.last {
			continue
		}
		sub.last = next.version

		sub.mu.Unlock()
		sub.fn(next.entry)
		sub.mu.Lock()
	}
	sub.delivering = false
	sub.mu.Unlock()
}

func paginate(params Params, total int) *Pagination {
	page, limit := params.Pagination()
	if page < 1 {
		page = 1
	}

	return &Pagination{
		CurrentPage: page,
		PageSize:    limit,
		TotalCount:  total,
		HasNext:     limit > 0 && page*limit < total,
	}
}
