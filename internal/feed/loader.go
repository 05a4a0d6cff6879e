// Package feed implements the incremental, offset-paginated listing feed.
//
// A Loader owns the feed state for one list view. Pages are fetched on demand:
// the consumer reports that the end of the rendered list came into view, and
// the loader fetches the next page unless a fetch is already running or the
// feed is exhausted.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kisan-sarthi/backend/internal/logger"
	"github.com/kisan-sarthi/backend/internal/models"
)

// DefaultLimit is the page size used by the listing feed.
const DefaultLimit = 5

// Fetcher is the paginated listing source.
type Fetcher interface {
	Fetch(ctx context.Context, limit, offset int) ([]models.Listing, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, limit, offset int) ([]models.Listing, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, limit, offset int) ([]models.Listing, error) {
	return f(ctx, limit, offset)
}

// FetchError is a failed page load. The feed keeps its last good state.
type FetchError struct {
	Page   int
	Offset int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("load page %d (offset %d): %v", e.Page, e.Offset, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrInvalidLimit is returned by New for a non-positive page size.
var ErrInvalidLimit = errors.New("feed: limit must be positive")

// State is a point-in-time copy of the feed.
type State struct {
	Items       []models.Listing
	CurrentPage int
	Loading     bool
	HasMore     bool
	LastErr     error
}

// Loader manages cursor state for one feed instance.
type Loader struct {
	fetcher Fetcher
	limit   int
	log     logger.Logger
	onError func(error)
	onPage  func(page int, added []models.Listing)

	mu          sync.Mutex
	items       []models.Listing
	seen        map[string]struct{}
	currentPage int
	loading     bool
	hasMore     bool
	lastErr     error

	obsMu    sync.Mutex
	observer *observer
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for failed page loads.
func WithLogger(log logger.Logger) Option {
	return func(l *Loader) { l.log = log }
}

// WithErrorHandler registers a callback that surfaces fetch failures to the user.
func WithErrorHandler(fn func(error)) Option {
	return func(l *Loader) { l.onError = fn }
}

// WithPageHandler registers a callback that receives the records a page added
// to the feed, after duplicates were dropped. It runs once per successful load.
func WithPageHandler(fn func(page int, added []models.Listing)) Option {
	return func(l *Loader) { l.onPage = fn }
}

// New creates a Loader. Call Initialize to load the first page.
func New(fetcher Fetcher, limit int, opts ...Option) (*Loader, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	l := &Loader{
		fetcher: fetcher,
		limit:   limit,
		log:     logger.NewNop(),
		seen:    make(map[string]struct{}),
		hasMore: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Limit returns the page size.
func (l *Loader) Limit() int { return l.limit }

// Initialize resets the feed and loads page 0.
func (l *Loader) Initialize(ctx context.Context) {
	l.mu.Lock()
	l.items = nil
	l.seen = make(map[string]struct{})
	l.currentPage = 0
	l.hasMore = true
	l.lastErr = nil
	l.loading = true
	l.mu.Unlock()

	l.load(ctx, 0)
}

// RequestNextPage loads the next page unless a load is in flight or the feed
// is exhausted. It reports whether a fetch was issued.
func (l *Loader) RequestNextPage(ctx context.Context) bool {
	l.mu.Lock()
	if l.loading || !l.hasMore {
		l.mu.Unlock()
		return false
	}
	// The cursor advances even past a page whose fetch failed, so no offset
	// is requested twice in one feed session.
	page := l.currentPage + 1
	l.currentPage = page
	l.loading = true
	l.mu.Unlock()

	l.load(ctx, page)
	return true
}

// load fetches one page. The caller has already set loading.
func (l *Loader) load(ctx context.Context, page int) {
	offset := page * l.limit
	records, err := l.fetcher.Fetch(ctx, l.limit, offset)

	if err != nil {
		ferr := &FetchError{Page: page, Offset: offset, Err: err}
		l.mu.Lock()
		l.lastErr = ferr
		l.loading = false
		l.mu.Unlock()

		l.log.Warn("feed page load failed",
			logger.Int("page", page),
			logger.Int("offset", offset),
			logger.Error(err),
		)
		if l.onError != nil {
			l.onError(ferr)
		}
		return
	}

	l.mu.Lock()
	added := make([]models.Listing, 0, len(records))
	for _, rec := range records {
		if rec.ID != "" {
			if _, dup := l.seen[rec.ID]; dup {
				continue
			}
			l.seen[rec.ID] = struct{}{}
		}
		l.items = append(l.items, rec)
		added = append(added, rec)
	}
	l.lastErr = nil
	// A full page means there may be more, even when the data set ends exactly
	// on a page boundary; that case costs one extra empty fetch.
	l.hasMore = len(records) == l.limit
	l.loading = false
	hasMore := l.hasMore
	l.mu.Unlock()

	l.log.Debug("feed page loaded",
		logger.Int("page", page),
		logger.Int("returned", len(records)),
		logger.Bool("has_more", hasMore),
	)
	if l.onPage != nil {
		l.onPage(page, added)
	}
}

// Snapshot returns a copy of the current state.
func (l *Loader) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := make([]models.Listing, len(l.items))
	copy(items, l.items)
	return State{
		Items:       items,
		CurrentPage: l.currentPage,
		Loading:     l.loading,
		HasMore:     l.hasMore,
		LastErr:     l.lastErr,
	}
}

// HasMore reports whether another page may exist.
func (l *Loader) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasMore
}

// Loading reports whether a page load is in flight.
func (l *Loader) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// Len returns the number of loaded records.
func (l *Loader) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
