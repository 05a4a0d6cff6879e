package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kisan-sarthi/backend/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// pagedFetcher serves a fixed data set and records every requested offset.
type pagedFetcher struct {
	mu      sync.Mutex
	records []models.Listing
	offsets []int
	failAt  map[int]int // offset -> remaining failures
	gate    chan struct{}
}

func newPagedFetcher(n int) *pagedFetcher {
	f := &pagedFetcher{failAt: make(map[int]int)}
	for i := 0; i < n; i++ {
		f.records = append(f.records, models.Listing{ID: fmt.Sprintf("rec-%02d", i), Title: fmt.Sprintf("item %d", i)})
	}
	return f
}

func (f *pagedFetcher) Fetch(ctx context.Context, limit, offset int) ([]models.Listing, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets = append(f.offsets, offset)
	if n := f.failAt[offset]; n > 0 {
		f.failAt[offset] = n - 1
		return nil, errors.New("network unreachable")
	}
	if offset >= len(f.records) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.records) {
		end = len(f.records)
	}
	out := make([]models.Listing, end-offset)
	copy(out, f.records[offset:end])
	return out, nil
}

func (f *pagedFetcher) calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.offsets...)
}

func newLoader(t *testing.T, f Fetcher, opts ...Option) *Loader {
	t.Helper()
	l, err := New(f, DefaultLimit, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestNew_RejectsNonPositiveLimit(t *testing.T) {
	for _, limit := range []int{0, -5} {
		_, err := New(newPagedFetcher(0), limit)
		assert.ErrorIs(t, err, ErrInvalidLimit)
	}
}

func TestLoader_HappyPath(t *testing.T) {
	ctx := context.Background()
	f := newPagedFetcher(8)
	l := newLoader(t, f)

	l.Initialize(ctx)
	s := l.Snapshot()
	assert.True(t, s.HasMore)
	assert.Len(t, s.Items, 5)

	assert.True(t, l.RequestNextPage(ctx))
	s = l.Snapshot()
	assert.False(t, s.HasMore)
	assert.Len(t, s.Items, 8)
	assert.Equal(t, 1, s.CurrentPage)

	for i := 0; i < 3; i++ {
		assert.False(t, l.RequestNextPage(ctx))
	}
	assert.Equal(t, []int{0, 5}, f.calls())
}

func TestLoader_PreservesReceivedOrder(t *testing.T) {
	ctx := context.Background()
	f := newPagedFetcher(12)
	l := newLoader(t, f)

	l.Initialize(ctx)
	for l.RequestNextPage(ctx) {
	}

	items := l.Snapshot().Items
	require.Len(t, items, 12)
	for i, it := range items {
		assert.Equal(t, fmt.Sprintf("rec-%02d", i), it.ID)
	}
}

func TestLoader_OffsetsStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	f := newPagedFetcher(23)
	l := newLoader(t, f)

	l.Initialize(ctx)
	for i := 0; i < 20; i++ {
		l.RequestNextPage(ctx)
	}

	calls := f.calls()
	require.Equal(t, []int{0, 5, 10, 15, 20}, calls)
	seen := map[int]bool{}
	for i, off := range calls {
		assert.False(t, seen[off], "offset %d requested twice", off)
		seen[off] = true
		if i > 0 {
			assert.Equal(t, calls[i-1]+DefaultLimit, off)
		}
	}
}

// An exact multiple of the page size costs one extra request that returns no
// records before the feed is marked exhausted. This is current behavior.
func TestLoader_ExactMultipleIssuesOneEmptyFetch(t *testing.T) {
	ctx := context.Background()
	f := newPagedFetcher(10)
	l := newLoader(t, f)

	l.Initialize(ctx)
	assert.True(t, l.RequestNextPage(ctx))
	assert.True(t, l.HasMore(), "a full page leaves hasMore set")

	assert.True(t, l.RequestNextPage(ctx))
	assert.False(t, l.HasMore())
	assert.Equal(t, []int{0, 5, 10}, f.calls())
	assert.Equal(t, 10, l.Len())
}

func TestLoader_ExhaustionIsPermanent(t *testing.T) {
	ctx := context.Background()
	f := newPagedFetcher(3)
	l := newLoader(t, f)

	l.Initialize(ctx)
	require.False(t, l.HasMore())

	// More data showing up later is not picked up by this session.
	f.mu.Lock()
	f.records = append(f.records, models.Listing{ID: "late"})
	f.mu.Unlock()

	assert.False(t, l.RequestNextPage(ctx))
	assert.False(t, l.HasMore())
	assert.Equal(t, []int{0}, f.calls())
}

func TestLoader_FailureKeepsLastGoodState(t *testing.T) {
	ctx := context.Background()
	f := newPagedFetcher(8)
	f.failAt[5] = 1

	var surfaced []error
	l := newLoader(t, f, WithErrorHandler(func(err error) { surfaced = append(surfaced, err) }))

	l.Initialize(ctx)
	assert.True(t, l.RequestNextPage(ctx))

	s := l.Snapshot()
	assert.Len(t, s.Items, 5)
	assert.True(t, s.HasMore)
	assert.False(t, s.Loading)
	var ferr *FetchError
	require.ErrorAs(t, s.LastErr, &ferr)
	assert.Equal(t, 5, ferr.Offset)
	require.Len(t, surfaced, 1)

	// The user re-triggers; the cursor has moved past the failed page.
	assert.True(t, l.RequestNextPage(ctx))
	s = l.Snapshot()
	assert.Len(t, s.Items, 5)
	assert.False(t, s.HasMore)
	assert.NoError(t, s.LastErr)
	assert.Equal(t, 2, s.CurrentPage)
	assert.Equal(t, []int{0, 5, 10}, f.calls())
}

func TestLoader_FailedFirstPage(t *testing.T) {
	ctx := context.Background()
	f := newPagedFetcher(4)
	f.failAt[0] = 1
	l := newLoader(t, f)

	l.Initialize(ctx)
	s := l.Snapshot()
	assert.Empty(t, s.Items)
	assert.True(t, s.HasMore)
	assert.Error(t, s.LastErr)

	assert.True(t, l.RequestNextPage(ctx))
	assert.Equal(t, []int{0, 5}, f.calls(), "the failed first page is not fetched again")
	assert.Equal(t, 0, l.Len())
	assert.False(t, l.HasMore())
}

func TestLoader_AtMostOneInFlight(t *testing.T) {
	ctx := context.Background()
	f := newPagedFetcher(20)
	l := newLoader(t, f)
	l.Initialize(ctx)

	f.gate = make(chan struct{})
	issued := make(chan bool, 1)
	go func() { issued <- l.RequestNextPage(ctx) }()

	require.Eventually(t, l.Loading, time.Second, time.Millisecond)
	for i := 0; i < 5; i++ {
		assert.False(t, l.RequestNextPage(ctx), "trigger while loading must be dropped")
	}

	close(f.gate)
	assert.True(t, <-issued)
	assert.Equal(t, []int{0, 5}, f.calls())
	assert.False(t, l.Loading())
}

func TestLoader_SkipsAlreadySeenRecords(t *testing.T) {
	ctx := context.Background()
	pages := map[int][]models.Listing{
		0: {{ID: "a"}, {ID: "b"}},
		2: {{ID: "b"}, {ID: "c"}},
	}
	fetch := FetcherFunc(func(_ context.Context, _, offset int) ([]models.Listing, error) {
		return pages[offset], nil
	})
	l, err := New(fetch, 2)
	require.NoError(t, err)

	l.Initialize(ctx)
	l.RequestNextPage(ctx)

	var ids []string
	for _, it := range l.Snapshot().Items {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	// hasMore follows the raw count, not the deduplicated one.
	assert.True(t, l.HasMore())
}

func TestLoader_InitializeResets(t *testing.T) {
	ctx := context.Background()
	f := newPagedFetcher(7)
	l := newLoader(t, f)

	l.Initialize(ctx)
	l.RequestNextPage(ctx)
	require.False(t, l.HasMore())

	l.Initialize(ctx)
	s := l.Snapshot()
	assert.Equal(t, 0, s.CurrentPage)
	assert.Len(t, s.Items, 5)
	assert.True(t, s.HasMore)
}

func TestLoader_Drain(t *testing.T) {
	ctx := context.Background()
	l := newLoader(t, newPagedFetcher(13))
	l.Initialize(ctx)

	require.NoError(t, l.Drain(ctx))
	assert.Equal(t, 13, l.Len())

	f := newPagedFetcher(13)
	f.failAt[10] = 1
	l2 := newLoader(t, f)
	l2.Initialize(ctx)
	var ferr *FetchError
	assert.ErrorAs(t, l2.Drain(ctx), &ferr)
	assert.Equal(t, 10, l2.Len())
}

func TestLoader_PageHandlerSeesAddedRecords(t *testing.T) {
	ctx := context.Background()
	pages := map[int][]models.Listing{
		0: {{ID: "a"}, {ID: "b"}},
		2: {{ID: "b"}, {ID: "c"}},
	}
	fetch := FetcherFunc(func(_ context.Context, _, offset int) ([]models.Listing, error) {
		if offset == 4 {
			return nil, errors.New("timeout")
		}
		return pages[offset], nil
	})

	var got [][]string
	var loaded []int
	l, err := New(fetch, 2, WithPageHandler(func(page int, added []models.Listing) {
		loaded = append(loaded, page)
		var ids []string
		for _, rec := range added {
			ids = append(ids, rec.ID)
		}
		got = append(got, ids)
	}))
	require.NoError(t, err)

	l.Initialize(ctx)
	l.RequestNextPage(ctx)
	l.RequestNextPage(ctx)

	assert.Equal(t, []int{0, 1}, loaded, "failed loads are not reported")
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, got)
}
