package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve_TriggersOnVisibility(t *testing.T) {
	ctx := context.Background()
	f := newPagedFetcher(12)
	l := newLoader(t, f)
	l.Initialize(ctx)

	visible := make(chan bool)
	l.Observe(ctx, visible)

	visible <- false
	visible <- true
	require.Eventually(t, func() bool { return l.Len() == 10 }, time.Second, time.Millisecond)

	visible <- true
	require.Eventually(t, func() bool { return !l.HasMore() }, time.Second, time.Millisecond)

	visible <- true
	l.Detach()
	assert.Equal(t, []int{0, 5, 10}, f.calls())
}

func TestObserve_ReplacesPriorObserver(t *testing.T) {
	ctx := context.Background()
	f := newPagedFetcher(30)
	l := newLoader(t, f)
	l.Initialize(ctx)

	first := make(chan bool, 1)
	l.Observe(ctx, first)
	second := make(chan bool)
	l.Observe(ctx, second)

	// The first observer is gone; nothing reads its channel any more.
	first <- true
	second <- true
	require.Eventually(t, func() bool { return l.Len() == 10 }, time.Second, time.Millisecond)
	l.Detach()

	assert.Len(t, first, 1)
	assert.Equal(t, []int{0, 5}, f.calls())
}

func TestObserve_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := newLoader(t, newPagedFetcher(3))
	l.Initialize(ctx)

	l.Observe(ctx, make(chan bool))
	cancel()
	// Detach must not block on an observer that already exited.
	l.Detach()
}

func TestObserve_StopsWhenSignalClosed(t *testing.T) {
	ctx := context.Background()
	l := newLoader(t, newPagedFetcher(3))
	l.Initialize(ctx)

	visible := make(chan bool)
	l.Observe(ctx, visible)
	close(visible)
	assert.NoError(t, l.Close())
}
