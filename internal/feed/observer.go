package feed

import (
	"context"
	"runtime"
)

type observer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (o *observer) stop() {
	o.cancel()
	<-o.done
}

// Observe attaches a proximity observer. Each true value received on visible
// means the end of the rendered list entered the view and triggers
// RequestNextPage. Any previously attached observer is stopped first, so at
// most one observer is active per loader.
//
// The observer runs until ctx is cancelled, visible is closed, or Detach or
// Close is called.
func (l *Loader) Observe(ctx context.Context, visible <-chan bool) {
	l.obsMu.Lock()
	defer l.obsMu.Unlock()

	if l.observer != nil {
		l.observer.stop()
		l.observer = nil
	}

	octx, cancel := context.WithCancel(ctx)
	o := &observer{cancel: cancel, done: make(chan struct{})}
	l.observer = o

	go func() {
		defer close(o.done)
		for {
			select {
			case <-octx.Done():
				return
			case v, ok := <-visible:
				if !ok {
					return
				}
				if v && l.HasMore() {
					l.RequestNextPage(octx)
				}
			}
		}
	}()
}

// Detach stops the active observer, if any, and waits for it to exit.
func (l *Loader) Detach() {
	l.obsMu.Lock()
	defer l.obsMu.Unlock()
	if l.observer != nil {
		l.observer.stop()
		l.observer = nil
	}
}

// Close releases the loader. An in-flight load still completes against the
// loader state, which stays readable through Snapshot.
func (l *Loader) Close() error {
	l.Detach()
	return nil
}

// Drain reads pages until the feed is exhausted or a load fails. It is used
// by non-interactive consumers that want the whole feed.
func (l *Loader) Drain(ctx context.Context) error {
	for l.HasMore() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !l.RequestNextPage(ctx) {
			// Another caller owns the in-flight load.
			runtime.Gosched()
			continue
		}
		if err := l.Snapshot().LastErr; err != nil {
			return err
		}
	}
	return nil
}

