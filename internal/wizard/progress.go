package wizard

import (
	"io"
	"sync"
	"time"
)

// Progress values of an upload task.
const (
	ProgressFailed  = -1
	ProgressPending = 0
	ProgressDone    = 100
	// ProgressCeiling is the highest value reported while an upload is still
	// in flight.
	ProgressCeiling = 90
)

// ProgressLabel is the status text shown next to a progress value.
func ProgressLabel(p int) string {
	switch {
	case p == ProgressFailed:
		return "Failed"
	case p >= ProgressDone:
		return "Completed"
	case p > ProgressPending:
		return "Uploading"
	default:
		return "Pending"
	}
}

// ProgressReporter reports in-flight progress for one upload at a time.
//
// Track returns the File to hand to the uploader and a stop function. Once
// stop returns, report is never called again, so the caller can safely set
// the final 100 or -1.
type ProgressReporter interface {
	Track(f File, report func(int)) (File, func())
}

// IntervalReporter approximates progress by stepping a value toward the
// ceiling on a fixed interval, regardless of bytes sent.
type IntervalReporter struct {
	Interval time.Duration
	Step     int
}

// NewIntervalReporter returns a reporter that adds step every interval.
func NewIntervalReporter(interval time.Duration, step int) *IntervalReporter {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	if step <= 0 {
		step = 10
	}
	return &IntervalReporter{Interval: interval, Step: step}
}

func (r *IntervalReporter) Track(f File, report func(int)) (File, func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()
		p := ProgressPending
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if p >= ProgressCeiling {
					continue
				}
				p = min(p+r.Step, ProgressCeiling)
				report(p)
			}
		}
	}()

	var once sync.Once
	return f, func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// TransferReporter reports the share of bytes the uploader has read,
// capped at the ceiling until the upload resolves.
type TransferReporter struct{}

func (TransferReporter) Track(f File, report func(int)) (File, func()) {
	t := &transfer{size: f.Size, report: report}
	wrapped := f
	wrapped.Open = func() (io.ReadCloser, error) {
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		t.reset()
		return &countingReader{rc: rc, t: t}, nil
	}
	return wrapped, t.stop
}

type transfer struct {
	mu      sync.Mutex
	size    int64
	read    int64
	last    int
	stopped bool
	report  func(int)
}

func (t *transfer) reset() {
	t.mu.Lock()
	t.read = 0
	t.mu.Unlock()
}

func (t *transfer) add(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.size <= 0 {
		return
	}
	t.read += int64(n)
	p := int(t.read * 100 / t.size)
	p = min(p, ProgressCeiling)
	if p > t.last {
		t.last = p
		t.report(p)
	}
}

func (t *transfer) stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

type countingReader struct {
	rc io.ReadCloser
	t  *transfer
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	if n > 0 {
		c.t.add(n)
	}
	return n, err
}

func (c *countingReader) Close() error { return c.rc.Close() }
