package wizard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kisan-sarthi/backend/internal/logger"
	"github.com/kisan-sarthi/backend/internal/models"
)

// Status is the submission status of a managed wizard.
type Status string

const (
	StatusEditing    Status = "editing"
	StatusSubmitting Status = "submitting"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// ErrNotFound is returned for an unknown wizard id.
var ErrNotFound = errors.New("wizard: not found")

// View is the externally visible state of a managed wizard.
type View struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	Status      Status          `json:"status"`
	Result      *models.Listing `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Wizard      Snapshot        `json:"wizard"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// Settled reports whether no submission is running.
func (v View) Settled() bool { return v.Status != StatusSubmitting }

type entry struct {
	id          string
	ownerID     string
	wizard      *Wizard
	status      Status
	result      *models.Listing
	errMsg      string
	createdAt   time.Time
	updatedAt   time.Time
	completedAt *time.Time
	subs        map[chan View]struct{}
}

func (e *entry) view(s Snapshot) View {
	return View{
		ID:          e.id,
		OwnerID:     e.ownerID,
		Status:      e.status,
		Result:      e.result,
		Error:       e.errMsg,
		Wizard:      s,
		CreatedAt:   e.createdAt,
		UpdatedAt:   e.updatedAt,
		CompletedAt: e.completedAt,
	}
}

// Manager holds server-side wizards and runs their submissions in the
// background.
type Manager struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	uploader Uploader
	creator  RecordCreator
	reporter func() ProgressReporter
	log      logger.Logger
	metrics  SubmitObserver

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SubmitObserver is told the outcome of every background submission.
type SubmitObserver interface {
	ObserveSubmit(kind models.CollectionKind, outcome string, d time.Duration)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithReporterFactory sets the reporter built for each new wizard.
func WithReporterFactory(fn func() ProgressReporter) ManagerOption {
	return func(m *Manager) { m.reporter = fn }
}

// WithManagerLogger sets the manager logger.
func WithManagerLogger(log logger.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// WithSubmitObserver records submission outcomes.
func WithSubmitObserver(o SubmitObserver) ManagerOption {
	return func(m *Manager) { m.metrics = o }
}

// NewManager creates a wizard manager.
func NewManager(uploader Uploader, creator RecordCreator, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		entries:  make(map[string]*entry),
		uploader: uploader,
		creator:  creator,
		reporter: func() ProgressReporter { return NewIntervalReporter(0, 0) },
		log:      logger.NewNop(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a wizard of kind owned by ownerID.
func (m *Manager) Create(kind models.CollectionKind, ownerID string) (View, error) {
	id := uuid.New().String()
	w, err := New(kind, m.uploader, m.creator,
		WithReporter(m.reporter()),
		WithOwner(func() (string, bool) { return ownerID, ownerID != "" }),
		WithLogger(m.log.With(logger.String("wizard", id))),
		WithNotify(func(s Snapshot) { m.publish(id, s) }),
	)
	if err != nil {
		return View{}, err
	}

	now := time.Now()
	e := &entry{
		id:        id,
		ownerID:   ownerID,
		wizard:    w,
		status:    StatusEditing,
		createdAt: now,
		updatedAt: now,
		subs:      make(map[chan View]struct{}),
	}

	m.mu.Lock()
	m.entries[id] = e
	m.mu.Unlock()

	m.log.Info("wizard created", logger.String("wizard", id), logger.String("kind", string(kind)))
	return e.view(w.Snapshot()), nil
}

// Wizard returns the wizard behind id and marks it active.
func (m *Manager) Wizard(id string) (*Wizard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.updatedAt = time.Now()
	return e.wizard, nil
}

// Get returns the current view of id.
func (m *Manager) Get(id string) (View, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return View{}, ErrNotFound
	}
	s := e.wizard.Snapshot()

	m.mu.RLock()
	defer m.mu.RUnlock()
	return e.view(s), nil
}

// StartSubmit runs the submission of id in the background. Progress and the
// outcome are visible through Get and Subscribe.
func (m *Manager) StartSubmit(id string) (View, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return View{}, ErrNotFound
	}
	if e.status == StatusSubmitting {
		m.mu.Unlock()
		return View{}, ErrSubmitting
	}
	e.status = StatusSubmitting
	e.result = nil
	e.errMsg = ""
	e.completedAt = nil
	e.updatedAt = time.Now()
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runSubmit(e)

	return m.Get(id)
}

func (m *Manager) runSubmit(e *entry) {
	defer m.wg.Done()
	start := time.Now()
	log := m.log.With(logger.String("wizard", e.id))
	log.Info("submission queued")

	rec, err := e.wizard.Submit(m.ctx)

	now := time.Now()
	m.mu.Lock()
	e.updatedAt = now
	e.completedAt = &now
	outcome := "ok"
	if err != nil {
		e.status = StatusError
		e.errMsg = err.Error()
		outcome = outcomeOf(err)
	} else {
		e.status = StatusComplete
		e.result = rec
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ObserveSubmit(e.wizard.Kind(), outcome, now.Sub(start))
	}
	if err != nil {
		log.Warn("submission failed", logger.String("outcome", outcome), logger.Error(err))
	} else {
		log.Info("submission complete", logger.String("listing", rec.ID), logger.Duration("took", now.Sub(start)))
	}
	m.publish(e.id, e.wizard.Snapshot())
}

func outcomeOf(err error) string {
	var (
		verr *ValidationError
		uerr *UploadFailure
		cerr *RecordCreationError
	)
	switch {
	case errors.As(err, &verr):
		return "invalid"
	case errors.As(err, &uerr):
		return "upload_failed"
	case errors.As(err, &cerr):
		return "create_failed"
	case errors.Is(err, ErrSubmitting):
		return "busy"
	}
	return "error"
}

// Subscribe returns a channel that receives a view after every change of id.
// Slow readers miss intermediate views but always get the latest one. The
// cancel function must be called to release the subscription.
func (m *Manager) Subscribe(id string) (<-chan View, func(), error) {
	ch := make(chan View, 16)

	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return nil, nil, ErrNotFound
	}
	e.subs[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(e.subs, ch)
			m.mu.Unlock()
		})
	}
	return ch, cancel, nil
}

func (m *Manager) publish(id string, s Snapshot) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return
	}
	v := e.view(s)
	for ch := range e.subs {
		select {
		case ch <- v:
		default:
			// Drop the oldest view to make room for the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

// Remove closes and forgets id. A running submission finishes against its
// collaborators but no longer updates any state.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return e.wizard.Close()
}

// CleanupIdle removes wizards that have not been touched for maxIdle and are
// not submitting. It returns the number removed.
func (m *Manager) CleanupIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	var stale []*entry
	for id, e := range m.entries {
		if e.status != StatusSubmitting && e.updatedAt.Before(cutoff) {
			stale = append(stale, e)
			delete(m.entries, id)
		}
	}
	m.mu.Unlock()

	for _, e := range stale {
		_ = e.wizard.Close()
	}
	if len(stale) > 0 {
		m.log.Info("idle wizards removed", logger.Int("count", len(stale)))
	}
	return len(stale)
}

// Len returns the number of managed wizards.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Shutdown cancels running submissions and waits for them to return.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
