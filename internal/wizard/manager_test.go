package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kisan-sarthi/backend/internal/models"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveSubmit(_ models.CollectionKind, outcome string, _ time.Duration) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}

func (o *recordingObserver) list() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.outcomes...)
}

func newTestManager(t *testing.T, up *fakeUploader, cr *fakeCreator, opts ...ManagerOption) *Manager {
	t.Helper()
	opts = append([]ManagerOption{WithReporterFactory(func() ProgressReporter { return instantReporter{} })}, opts...)
	m := NewManager(up, cr, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func waitSettled(t *testing.T, m *Manager, id string) View {
	t.Helper()
	var v View
	require.Eventually(t, func() bool {
		var err error
		v, err = m.Get(id)
		return err == nil && v.Settled()
	}, 2*time.Second, 5*time.Millisecond)
	return v
}

func TestManager_CreateAndGet(t *testing.T) {
	m := newTestManager(t, &fakeUploader{}, &fakeCreator{})

	v, err := m.Create(models.KindLand, "owner-1")
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, StatusEditing, v.Status)
	assert.Equal(t, 5, v.Wizard.StepCount)
	assert.Equal(t, "owner-1", v.OwnerID)

	got, err := m.Get(v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)

	_, err = m.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Create("boat", "owner-1")
	assert.Error(t, err)
}

func TestManager_SubmitCompletes(t *testing.T) {
	obs := &recordingObserver{}
	cr := &fakeCreator{}
	m := newTestManager(t, &fakeUploader{}, cr, WithSubmitObserver(obs))

	v, err := m.Create(models.KindProduct, "owner-1")
	require.NoError(t, err)
	w, err := m.Wizard(v.ID)
	require.NoError(t, err)
	fillProduct(t, w)
	require.NoError(t, w.SelectFiles(images("a.jpg")))

	_, err = m.StartSubmit(v.ID)
	require.NoError(t, err)

	done := waitSettled(t, m, v.ID)
	assert.Equal(t, StatusComplete, done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, "owner-1", done.Result.OwnerID)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, "owner-1", cr.calls[0]["userId"])
	assert.Equal(t, []string{"ok"}, obs.list())
}

func TestManager_SubmitFailureIsReported(t *testing.T) {
	obs := &recordingObserver{}
	up := &fakeUploader{fail: map[string]error{"b.jpg": errors.New("disk full")}}
	m := newTestManager(t, up, &fakeCreator{}, WithSubmitObserver(obs))

	v, _ := m.Create(models.KindProduct, "owner-1")
	w, _ := m.Wizard(v.ID)
	fillProduct(t, w)
	require.NoError(t, w.SelectFiles(images("a.jpg", "b.jpg")))

	_, err := m.StartSubmit(v.ID)
	require.NoError(t, err)

	done := waitSettled(t, m, v.ID)
	assert.Equal(t, StatusError, done.Status)
	assert.Contains(t, done.Error, "disk full")
	assert.Equal(t, -1, done.Wizard.Files[1].Progress)
	assert.Equal(t, []string{"upload_failed"}, obs.list())
}

func TestManager_StartSubmitWhileRunning(t *testing.T) {
	release := make(chan struct{})
	up := &fakeUploader{onCall: func(string) { <-release }}
	m := newTestManager(t, up, &fakeCreator{})

	v, _ := m.Create(models.KindProduct, "")
	w, _ := m.Wizard(v.ID)
	fillProduct(t, w)
	require.NoError(t, w.SelectFiles(images("a.jpg")))

	_, err := m.StartSubmit(v.ID)
	require.NoError(t, err)
	_, err = m.StartSubmit(v.ID)
	assert.ErrorIs(t, err, ErrSubmitting)

	close(release)
	waitSettled(t, m, v.ID)

	_, err = m.StartSubmit("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_SubscribeSeesSettledView(t *testing.T) {
	m := newTestManager(t, &fakeUploader{}, &fakeCreator{})
	v, _ := m.Create(models.KindProduct, "owner-1")
	w, _ := m.Wizard(v.ID)
	fillProduct(t, w)
	require.NoError(t, w.SelectFiles(images("a.jpg")))

	ch, cancel, err := m.Subscribe(v.ID)
	require.NoError(t, err)
	defer cancel()

	_, err = m.StartSubmit(v.ID)
	require.NoError(t, err)

	timeout := time.After(2 * time.Second)
	for {
		select {
		case got := <-ch:
			if got.Status == StatusComplete {
				assert.NotNil(t, got.Result)
				return
			}
		case <-timeout:
			t.Fatal("no settled view received")
		}
	}
}

func TestManager_RemoveAndCleanup(t *testing.T) {
	m := newTestManager(t, &fakeUploader{}, &fakeCreator{})
	a, _ := m.Create(models.KindProduct, "")
	b, _ := m.Create(models.KindLand, "")
	require.Equal(t, 2, m.Len())

	require.NoError(t, m.Remove(a.ID))
	assert.ErrorIs(t, m.Remove(a.ID), ErrNotFound)
	assert.Equal(t, 1, m.Len())

	assert.Zero(t, m.CleanupIdle(time.Hour))
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, m.CleanupIdle(time.Millisecond))
	_, err := m.Get(b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
