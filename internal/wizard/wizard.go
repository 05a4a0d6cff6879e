// Package wizard implements the multi-step listing wizard: field collection
// across ordered steps, file selection with previews, and an all-or-nothing
// submission that uploads every file before the record is created.
package wizard

import (
	"context"
	"fmt"
	"sync"

	"github.com/kisan-sarthi/backend/internal/logger"
	"github.com/kisan-sarthi/backend/internal/models"
)

// Uploader stores one file and returns its remote URL.
type Uploader interface {
	Upload(ctx context.Context, f File) (string, error)
}

// RecordCreator creates a listing record from an assembled field map.
type RecordCreator interface {
	Create(ctx context.Context, kind models.CollectionKind, fields map[string]any) (*models.Listing, error)
}

// UploadTask is the per-file state of one submission.
type UploadTask struct {
	File        string `json:"file"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Preview     string `json:"preview,omitempty"`
	Progress    int    `json:"progress"`
	Status      string `json:"status"`
	RemoteURL   string `json:"remoteUrl,omitempty"`
}

// Snapshot is a copy of the wizard state.
type Snapshot struct {
	Kind       models.CollectionKind `json:"kind"`
	Step       int                   `json:"step"`
	StepCount  int                   `json:"stepCount"`
	StepTitle  string                `json:"stepTitle"`
	Fields     map[string]any        `json:"fields"`
	Files      []UploadTask          `json:"files"`
	Submitting bool                  `json:"submitting"`
	LastError  string                `json:"lastError,omitempty"`
}

type selection struct {
	file    File
	id      string
	preview string
}

// Wizard is one listing wizard session.
type Wizard struct {
	schema   *Schema
	uploader Uploader
	creator  RecordCreator
	reporter ProgressReporter
	previews PreviewRegistry
	owner    func() (string, bool)
	notify   func(Snapshot)
	log      logger.Logger

	mu         sync.Mutex
	step       int
	fields     map[string]any
	files      []selection
	progress   map[string]int
	remote     map[string]string
	submitting bool
	closed     bool
	lastErr    error
}

// Option configures a Wizard.
type Option func(*Wizard)

// WithReporter sets the progress reporter. The default is an IntervalReporter
// stepping 10 every 200ms.
func WithReporter(r ProgressReporter) Option {
	return func(w *Wizard) { w.reporter = r }
}

// WithPreviews sets the preview registry.
func WithPreviews(p PreviewRegistry) Option {
	return func(w *Wizard) { w.previews = p }
}

// WithOwner supplies the current principal id, added to the record as userId.
func WithOwner(fn func() (string, bool)) Option {
	return func(w *Wizard) { w.owner = fn }
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(w *Wizard) { w.log = log }
}

// WithNotify registers a callback that receives a snapshot after every
// state change. It is called without the wizard lock held.
func WithNotify(fn func(Snapshot)) Option {
	return func(w *Wizard) { w.notify = fn }
}

// New creates a wizard for kind at step 1.
func New(kind models.CollectionKind, uploader Uploader, creator RecordCreator, opts ...Option) (*Wizard, error) {
	schema, err := SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	w := &Wizard{
		schema:   schema,
		uploader: uploader,
		creator:  creator,
		reporter: NewIntervalReporter(0, 0),
		previews: NewMemoryPreviews(),
		log:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With(logger.String("kind", string(kind)))
	w.resetLocked()
	return w, nil
}

// Kind returns the listing kind.
func (w *Wizard) Kind() models.CollectionKind { return w.schema.Kind }

// Schema returns the step layout and field rules.
func (w *Wizard) Schema() *Schema { return w.schema }

// Step returns the current 1-based step index.
func (w *Wizard) Step() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Next advances one step, stopping at the last step.
func (w *Wizard) Next() int {
	return w.move(1)
}

// Previous goes back one step, stopping at step 1.
func (w *Wizard) Previous() int {
	return w.move(-1)
}

func (w *Wizard) move(delta int) int {
	w.mu.Lock()
	step := w.step + delta
	step = max(1, min(step, w.schema.StepCount()))
	w.step = step
	w.mu.Unlock()
	w.changed()
	return step
}

// SetField sets one field value. Values are kept as given until submission.
func (w *Wizard) SetField(name string, value any) error {
	return w.SetFields(map[string]any{name: value})
}

// SetFields sets several field values at once. Unknown field names are
// rejected and nothing is applied.
func (w *Wizard) SetFields(values map[string]any) error {
	for name := range values {
		if !w.schema.HasField(name) {
			return &ValidationError{Field: name, Reason: "unknown field"}
		}
	}
	w.mu.Lock()
	if err := w.mutableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	for name, v := range values {
		w.fields[name] = v
	}
	w.mu.Unlock()
	w.changed()
	return nil
}

// Fields returns a copy of the field map.
func (w *Wizard) Fields() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return copyFields(w.fields)
}

// SelectFiles replaces the whole selection. Previews of the previous
// selection are released before new ones are acquired, and every file's
// progress starts at 0.
func (w *Wizard) SelectFiles(files []File) error {
	w.mu.Lock()
	defer func() {
		w.mu.Unlock()
		w.changed()
	}()
	if err := w.mutableLocked(); err != nil {
		return err
	}

	w.releasePreviewsLocked()
	w.files = make([]selection, 0, len(files))
	w.progress = make(map[string]int, len(files))
	w.remote = make(map[string]string)

	used := make(map[string]int, len(files))
	for _, f := range files {
		sel := selection{file: f, id: uniqueID(f.Name, used)}
		if f.IsImage() {
			ref, err := w.previews.Acquire(f)
			if err != nil {
				w.log.Warn("preview unavailable", logger.String("file", f.Name), logger.Error(err))
			} else {
				sel.preview = ref
			}
		}
		w.files = append(w.files, sel)
		w.progress[sel.id] = ProgressPending
	}
	return nil
}

// uniqueID returns name, or name with a counter suffix when the selection
// already holds a file of that name.
func uniqueID(name string, used map[string]int) string {
	used[name]++
	if n := used[name]; n > 1 {
		return fmt.Sprintf("%s (%d)", name, n)
	}
	return name
}

// Progress returns a copy of the progress map, keyed by file identifier.
func (w *Wizard) Progress() map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]int, len(w.progress))
	for k, v := range w.progress {
		out[k] = v
	}
	return out
}

// Previews returns the live preview references in selection order.
func (w *Wizard) Previews() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var refs []string
	for _, sel := range w.files {
		if sel.preview != "" {
			refs = append(refs, sel.preview)
		}
	}
	return refs
}

// Submitting reports whether a submission is running.
func (w *Wizard) Submitting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submitting
}

// Submit validates the form, uploads every selected file in order and then
// creates the record. A validation failure makes no collaborator call. An
// upload failure stops the remaining uploads and skips record creation. On
// success the wizard is reset to its initial state.
func (w *Wizard) Submit(ctx context.Context) (*models.Listing, error) {
	w.mu.Lock()
	if err := w.mutableLocked(); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	fields, err := w.assembleLocked()
	if err != nil {
		w.lastErr = err
		w.mu.Unlock()
		w.changed()
		return nil, err
	}
	files := make([]selection, len(w.files))
	copy(files, w.files)
	w.submitting = true
	w.lastErr = nil
	w.mu.Unlock()
	w.changed()

	w.log.Info("submission started", logger.Int("files", len(files)))

	urls := make([]string, 0, len(files))
	for i, sel := range files {
		url, err := w.uploadOne(ctx, sel)
		if err != nil {
			failure := &UploadFailure{File: sel.id, Index: i, Err: err}
			w.log.Warn("upload failed, submission aborted",
				logger.String("file", sel.id),
				logger.Int("index", i),
				logger.Int("uploaded", len(urls)),
				logger.Error(err),
			)
			w.finish(failure)
			return nil, failure
		}
		urls = append(urls, url)
	}

	fields["media"] = urls
	rec, err := w.creator.Create(ctx, w.schema.Kind, fields)
	if err != nil {
		cerr := &RecordCreationError{Err: err}
		w.log.Warn("record creation failed", logger.Error(err))
		w.finish(cerr)
		return nil, cerr
	}

	w.mu.Lock()
	w.submitting = false
	if !w.closed {
		w.resetLocked()
	}
	w.mu.Unlock()
	w.changed()
	w.log.Info("submission complete", logger.String("id", rec.ID))
	return rec, nil
}

func (w *Wizard) uploadOne(ctx context.Context, sel selection) (string, error) {
	tracked, stop := w.reporter.Track(sel.file, func(p int) {
		w.setProgress(sel.id, p, "")
	})
	url, err := w.uploader.Upload(ctx, tracked)
	stop()
	if err != nil {
		w.setProgress(sel.id, ProgressFailed, "")
		return "", err
	}
	w.setProgress(sel.id, ProgressDone, url)
	return url, nil
}

func (w *Wizard) setProgress(id string, p int, url string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if _, ok := w.progress[id]; ok {
		w.progress[id] = p
		if url != "" {
			w.remote[id] = url
		}
	}
	w.mu.Unlock()
	w.changed()
}

func (w *Wizard) finish(err error) {
	w.mu.Lock()
	w.submitting = false
	w.lastErr = err
	w.mu.Unlock()
	w.changed()
}

// assembleLocked validates the form and returns the field map to send.
func (w *Wizard) assembleLocked() (map[string]any, error) {
	if len(w.files) == 0 {
		return nil, &ValidationError{Field: "files", Reason: "select at least one file"}
	}
	if err := w.schema.Validate(w.fields); err != nil {
		return nil, err
	}
	fields, err := w.schema.Normalize(w.fields)
	if err != nil {
		return nil, err
	}
	if w.owner != nil {
		if id, ok := w.owner(); ok {
			fields["userId"] = id
		}
	}
	return fields, nil
}

func (w *Wizard) mutableLocked() error {
	if w.closed {
		return ErrClosed
	}
	if w.submitting {
		return ErrSubmitting
	}
	return nil
}

// Reset returns the wizard to its initial state and releases every preview.
func (w *Wizard) Reset() error {
	w.mu.Lock()
	if err := w.mutableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	w.resetLocked()
	w.mu.Unlock()
	w.changed()
	return nil
}

func (w *Wizard) resetLocked() {
	w.releasePreviewsLocked()
	w.step = 1
	w.fields = copyFields(w.schema.Defaults)
	w.files = nil
	w.progress = make(map[string]int)
	w.remote = make(map[string]string)
	w.lastErr = nil
}

func (w *Wizard) releasePreviewsLocked() {
	for i := range w.files {
		if w.files[i].preview != "" {
			w.previews.Release(w.files[i].preview)
			w.files[i].preview = ""
		}
	}
}

// Close releases the previews. A submission still running completes against
// its collaborators but no longer updates the wizard.
func (w *Wizard) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.releasePreviewsLocked()
	w.closed = true
	return nil
}

// Snapshot returns a copy of the wizard state.
func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Wizard) snapshotLocked() Snapshot {
	s := Snapshot{
		Kind:       w.schema.Kind,
		Step:       w.step,
		StepCount:  w.schema.StepCount(),
		StepTitle:  w.schema.Steps[w.step-1].Title,
		Fields:     copyFields(w.fields),
		Files:      make([]UploadTask, 0, len(w.files)),
		Submitting: w.submitting,
	}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	for _, sel := range w.files {
		p := w.progress[sel.id]
		s.Files = append(s.Files, UploadTask{
			File:        sel.id,
			ContentType: sel.file.ContentType,
			Size:        sel.file.Size,
			Preview:     sel.preview,
			Progress:    p,
			Status:      ProgressLabel(p),
			RemoteURL:   w.remote[sel.id],
		})
	}
	return s
}

func (w *Wizard) changed() {
	if w.notify == nil {
		return
	}
	w.notify(w.Snapshot())
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
