package wizard

import (
	"sync"

	"github.com/google/uuid"
)

// PreviewRegistry hands out local preview references for selected images.
// Every acquired reference must be released once it is superseded or its
// wizard goes away.
type PreviewRegistry interface {
	Acquire(f File) (string, error)
	Release(ref string)
}

// MemoryPreviews keeps previews in memory and counts the live ones.
type MemoryPreviews struct {
	mu   sync.Mutex
	live map[string]File
}

// NewMemoryPreviews creates an empty registry.
func NewMemoryPreviews() *MemoryPreviews {
	return &MemoryPreviews{live: make(map[string]File)}
}

func (p *MemoryPreviews) Acquire(f File) (string, error) {
	ref := "preview:" + uuid.NewString()
	p.mu.Lock()
	p.live[ref] = f
	p.mu.Unlock()
	return ref, nil
}

func (p *MemoryPreviews) Release(ref string) {
	p.mu.Lock()
	delete(p.live, ref)
	p.mu.Unlock()
}

// Lookup returns the file behind a live reference.
func (p *MemoryPreviews) Lookup(ref string) (File, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.live[ref]
	return f, ok
}

// Live returns the number of unreleased references.
func (p *MemoryPreviews) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}
