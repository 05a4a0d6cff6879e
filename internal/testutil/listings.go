package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kisan-sarthi/backend/internal/models"
	"github.com/kisan-sarthi/backend/internal/repository"
)

// MemoryListings is an in-memory listing repository, newest first.
type MemoryListings struct {
	mu    sync.Mutex
	items []models.Listing

	// CreateErr, when set, is returned by every Create.
	CreateErr error
}

// NewMemoryListings returns an empty repository.
func NewMemoryListings() *MemoryListings {
	return &MemoryListings{}
}

// Seed appends listings in the given order; the last one is the newest.
func (m *MemoryListings) Seed(ls ...models.Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range ls {
		m.items = append([]models.Listing{l}, m.items...)
	}
}

func (m *MemoryListings) Create(_ context.Context, kind models.CollectionKind, fields map[string]any) (*models.Listing, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	l, err := models.ListingFromFields(kind, fields)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = fmt.Sprintf("listing-%d", len(m.items)+1)
	l.CreatedAt = time.Now().UTC()
	m.items = append([]models.Listing{*l}, m.items...)
	return l, nil
}

func (m *MemoryListings) GetByID(_ context.Context, id string) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.items {
		if l.ID == id {
			c := l
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MemoryListings) List(ctx context.Context, kind models.CollectionKind, limit, offset int) ([]models.Listing, error) {
	return m.filter(kind, limit, offset, func(models.Listing) bool { return true }), nil
}

func (m *MemoryListings) ListByAttribute(_ context.Context, kind models.CollectionKind, attribute, value string, limit, offset int) ([]models.Listing, error) {
	var get func(models.Listing) string
	switch attribute {
	case "city":
		get = func(l models.Listing) string { return l.City }
	case "state":
		get = func(l models.Listing) string { return l.State }
	case "pincode":
		get = func(l models.Listing) string { return l.Pincode }
	case "ownerId":
		get = func(l models.Listing) string { return l.OwnerID }
	case "status":
		get = func(l models.Listing) string { return l.Status }
	default:
		return nil, fmt.Errorf("%w: %q", repository.ErrUnknownAttribute, attribute)
	}
	return m.filter(kind, limit, offset, func(l models.Listing) bool { return get(l) == value }), nil
}

func (m *MemoryListings) filter(kind models.CollectionKind, limit, offset int, keep func(models.Listing) bool) []models.Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Listing{}
	skipped := 0
	for _, l := range m.items {
		if l.Kind != kind || !keep(l) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, l)
	}
	return out
}

// All returns every stored listing, newest first.
func (m *MemoryListings) All() []models.Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Listing, len(m.items))
	copy(out, m.items)
	return out
}
