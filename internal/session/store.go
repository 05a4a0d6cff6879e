// Package session caches the signed-in principal for a client process.
//
// The Store is created once at startup, loaded from its Persister with Init,
// and passed to every consumer that needs the current session.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kisan-sarthi/backend/internal/models"
)

// Key is the persisted storage key of the session record.
const Key = "user"

// ErrNoSession is returned by guards when nobody is signed in.
var ErrNoSession = errors.New("not signed in: run login first")

// Persister stores raw values by key.
type Persister interface {
	Load(key string) ([]byte, error) // nil, nil when absent
	Save(key string, data []byte) error
	Remove(key string) error
}

// Store is the process-wide session cache.
type Store struct {
	mu      sync.RWMutex
	persist Persister
	current *models.Session
	now     func() time.Time
}

// NewStore creates a Store backed by p.
func NewStore(p Persister) *Store {
	return &Store{persist: p, now: time.Now}
}

// Init loads the persisted session. An expired or unreadable record is
// cleared.
func (s *Store) Init() error {
	data, err := s.persist.Load(Key)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	if data == nil {
		return nil
	}

	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil || sess.Expired(s.now()) {
		return s.persist.Remove(Key)
	}
	s.current = &sess
	return nil
}

// Get returns the current session.
func (s *Store) Get() (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.Expired(s.now()) {
		return nil, false
	}
	cp := *s.current
	return &cp, true
}

// Set replaces the session and persists it.
func (s *Store) Set(sess models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist.Save(Key, data); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.current = &sess
	return nil
}

// Clear drops the session.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	if err := s.persist.Remove(Key); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// PrincipalID returns the id of the signed-in principal.
func (s *Store) PrincipalID() (string, bool) {
	sess, ok := s.Get()
	if !ok {
		return "", false
	}
	return sess.Principal.ID, true
}

// Token returns the bearer token of the current session.
func (s *Store) Token() string {
	sess, ok := s.Get()
	if !ok {
		return ""
	}
	return sess.Token
}

// RequireSession is the guard for actions that need a principal.
func RequireSession(s *Store) (*models.Session, error) {
	sess, ok := s.Get()
	if !ok {
		return nil, ErrNoSession
	}
	return sess, nil
}

// FilePersister keeps one JSON file per key in a directory.
type FilePersister struct {
	dir string
}

// NewFilePersister uses dir, creating it when needed.
func NewFilePersister(dir string) (*FilePersister, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	return &FilePersister{dir: dir}, nil
}

func (p *FilePersister) path(key string) string {
	return filepath.Join(p.dir, key+".json")
}

func (p *FilePersister) Load(key string) ([]byte, error) {
	data, err := os.ReadFile(p.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Save writes through a temp file so a crash never leaves a torn record.
func (p *FilePersister) Save(key string, data []byte) error {
	tmp := p.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, p.path(key))
}

func (p *FilePersister) Remove(key string) error {
	err := os.Remove(p.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MemoryPersister keeps values in memory.
type MemoryPersister struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{data: make(map[string][]byte)}
}

func (p *MemoryPersister) Load(key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (p *MemoryPersister) Save(key string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = append([]byte(nil), data...)
	return nil
}

func (p *MemoryPersister) Remove(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, key)
	return nil
}
