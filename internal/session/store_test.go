package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kisan-sarthi/backend/internal/models"
)

func testSession(expires time.Time) models.Session {
	return models.Session{
		Token:     "tok-1",
		Principal: models.Principal{ID: "p-1", Phone: "+919876543210"},
		ExpiresAt: expires,
	}
}

func TestStore_SetGetClear(t *testing.T) {
	s := NewStore(NewMemoryPersister())
	require.NoError(t, s.Init())

	_, ok := s.Get()
	assert.False(t, ok)
	_, err := RequireSession(s)
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, s.Set(testSession(time.Now().Add(time.Hour))))
	got, ok := s.Get()
	require.True(t, ok)
	assert.Equal(t, "p-1", got.Principal.ID)
	assert.Equal(t, "tok-1", s.Token())
	id, ok := s.PrincipalID()
	assert.True(t, ok)
	assert.Equal(t, "p-1", id)

	require.NoError(t, s.Clear())
	_, ok = s.Get()
	assert.False(t, ok)
	assert.Empty(t, s.Token())
}

func TestStore_InitRestoresPersistedSession(t *testing.T) {
	p, err := NewFilePersister(t.TempDir())
	require.NoError(t, err)

	first := NewStore(p)
	require.NoError(t, first.Init())
	require.NoError(t, first.Set(testSession(time.Now().Add(time.Hour))))

	second := NewStore(p)
	require.NoError(t, second.Init())
	sess, err := RequireSession(second)
	require.NoError(t, err)
	assert.Equal(t, "+919876543210", sess.Principal.Phone)
}

func TestStore_InitDropsExpiredSession(t *testing.T) {
	p := NewMemoryPersister()
	s := NewStore(p)
	require.NoError(t, s.Set(testSession(time.Now().Add(-time.Minute))))

	require.NoError(t, s.Init())
	_, ok := s.Get()
	assert.False(t, ok)

	data, err := p.Load(Key)
	require.NoError(t, err)
	assert.Nil(t, data, "expired record is removed")
}

func TestStore_InitDropsCorruptRecord(t *testing.T) {
	p := NewMemoryPersister()
	require.NoError(t, p.Save(Key, []byte("{not json")))

	s := NewStore(p)
	require.NoError(t, s.Init())
	_, ok := s.Get()
	assert.False(t, ok)
}

func TestStore_GetHidesExpiry(t *testing.T) {
	s := NewStore(NewMemoryPersister())
	now := time.Now()
	s.now = func() time.Time { return now }
	require.NoError(t, s.Set(testSession(now.Add(time.Minute))))

	_, ok := s.Get()
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = s.Get()
	assert.False(t, ok)
}

func TestFilePersister(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilePersister(filepath.Join(dir, "nested"))
	require.NoError(t, err)

	data, err := p.Load("user")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, p.Save("user", []byte(`{"a":1}`)))
	data, err = p.Load("user")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	_, err = os.Stat(filepath.Join(dir, "nested", "user.json.tmp"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, p.Remove("user"))
	require.NoError(t, p.Remove("user"))
}
