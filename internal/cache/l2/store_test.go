package l2

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "l2.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&row{}))
	return New(db, zap.NewNop())
}

func TestStore_SetGet(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("k1", []byte("payload"), time.Minute))

	v, ok := s.Get("k1")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), v)
}

func TestStore_MissOnAbsentKey(t *testing.T) {
	s := newTestStore(t)
	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestStore_ExpiredEntryIsAMiss(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("k1", []byte("payload"), -time.Second))

	_, ok := s.Get("k1")
	assert.False(t, ok)
}

func TestStore_SetIsUpsert(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("k1", []byte("v1"), time.Minute))
	require.NoError(t, s.Set("k1", []byte("v2"), time.Minute))

	v, ok := s.Get("k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), v)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("k1", []byte("v1"), time.Minute))
	require.NoError(t, s.Delete("k1"))

	_, ok := s.Get("k1")
	assert.False(t, ok)
}

func TestStore_Clear(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("k1", []byte("v1"), time.Minute))
	require.NoError(t, s.Set("k2", []byte("v2"), time.Minute))
	require.NoError(t, s.Clear())

	_, ok := s.Get("k1")
	assert.False(t, ok)
	_, ok = s.Get("k2")
	assert.False(t, ok)
}

func TestStore_CleanupExpiredRemovesOnlyExpiredRows(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("expired", []byte("v1"), -time.Second))
	require.NoError(t, s.Set("live", []byte("v2"), time.Minute))

	n, err := s.CleanupExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok := s.Get("live")
	assert.True(t, ok)
}
