// Package l2 implements the columnar-store-backed cache tier of §4.6: a
// single table (key PRIMARY KEY, value JSON, expiry DOUBLE, created
// TIMESTAMP) with lazy expiry sweep. Grounded on the teacher's
// internal/cache.Manager API shape (Get/Set/Delete, zap-logged), re-backed
// from Redis onto gorm per DESIGN.md.
package l2

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrMiss names an L2 cache miss. Get does not return it: Get reports an
// absent or expired key through its bool result.
var ErrMiss = errors.New("l2 cache miss")

// row is the gorm model backing the single cache_entries table.
type row struct {
	Key     string    `gorm:"column:key;primaryKey"`
	Value   []byte    `gorm:"column:value"`
	Expiry  float64   `gorm:"column:expiry;index"`
	Created time.Time `gorm:"column:created"`
}

func (row) TableName() string { return "cache_entries" }

// Store is the gorm-backed L2 tier.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New wraps db as an L2 Store. Callers are expected to have already run
// AutoMigrate/migrations for the cache_entries table (see internal/repository).
func New(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Get returns the value for key iff its expiry is in the future.
func (s *Store) Get(key string) ([]byte, bool) {
	var r row
	now := float64(time.Now().Unix())
	err := s.db.Where("key = ? AND expiry > ?", key, now).First(&r).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("l2 get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return r.Value, true
}

// Set upserts key with value and expiry = now + ttl.
func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	r := row{
		Key:     key,
		Value:   value,
		Expiry:  float64(time.Now().Add(ttl).Unix()),
		Created: time.Now(),
	}
	err := s.db.Save(&r).Error
	if err != nil {
		s.logger.Warn("l2 set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Delete removes key unconditionally.
func (s *Store) Delete(key string) error {
	return s.db.Where("key = ?", key).Delete(&row{}).Error
}

// Clear drops every row.
func (s *Store) Clear() error {
	return s.db.Where("1 = 1").Delete(&row{}).Error
}

// CleanupExpired deletes rows with expiry <= now and returns the count
// removed (lazy expiry sweep, §4.6 glossary).
func (s *Store) CleanupExpired() (int64, error) {
	now := float64(time.Now().Unix())
	res := s.db.Where("expiry <= ?", now).Delete(&row{})
	return res.RowsAffected, res.Error
}
