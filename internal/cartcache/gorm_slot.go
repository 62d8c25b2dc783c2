package cartcache

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type cacheEntry struct {
	Key       string `gorm:"primaryKey"`
	Value     []byte
	UpdatedAt time.Time
}

func (cacheEntry) TableName() string {
	return "cart_cache"
}

// GormSlot stores slot values in a local sqlite file, the per-session
// analogue of browser local storage.
type GormSlot struct {
	DB *gorm.DB
}

// OpenSQLite opens (and migrates) the sqlite-backed slot at path.
// ":memory:" is accepted for tests.
func OpenSQLite(path string) (*GormSlot, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&cacheEntry{}); err != nil {
		return nil, err
	}
	return &GormSlot{DB: db}, nil
}

func (s *GormSlot) Put(ctx context.Context, key string, value []byte) error {
	entry := cacheEntry{Key: key, Value: value}
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			UpdateAll: true,
		}).
		Create(&entry).Error
}

func (s *GormSlot) Get(ctx context.Context, key string) ([]byte, error) {
	var entry cacheEntry
	err := s.DB.WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

func (s *GormSlot) Delete(ctx context.Context, key string) error {
	return s.DB.WithContext(ctx).Delete(&cacheEntry{}, "key = ?", key).Error
}
