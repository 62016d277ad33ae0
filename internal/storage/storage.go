package storage

import (
	"encoding/json"
	"errors"
	"time"

	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("storage: key not found")

// Entry is one persisted key/value pair. Values are always JSON-encoded so
// the store behaves like the string-keyed local storage it replaces.
type Entry struct {
	Key       string `gorm:"primaryKey;column:key"`
	Value     string `gorm:"column:value"`
	UpdatedAt time.Time
}

func (Entry) TableName() string { return "local_state" }

// Store is the client's local state store backed by sqlite.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the state database at path. ":memory:" works for
// tests. The pure-Go sqlite driver is used so no CGO is required.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(
		gormsqlite.New(gormsqlite.Config{
			DriverName: "sqlite",
			DSN:        path,
		}),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Set JSON-encodes v and upserts it under key.
func (s *Store) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&Entry{Key: key, Value: string(raw), UpdatedAt: time.Now()}).Error
}

// Get decodes the value stored under key into out.
func (s *Store) Get(key string, out any) error {
	var entry Entry
	if err := s.db.Where("key = ?", key).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal([]byte(entry.Value), out)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	return s.db.Where("key = ?", key).Delete(&Entry{}).Error
}
