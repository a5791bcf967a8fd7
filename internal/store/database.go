// Package store is the persistent key/value database behind sprite uploads.
// Records live in one image on a Media partition; all mutation is funnelled
// through a single-consumer command Queue.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"
)

const (
	// MaxKeyLength is the longest key the database accepts, in bytes
	MaxKeyLength = 255
	// DefaultMaxValueSize bounds a single record value
	DefaultMaxValueSize = 64 << 10
)

var (
	// ErrKeyNotFound is returned by Read for an absent key
	ErrKeyNotFound = errors.New("key not found")
	// ErrNotMounted is returned before a successful Mount or Format
	ErrNotMounted = errors.New("database is not mounted")
	// ErrInvalidKey is returned for empty, oversized or non UTF-8 keys
	ErrInvalidKey = errors.New("invalid key")
	// ErrValueTooLarge is returned for values above the configured limit
	ErrValueTooLarge = errors.New("value too large")
)

// Database is a flat key/value namespace persisted as a single image.
// Reads run concurrently; Commit and Format are exclusive.
type Database struct {
	media    Media
	maxValue int

	mu      sync.RWMutex
	records map[string][]byte
	mounted bool
}

// NewDatabase returns an unmounted database on media. maxValue <= 0 selects
// DefaultMaxValueSize.
func NewDatabase(media Media, maxValue int) *Database {
	if maxValue <= 0 {
		maxValue = DefaultMaxValueSize
	}
	return &Database{media: media, maxValue: maxValue}
}

// Mount loads and verifies the image. A blank or damaged medium returns an
// error wrapping ErrCorrupt.
func (db *Database) Mount(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	image, err := db.media.Load(ctx)
	if errors.Is(err, ErrBlank) {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}

	records, err := decodeImage(image)
	if err != nil {
		return err
	}

	db.records = records
	db.mounted = true
	return nil
}

// Format erases the medium and writes an empty image. The database is mounted
// and empty afterwards.
func (db *Database) Format(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.mounted = false
	db.records = nil

	if err := db.media.Erase(ctx); err != nil {
		return fmt.Errorf("failed to erase medium: %w", err)
	}
	image, err := encodeImage(nil)
	if err != nil {
		return err
	}
	if err := db.media.Save(ctx, image); err != nil {
		return fmt.Errorf("failed to write empty image: %w", err)
	}

	db.records = make(map[string][]byte)
	db.mounted = true
	return nil
}

// Mounted reports whether the database can serve reads
func (db *Database) Mounted() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.mounted
}

// Read returns a copy of the value stored under key
func (db *Database) Read(ctx context.Context, key string) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if !db.mounted {
		return nil, ErrNotMounted
	}
	value, ok := db.records[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

// Contains reports whether key has a record
func (db *Database) Contains(ctx context.Context, key string) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if !db.mounted {
		return false, ErrNotMounted
	}
	_, ok := db.records[key]
	return ok, nil
}

// Keys returns every stored key in sorted order
func (db *Database) Keys() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	keys := make([]string, 0, len(db.records))
	for k := range db.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteTransaction starts a batch of writes and deletes applied by Commit
func (db *Database) WriteTransaction() *Transaction {
	return &Transaction{db: db, changes: make(map[string][]byte)}
}

// ValidateKey checks key against the database key rules
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case len(key) > MaxKeyLength:
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidKey, len(key), MaxKeyLength)
	case !utf8.ValidString(key):
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidKey)
	}
	return nil
}

// Transaction buffers changes until Commit
type Transaction struct {
	db      *Database
	changes map[string][]byte
	deletes map[string]bool
}

// Write stages a full replacement of key's value
func (tx *Transaction) Write(key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if len(value) > tx.db.maxValue {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrValueTooLarge, len(value), tx.db.maxValue)
	}
	tx.changes[key] = append([]byte{}, value...)
	delete(tx.deletes, key)
	return nil
}

// Delete stages removal of key
func (tx *Transaction) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if tx.deletes == nil {
		tx.deletes = make(map[string]bool)
	}
	delete(tx.changes, key)
	tx.deletes[key] = true
	return nil
}

// Commit writes the new image and, once it is durable, makes the changes visible
func (tx *Transaction) Commit(ctx context.Context) error {
	db := tx.db
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.mounted {
		return ErrNotMounted
	}

	next := make(map[string][]byte, len(db.records)+len(tx.changes))
	for k, v := range db.records {
		if !tx.deletes[k] {
			next[k] = v
		}
	}
	for k, v := range tx.changes {
		next[k] = v
	}

	image, err := encodeImage(next)
	if err != nil {
		return err
	}
	if err := db.media.Save(ctx, image); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}

	db.records = next
	tx.changes = make(map[string][]byte)
	tx.deletes = nil
	return nil
}
