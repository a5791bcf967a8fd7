package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrBlank is returned by Media.Load when the medium was never written
var ErrBlank = errors.New("storage medium is blank")

// ErrMediaFull is returned when an image does not fit the reserved partition
var ErrMediaFull = errors.New("storage image exceeds partition size")

// Media is the raw partition the database image lives on
type Media interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, image []byte) error
	Erase(ctx context.Context) error
}

// FileMedia keeps the image in a single file. Saves go through a temp file and a
// rename so a crash never leaves a half-written image behind.
type FileMedia struct {
	Path string
	// Capacity bounds the image size in bytes; 0 means unbounded
	Capacity int
}

// NewFileMedia returns a file-backed partition
func NewFileMedia(path string, capacity int) *FileMedia {
	return &FileMedia{Path: path, Capacity: capacity}
}

func (m *FileMedia) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(m.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlank
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read partition %s: %w", m.Path, err)
	}
	if len(data) == 0 {
		return nil, ErrBlank
	}
	return data, nil
}

func (m *FileMedia) Save(ctx context.Context, image []byte) error {
	if m.Capacity > 0 && len(image) > m.Capacity {
		return fmt.Errorf("%w: %d > %d bytes", ErrMediaFull, len(image), m.Capacity)
	}

	dir := filepath.Dir(m.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create partition directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(m.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp image: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close image: %w", err)
	}
	if err := os.Rename(tmpName, m.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace image: %w", err)
	}
	return nil
}

func (m *FileMedia) Erase(ctx context.Context) error {
	if err := os.Remove(m.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to erase partition %s: %w", m.Path, err)
	}
	return nil
}

// RedisMedia keeps the image under a single Redis key
type RedisMedia struct {
	client redis.Cmdable
	key    string
}

// NewRedisMedia stores the image at key on client
func NewRedisMedia(client redis.Cmdable, key string) *RedisMedia {
	return &RedisMedia{client: client, key: key}
}

func (m *RedisMedia) Load(ctx context.Context) ([]byte, error) {
	data, err := m.client.Get(ctx, m.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrBlank
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load image from redis key %s: %w", m.key, err)
	}
	if len(data) == 0 {
		return nil, ErrBlank
	}
	return data, nil
}

func (m *RedisMedia) Save(ctx context.Context, image []byte) error {
	if err := m.client.Set(ctx, m.key, image, 0).Err(); err != nil {
		return fmt.Errorf("failed to save image to redis key %s: %w", m.key, err)
	}
	return nil
}

func (m *RedisMedia) Erase(ctx context.Context) error {
	if err := m.client.Del(ctx, m.key).Err(); err != nil {
		return fmt.Errorf("failed to erase redis key %s: %w", m.key, err)
	}
	return nil
}

// MemoryMedia is an in-process partition with fault injection, used in tests
// and when persistence is disabled
type MemoryMedia struct {
	mu    sync.Mutex
	image []byte
	saves int

	loadErr  error
	saveErr  error
	eraseErr error
}

// NewMemoryMedia returns a blank in-memory partition
func NewMemoryMedia() *MemoryMedia {
	return &MemoryMedia{}
}

func (m *MemoryMedia) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if len(m.image) == 0 {
		return nil, ErrBlank
	}
	return append([]byte(nil), m.image...), nil
}

func (m *MemoryMedia) Save(ctx context.Context, image []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return m.saveErr
	}
	m.image = append([]byte(nil), image...)
	m.saves++
	return nil
}

func (m *MemoryMedia) Erase(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.eraseErr != nil {
		return m.eraseErr
	}
	m.image = nil
	return nil
}

// Image returns a copy of the raw partition contents
func (m *MemoryMedia) Image() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.image...)
}

// SetImage overwrites the raw partition contents
func (m *MemoryMedia) SetImage(image []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.image = append([]byte(nil), image...)
}

// Saves counts successful Save calls
func (m *MemoryMedia) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// FailLoad makes subsequent loads return err; nil clears the fault
func (m *MemoryMedia) FailLoad(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// FailSave makes subsequent saves return err; nil clears the fault
func (m *MemoryMedia) FailSave(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// FailErase makes subsequent erases return err; nil clears the fault
func (m *MemoryMedia) FailErase(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eraseErr = err
}
