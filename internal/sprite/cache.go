package sprite

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/koios/matrx-display/pkg/models"
	"go.uber.org/zap"
)

// Reader is the storage read path the cache warms from
type Reader interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// Cache holds at most one BakedSprite per name. Names that failed to load stay
// unavailable until a Clear drops them, so a broken record is not re-read each frame.
type Cache struct {
	reader Reader
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	sprites     map[string]*BakedSprite
	unavailable map[string]error
}

// NewCache returns an empty cache reading from reader
func NewCache(reader Reader, logger *zap.Logger) *Cache {
	return &Cache{
		reader:      reader,
		logger:      logger,
		now:         time.Now,
		sprites:     make(map[string]*BakedSprite),
		unavailable: make(map[string]error),
	}
}

// WithClock replaces the time source used when baking
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Prepare loads every name that is neither resident nor known to be unavailable
func (c *Cache) Prepare(ctx context.Context, names []string) {
	for _, name := range names {
		c.mu.Lock()
		_, resident := c.sprites[name]
		_, failed := c.unavailable[name]
		c.mu.Unlock()
		if resident || failed {
			continue
		}

		baked, err := c.load(ctx, name)

		c.mu.Lock()
		if err != nil {
			c.unavailable[name] = err
		} else {
			c.sprites[name] = baked
		}
		c.mu.Unlock()
	}
}

func (c *Cache) load(ctx context.Context, name string) (*BakedSprite, error) {
	c.logger.Debug("Baking sprite", zap.String("sprite", name))

	data, err := c.reader.Read(ctx, name)
	if err != nil {
		c.logger.Error("Failed to read sprite from storage", zap.String("sprite", name), zap.Error(err))
		return nil, err
	}

	res, err := models.DecodeResource(data)
	if err != nil {
		c.logger.Error("Failed to parse sprite", zap.String("sprite", name), zap.Error(err))
		return nil, err
	}

	baked, err := Bake(res, c.now())
	if err != nil {
		c.logger.Error("Failed to decode sprite frames", zap.String("sprite", name), zap.Error(err))
		return nil, err
	}
	return baked, nil
}

// Clear evicts every name not in keep, including remembered failures
func (c *Cache) Clear(keep []string) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, name := range keep {
		keepSet[name] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for name := range c.sprites {
		if _, ok := keepSet[name]; !ok {
			delete(c.sprites, name)
		}
	}
	for name := range c.unavailable {
		if _, ok := keepSet[name]; !ok {
			delete(c.unavailable, name)
		}
	}
}

// GetSprite returns the current frame of a resident sprite
func (c *Cache) GetSprite(name string, now time.Time) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sprites[name]
	if !ok {
		return nil, false
	}
	return s.GetImage(now), true
}

// NeedsRedraw reports whether any resident sprite is due to advance
func (c *Cache) NeedsRedraw(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.sprites {
		if s.NeedsUpdate(now) {
			return true
		}
	}
	return false
}

// Len is the number of resident sprites
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sprites)
}

// Unavailable returns why name could not be loaded, or nil
func (c *Cache) Unavailable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unavailable[name]
}
