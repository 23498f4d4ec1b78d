package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/CharadesAI/charadesai-sub000/internal/config"
	"github.com/CharadesAI/charadesai-sub000/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Service caches inference answers keyed by the full conversation, so a
// repeated prompt in the same context is served without a network round trip.
type Service interface {
	Get(ctx context.Context, messages []models.Message) (string, bool)
	Set(ctx context.Context, messages []models.Message, answer string) error
	Clear(ctx context.Context) error
}

// Cache implements the caching service
type Cache struct {
	enabled bool
	cache   *cache.Cache
	logger  *logrus.Logger
	maxSize int
}

// NewCache creates a new cache service
func NewCache(cfg *config.Config, logger *logrus.Logger) Service {
	if !cfg.Cache.Enabled {
		return &Cache{enabled: false}
	}

	return &Cache{
		enabled: true,
		cache:   cache.New(cfg.Cache.TTL, cfg.Cache.TTL*2),
		logger:  logger,
		maxSize: cfg.Cache.MaxSize,
	}
}

// Get retrieves a cached answer for the conversation
func (c *Cache) Get(ctx context.Context, messages []models.Message) (string, bool) {
	if !c.enabled {
		return "", false
	}

	key := c.generateKey(messages)
	if val, found := c.cache.Get(key); found {
		entry := val.(*models.CacheEntry)
		c.logger.WithFields(logrus.Fields{
			"prompt": entry.Prompt,
			"age":    time.Since(entry.CreatedAt),
		}).Debug("Cache hit")
		return entry.Answer, true
	}

	return "", false
}

// Set stores an answer in the cache
func (c *Cache) Set(ctx context.Context, messages []models.Message, answer string) error {
	if !c.enabled {
		return nil
	}

	// Check cache size
	if c.cache.ItemCount() >= c.maxSize {
		c.logger.Warn("Cache size limit reached, clearing old entries")
		c.cache.DeleteExpired()
	}

	prompt := ""
	if len(messages) > 0 {
		prompt = messages[len(messages)-1].Content
	}

	key := c.generateKey(messages)
	entry := &models.CacheEntry{
		Prompt:    prompt,
		Answer:    answer,
		CreatedAt: time.Now(),
	}

	c.cache.SetDefault(key, entry)
	c.logger.WithField("prompt", prompt).Debug("Response cached")

	return nil
}

// Clear removes all cached entries
func (c *Cache) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	c.cache.Flush()
	c.logger.Info("Cache cleared")
	return nil
}

// generateKey hashes the whole conversation so the same prompt in a
// different context is a different entry
func (c *Cache) generateKey(messages []models.Message) string {
	hash := sha256.New()
	for _, msg := range messages {
		fmt.Fprintf(hash, "%s\x00%s\x00", msg.Role, msg.Content)
	}
	return hex.EncodeToString(hash.Sum(nil))
}
