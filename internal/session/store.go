package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/CharadesAI/charadesai-sub000/internal/config"
	"github.com/CharadesAI/charadesai-sub000/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Storage keys. The user entry is always cleared together with the token.
const (
	keyToken = "session:token"
	keyUser  = "session:user"
	keyFlag  = "flag"
)

// Well-known client flags
const (
	FlagChatContextSent = "chat_context_sent"
	FlagCookieConsent   = "cookie_consent"
	FlagTheme           = "theme"
)

// Store persists the session token, the user profile and opaque client
// flags. It is a best-effort cache, not a source of truth: callers log and
// ignore write failures.
type Store interface {
	SetToken(ctx context.Context, token string) error
	Token(ctx context.Context) (string, error)
	// ClearToken removes the token and the user profile together.
	ClearToken(ctx context.Context) error

	SetUser(ctx context.Context, profile *models.Profile) error
	User(ctx context.Context) (*models.Profile, error)

	SetFlag(ctx context.Context, key, value string) error
	Flag(ctx context.Context, key string) (string, error)
}

// NewStore creates the store backend selected by configuration
func NewStore(cfg *config.Config, logger *logrus.Logger) (Store, error) {
	switch cfg.Storage.Type {
	case "file":
		return NewFileStore(cfg.Storage.File.Path, logger)
	case "memory":
		return NewMemoryStore(cfg, logger), nil
	case "redis":
		return NewRedisStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

// FileStore keeps the session in a single JSON file on disk. Writes go
// through a temp file and rename so a crash never leaves a torn file.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger *logrus.Logger
}

type fileState struct {
	Token string            `json:"token,omitempty"`
	User  json.RawMessage   `json:"user,omitempty"`
	Flags map[string]string `json:"flags,omitempty"`
}

func NewFileStore(path string, logger *logrus.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{path: path, logger: logger}, nil
}

func (f *FileStore) load() *fileState {
	state := &fileState{}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return state
	}
	if err := json.Unmarshal(data, state); err != nil {
		// Malformed file reads as empty; it will be rewritten on the next save.
		f.logger.WithError(err).Warn("Session file is malformed, treating as empty")
		return &fileState{}
	}
	return state
}

func (f *FileStore) save(state *fileState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) SetToken(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.load()
	state.Token = token
	return f.save(state)
}

func (f *FileStore) Token(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load().Token, nil
}

func (f *FileStore) ClearToken(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.load()
	state.Token = ""
	state.User = nil
	return f.save(state)
}

func (f *FileStore) SetUser(ctx context.Context, profile *models.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.load()
	state.User = data
	return f.save(state)
}

func (f *FileStore) User(ctx context.Context) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.load()
	if len(state.User) == 0 {
		return nil, nil
	}
	var profile models.Profile
	if err := json.Unmarshal(state.User, &profile); err != nil {
		// Parse errors are not surfaced; a bad entry is the same as none.
		f.logger.WithError(err).Warn("Stored profile is malformed")
		return nil, nil
	}
	return &profile, nil
}

func (f *FileStore) SetFlag(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.load()
	if state.Flags == nil {
		state.Flags = make(map[string]string)
	}
	state.Flags[key] = value
	return f.save(state)
}

func (f *FileStore) Flag(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load().Flags[key], nil
}

// MemoryStore implements the store using an in-memory cache
type MemoryStore struct {
	entries *cache.Cache
	logger  *logrus.Logger
}

func NewMemoryStore(cfg *config.Config, logger *logrus.Logger) *MemoryStore {
	expiration := cfg.Storage.Memory.DefaultExpiration
	cleanup := cfg.Storage.Memory.CleanupInterval
	if expiration == 0 {
		expiration = cache.NoExpiration
	}
	if cleanup == 0 {
		cleanup = 10 * time.Minute
	}
	return &MemoryStore{
		entries: cache.New(expiration, cleanup),
		logger:  logger,
	}
}

func (m *MemoryStore) SetToken(ctx context.Context, token string) error {
	m.entries.SetDefault(keyToken, token)
	return nil
}

func (m *MemoryStore) Token(ctx context.Context) (string, error) {
	if val, found := m.entries.Get(keyToken); found {
		return val.(string), nil
	}
	return "", nil
}

func (m *MemoryStore) ClearToken(ctx context.Context) error {
	m.entries.Delete(keyToken)
	m.entries.Delete(keyUser)
	return nil
}

func (m *MemoryStore) SetUser(ctx context.Context, profile *models.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	m.entries.SetDefault(keyUser, data)
	return nil
}

func (m *MemoryStore) User(ctx context.Context) (*models.Profile, error) {
	val, found := m.entries.Get(keyUser)
	if !found {
		return nil, nil
	}
	var profile models.Profile
	if err := json.Unmarshal(val.([]byte), &profile); err != nil {
		m.logger.WithError(err).Warn("Stored profile is malformed")
		return nil, nil
	}
	return &profile, nil
}

func (m *MemoryStore) SetFlag(ctx context.Context, key, value string) error {
	m.entries.Set(flagKey(key), value, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) Flag(ctx context.Context, key string) (string, error) {
	if val, found := m.entries.Get(flagKey(key)); found {
		return val.(string), nil
	}
	return "", nil
}

// RedisStore implements the store using Redis, for headless deployments
// that share one session across hosts.
type RedisStore struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisStore(cfg *config.Config, logger *logrus.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr,
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, logger: logger}, nil
}

func (r *RedisStore) SetToken(ctx context.Context, token string) error {
	return r.client.Set(ctx, keyToken, token, 0).Err()
}

func (r *RedisStore) Token(ctx context.Context) (string, error) {
	val, err := r.client.Get(ctx, keyToken).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (r *RedisStore) ClearToken(ctx context.Context) error {
	return r.client.Del(ctx, keyToken, keyUser).Err()
}

func (r *RedisStore) SetUser(ctx context.Context, profile *models.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyUser, data, 0).Err()
}

func (r *RedisStore) User(ctx context.Context) (*models.Profile, error) {
	data, err := r.client.Get(ctx, keyUser).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var profile models.Profile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		r.logger.WithError(err).Warn("Stored profile is malformed")
		return nil, nil
	}
	return &profile, nil
}

func (r *RedisStore) SetFlag(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, flagKey(key), value, 0).Err()
}

func (r *RedisStore) Flag(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, flagKey(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func flagKey(key string) string {
	return fmt.Sprintf("%s:%s", keyFlag, key)
}
