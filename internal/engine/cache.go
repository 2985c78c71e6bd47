package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"
)

// KV is the persistent key-value store behind the cache. A missing key is
// (nil, false, nil), never an error.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte) error
	Close() error
}

// Cache persists playlists, videos and channel-alias records as JSON blobs
// keyed by string. The durable store is SQLite (or PostgreSQL when
// DATABASE_URL is set); Redis is an optional read-through L2 that survives
// nothing but saves the durable store a round trip for hot keys.
type Cache struct {
	kv  KV
	rdb *redis.Client // nil if L2 disabled
	ttl time.Duration
}

// OpenCache opens the configured durable store and, if configured, the
// Redis tier. An unreachable Redis disables L2 with a warning.
func OpenCache(ctx context.Context) (*Cache, error) {
	var kv KV
	var err error
	if cfg.DatabaseURL != "" {
		kv, err = connectPGStore(ctx, cfg.DatabaseURL)
	} else {
		kv, err = openSQLiteStore(filepath.Join(cfg.DataDir, "cache.db"))
	}
	if err != nil {
		return nil, err
	}

	c := &Cache{kv: kv, ttl: cfg.CacheTTL}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Warn("cache: invalid redis URL, L2 disabled", slog.Any("error", err))
		} else {
			rdb := redis.NewClient(opts)
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := rdb.Ping(pingCtx).Err(); err != nil {
				slog.Warn("cache: redis unreachable, L2 disabled", slog.Any("error", err))
			} else {
				c.rdb = rdb
				slog.Info("cache: L2 redis connected", slog.String("addr", opts.Addr))
			}
		}
	}
	return c, nil
}

// Close releases the durable store and the Redis connection.
func (c *Cache) Close() error {
	if c.rdb != nil {
		c.rdb.Close() //nolint:errcheck
	}
	return c.kv.Close()
}

// Get tries L2, then the durable store. On a durable hit, populates L2.
// Reads never mutate records.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			IncrCacheHit()
			return data, true, nil
		}
	}
	data, found, err := c.kv.Get(ctx, key)
	if err != nil || !found {
		IncrCacheMiss()
		return nil, false, err
	}
	IncrCacheHit()
	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			slog.Debug("cache: L2 set failed", slog.Any("error", err))
		}
	}
	return data, true, nil
}

// Set writes to the durable store and refreshes L2. Writes are the only
// mutation path.
func (c *Cache) Set(ctx context.Context, key string, data []byte) error {
	if err := c.kv.Set(ctx, key, data); err != nil {
		return err
	}
	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			slog.Debug("cache: L2 set failed", slog.Any("error", err))
		}
	}
	return nil
}

// GetJSON decodes the record at key into v. A corrupt record is a fatal
// deserialization error surfaced to the caller.
func (c *Cache) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	data, found, err := c.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("cache: corrupt record %q: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	return c.Set(ctx, key, data)
}

// Video records are immutable once fully captioned, so they carry no TTL
// in the durable store.

func videoKey(id string) string { return "video:" + id }

// LoadVideo returns the cached video record, or nil.
func (c *Cache) LoadVideo(ctx context.Context, id string) (*Video, error) {
	var v Video
	found, err := c.GetJSON(ctx, videoKey(id), &v)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

// SaveVideo persists a video record.
func (c *Cache) SaveVideo(ctx context.Context, v *Video) error {
	return c.SetJSON(ctx, videoKey(v.ID), v)
}

// LoadPlaylist returns the cached playlist under key, or nil.
func (c *Cache) LoadPlaylist(ctx context.Context, key string) (*Playlist, error) {
	var p Playlist
	found, err := c.GetJSON(ctx, key, &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// SavePlaylist persists a playlist under key.
func (c *Cache) SavePlaylist(ctx context.Context, key string, p *Playlist) error {
	return c.SetJSON(ctx, key, p)
}

// sqliteStore is the default durable KV, one row per record.
type sqliteStore struct {
	db *sql.DB
}

func openSQLiteStore(path string) (*sqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("cache: mkdir %s: %w", filepath.Dir(path), err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("cache: init schema: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *sqliteStore) Set(ctx context.Context, key string, data []byte) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, data, now)
	if err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }
