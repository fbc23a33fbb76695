package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hls-radio/internal/radio"

	"github.com/redis/go-redis/v9"
)

// DefaultSongCacheTTL is how long a brand's song list is reused.
const DefaultSongCacheTTL = 5 * time.Minute

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection with a ping.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// CachedSource caches another SongSource's listings in Redis. Redis errors
// never fail a listing; the wrapped source is used instead.
type CachedSource struct {
	next   radio.SongSource
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// NewCachedSource wraps next with a Redis cache. A non-positive ttl uses
// DefaultSongCacheTTL.
func NewCachedSource(next radio.SongSource, client *redis.Client, ttl time.Duration, log *slog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultSongCacheTTL
	}
	return &CachedSource{
		next:   next,
		client: client,
		ttl:    ttl,
		log:    log.With(slog.String("component", "song_cache")),
	}
}

func cacheKey(brand string, itemType radio.ItemType) string {
	return "radio:songs:" + brand + ":" + string(itemType)
}

// ListBrandSongs implements radio.SongSource.
func (c *CachedSource) ListBrandSongs(ctx context.Context, brand string, itemType radio.ItemType) ([]radio.Song, error) {
	key := cacheKey(brand, itemType)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var songs []radio.Song
		if err := json.Unmarshal(data, &songs); err == nil {
			return songs, nil
		}
		c.log.Warn("discarding unreadable cache entry", slog.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("redis get failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	songs, err := c.next.ListBrandSongs(ctx, brand, itemType)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(songs)
	if err != nil {
		return songs, nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.log.Warn("redis set failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return songs, nil
}

// Invalidate drops every cached listing of brand. It implements radio.SongCache.
func (c *CachedSource) Invalidate(ctx context.Context, brand string) error {
	keys := make([]string, 0, len(itemTypes))
	for _, t := range itemTypes {
		keys = append(keys, cacheKey(brand, t))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate songs of %s: %w", brand, err)
	}
	return nil
}

var itemTypes = []radio.ItemType{radio.ItemSong, radio.ItemAnnouncement, radio.ItemJingle}

var _ radio.SongCache = (*CachedSource)(nil)
