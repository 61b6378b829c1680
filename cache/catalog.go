package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"musichud/core/netease"
	"musichud/logger"
	"musichud/model"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "musichud:"

// TrackKey 歌曲详情缓存键
func TrackKey(id int64) string {
	return fmt.Sprintf("%strack:%d", keyPrefix, id)
}

// PlaylistKey 歌单详情缓存键
func PlaylistKey(id int64) string {
	return fmt.Sprintf("%splaylist:%d", keyPrefix, id)
}

// CatalogCache 缓存歌曲与歌单详情，播放地址和登录接口直接透传
type CatalogCache struct {
	netease.Gateway
	rdb *redis.Client
	ttl time.Duration
}

// NewCatalogCache rdb 为 nil 时不做缓存
func NewCatalogCache(upstream netease.Gateway, rdb *redis.Client, ttl time.Duration) *CatalogCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CatalogCache{Gateway: upstream, rdb: rdb, ttl: ttl}
}

// LookupTrack 先查缓存，未命中时请求上游并回写
func (c *CatalogCache) LookupTrack(ctx context.Context, id int64) (model.Track, error) {
	var track model.Track
	if c.load(ctx, TrackKey(id), &track) {
		return track, nil
	}
	track, err := c.Gateway.LookupTrack(ctx, id)
	if err != nil {
		return track, err
	}
	c.store(ctx, TrackKey(id), track)
	return track, nil
}

// FetchPlaylistDetail 先查缓存，未命中时请求上游并回写
func (c *CatalogCache) FetchPlaylistDetail(ctx context.Context, id int64, cookie string) (model.Playlist, error) {
	var playlist model.Playlist
	if c.load(ctx, PlaylistKey(id), &playlist) {
		return playlist, nil
	}
	playlist, err := c.Gateway.FetchPlaylistDetail(ctx, id, cookie)
	if err != nil {
		return playlist, err
	}
	c.store(ctx, PlaylistKey(id), playlist)
	return playlist, nil
}

// InvalidateAll 删除所有目录缓存，返回删除数量
func (c *CatalogCache) InvalidateAll(ctx context.Context) (int, error) {
	if c.rdb == nil {
		return 0, nil
	}
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("扫描缓存失败: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("删除缓存失败: %w", err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	logger.Info("catalog cache invalidated", logger.Int("keys", deleted))
	return deleted, nil
}

func (c *CatalogCache) load(ctx context.Context, key string, out interface{}) bool {
	if c.rdb == nil {
		return false
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("cache read failed", logger.String("key", key), logger.ErrorField(err))
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		logger.Warn("cache entry corrupted", logger.String("key", key), logger.ErrorField(err))
		return false
	}
	return true
}

func (c *CatalogCache) store(ctx context.Context, key string, v interface{}) {
	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("cache encode failed", logger.String("key", key), logger.ErrorField(err))
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Warn("cache write failed", logger.String("key", key), logger.ErrorField(err))
	}
}
