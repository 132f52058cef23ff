package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	groupKeyPrefix = "studygroup:group:"
	// versionTTL 版本号的保留时间，远大于详情的 ttl
	versionTTL = 24 * time.Hour
)

// storeScript 版本号未变化时才写入，KEYS[1] 详情 KEYS[2] 版本号
var storeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[2])
if (v or '0') ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// invalidateScript 版本号加一并删除详情
var invalidateScript = redis.NewScript(`
local v = redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[1])
redis.call('DEL', KEYS[1])
return v
`)

// GroupCache 小组详情的 Redis 读缓存，只服务于查询，不参与任何状态判断
// 每个小组带一个版本号，Invalidate 递增版本号，读库前拿到的旧版本无法再写回
type GroupCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewGroupCache(client redis.Cmdable, ttl time.Duration) *GroupCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &GroupCache{client: client, ttl: ttl}
}

func groupKey(groupUUID string) string {
	return groupKeyPrefix + groupUUID
}

func versionKey(groupUUID string) string {
	return groupKeyPrefix + groupUUID + ":ver"
}

// Load 读取缓存到 dst，同时返回当前版本号，未命中时 hit 为 false
// 未命中时调用方读库后用这个版本号调用 Store
func (c *GroupCache) Load(ctx context.Context, groupUUID string, dst any) (int64, bool, error) {
	vals, err := c.client.MGet(ctx, groupKey(groupUUID), versionKey(groupUUID)).Result()
	if err != nil {
		return 0, false, fmt.Errorf("cache get %s: %w", groupUUID, err)
	}

	var version int64
	if s, ok := vals[1].(string); ok {
		version, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("cache version %s: %w", groupUUID, err)
		}
	}

	data, ok := vals[0].(string)
	if !ok {
		return version, false, nil
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		// 损坏的条目直接删除，下次回源
		_ = c.client.Del(ctx, groupKey(groupUUID)).Err()
		return version, false, fmt.Errorf("cache decode %s: %w", groupUUID, err)
	}
	return version, true, nil
}

// Store 版本号仍为 version 时写入，期间发生过 Invalidate 则放弃写入
func (c *GroupCache) Store(ctx context.Context, groupUUID string, version int64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", groupUUID, err)
	}
	keys := []string{groupKey(groupUUID), versionKey(groupUUID)}
	if err := storeScript.Run(ctx, c.client, keys, strconv.FormatInt(version, 10), string(data), c.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", groupUUID, err)
	}
	return nil
}

func (c *GroupCache) Invalidate(ctx context.Context, groupUUID string) error {
	keys := []string{groupKey(groupUUID), versionKey(groupUUID)}
	if err := invalidateScript.Run(ctx, c.client, keys, versionTTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("cache del %s: %w", groupUUID, err)
	}
	return nil
}

// Noop 未启用 Redis 时使用，永远未命中
type Noop struct{}

func (Noop) Load(context.Context, string, any) (int64, bool, error) { return 0, false, nil }
func (Noop) Store(context.Context, string, int64, any) error         { return nil }
func (Noop) Invalidate(context.Context, string) error                { return nil }
