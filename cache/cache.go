package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"todo-api/api"
)

// Version is the invalidation generation of one todo id at the moment it was
// read. A Set carrying an older version than the cache holds is dropped, so a
// read that raced a PUT or DELETE cannot put its copy back.
type Version int64

// NoVersion is returned when the generation could not be read; Set ignores it.
const NoVersion Version = -1

// TodoCache is a best-effort cache in front of single-todo reads. Failures are
// logged and reported as misses; they never fail the request.
type TodoCache interface {
	// Get returns the cached todo, or on a miss the version to hand to Set
	// once the todo has been loaded.
	Get(ctx context.Context, id int) (api.Todo, Version, bool)
	Set(ctx context.Context, todo api.Todo, v Version)
	// Invalidate drops the entry and bumps the id's version.
	Invalidate(ctx context.Context, id int)
	Close() error
}

// Nop is used when no cache is configured.
type Nop struct{}

func (Nop) Get(context.Context, int) (api.Todo, Version, bool) { return api.Todo{}, NoVersion, false }
func (Nop) Set(context.Context, api.Todo, Version) {}
func (Nop) Invalidate(context.Context, int) {}
func (Nop) Close() error { return nil }

// versionTTL keeps generation counters well past any in-flight read.
const versionTTL = 24 * time.Hour

// setIfVersion writes KEYS[1] only while KEYS[2] still holds ARGV[1].
var setIfVersion = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

type Redis struct {
	rdb *redis.Client
	ttl time.Duration
	log logrus.FieldLogger
}

// NewRedis connects to addr and pings it once so a bad address fails at
// startup rather than on the first request.
func NewRedis(ctx context.Context, addr string, ttl time.Duration, log logrus.FieldLogger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &Redis{rdb: rdb, ttl: ttl, log: log}, nil
}

func key(id int) string {
	return fmt.Sprintf("todo:%d", id)
}

func versionKey(id int) string {
	return fmt.Sprintf("todo:%d:version", id)
}

func (c *Redis) Get(ctx context.Context, id int) (api.Todo, Version, bool) {
	var t api.Todo
	vals, err := c.rdb.MGet(ctx, key(id), versionKey(id)).Result()
	if err != nil {
		c.log.WithError(err).WithField("key", key(id)).Warn("cache read failed")
		return t, NoVersion, false
	}

	v := Version(0)
	if raw, ok := vals[1].(string); ok {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.log.WithError(err).WithField("key", versionKey(id)).Warn("cache version is not a number")
			return t, NoVersion, false
		}
		v = Version(n)
	}

	raw, ok := vals[0].(string)
	if !ok {
		return t, v, false
	}
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		c.log.WithError(err).WithField("key", key(id)).Warn("cache entry is not a todo")
		return t, v, false
	}
	return t, v, true
}

func (c *Redis) Set(ctx context.Context, todo api.Todo, v Version) {
	if v == NoVersion {
		return
	}
	data, err := json.Marshal(todo)
	if err != nil {
		c.log.WithError(err).Warn("marshal todo for cache")
		return
	}
	keys := []string{key(todo.ID), versionKey(todo.ID)}
	err = setIfVersion.Run(ctx, c.rdb, keys, int64(v), data, c.ttl.Milliseconds()).Err()
	if err != nil {
		c.log.WithError(err).WithField("key", key(todo.ID)).Warn("cache write failed")
	}
}

func (c *Redis) Invalidate(ctx context.Context, id int) {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key(id))
		pipe.Incr(ctx, versionKey(id))
		pipe.Expire(ctx, versionKey(id), versionTTL)
		return nil
	})
	if err != nil {
		c.log.WithError(err).WithField("key", key(id)).Warn("cache invalidation failed")
	}
}

func (c *Redis) Close() error {
	return c.rdb.Close()
}
