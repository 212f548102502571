package permissions

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheVersionKey = "authz:version"
	bumpChannel     = "authz.bump"
)

// advanceVersionScript moves the version forward only. Bump publishes from
// concurrently mutating instances can arrive out of order; accepting a lower
// version would resurrect pre-mutation cache entries.
var advanceVersionScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local new = tonumber(ARGV[1])
if new > cur then
	redis.call('SET', KEYS[1], new)
	return new
end
return cur`)

// Decision is the memoized outcome of one permission check.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	RoleUsed string `json:"roleUsed,omitempty"`
}

// Cache memoizes resolver results in Redis. Entries expire on a fixed TTL
// and every grant/revoke/assignment mutation bumps a global version, which
// orphans all previously written keys at once. Computing the exact
// invalidation set would need a reverse role-to-employee lookup; the global
// bump is the simplest correct policy and the staleness window stays bounded
// by the TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper. A nil client degrades to
// pass-through, which tests and single-box deployments use.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

func (c *Cache) buildKey(ctx context.Context, parts ...string) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", strings.Join(parts, ":"), ver), nil
}

// FetchDecision loads a cached decision or populates it using the loader.
// Concurrent misses for the same (employee, key) pair are coalesced; this is
// an optimisation only, racing populations are safe because the resolver is
// a pure function of persisted state. The boolean reports a cache hit.
func (c *Cache) FetchDecision(ctx context.Context, employeeID int64, permissionKey string, loader func(context.Context) (Decision, error)) (Decision, bool, error) {
	if c == nil || c.client == nil {
		d, err := loader(ctx)
		return d, false, err
	}
	key, err := c.buildKey(ctx, "authz", "decision", strconv.FormatInt(employeeID, 10), permissionKey)
	if err != nil {
		return Decision{}, false, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var d Decision
		if err := json.Unmarshal(payload, &d); err == nil {
			return d, true, nil
		}
		// Unreadable entry: fall through and recompute.
	} else if err != redis.Nil {
		return Decision{}, false, err
	}

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		d, err := loader(ctx)
		if err != nil {
			return Decision{}, err
		}
		raw, err := json.Marshal(d)
		if err != nil {
			return Decision{}, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return Decision{}, err
		}
		return d, nil
	})
	if err != nil {
		return Decision{}, false, err
	}
	return value.(Decision), false, nil
}

// FetchPermissions loads the cached per-employee permission set or populates
// it using the loader.
func (c *Cache) FetchPermissions(ctx context.Context, employeeID int64, loader func(context.Context) ([]PermissionDescriptor, error)) ([]PermissionDescriptor, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.buildKey(ctx, "authz", "perms", strconv.FormatInt(employeeID, 10))
	if err != nil {
		return nil, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var perms []PermissionDescriptor
		if err := json.Unmarshal(payload, &perms); err == nil {
			return perms, nil
		}
	} else if err != redis.Nil {
		return nil, err
	}
	perms, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(perms)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// Bump invalidates every cached decision by incrementing the global version
// and publishing the new value so other instances converge.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// advanceVersion applies a published version, moving forward only.
func (c *Cache) advanceVersion(ctx context.Context, ver int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return advanceVersionScript.Run(ctx, c.client, []string{cacheVersionKey}, ver).Err()
}

// ListenForInvalidation subscribes to version bump notifications published
// by other instances.
func (c *Cache) ListenForInvalidation(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload != "" {
					if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
						_ = c.advanceVersion(ctx, ver)
						continue
					}
				}
				_ = c.client.Incr(ctx, cacheVersionKey).Err()
			}
		}
	}()
	return nil
}
