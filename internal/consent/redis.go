package consent

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tabwarden"

// admitScript checks the grant and claims the cooldown slot in one
// round trip so two racing triggers admit at most one.
var admitScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 'consent'
end
if redis.call('SET', KEYS[2], '1', 'NX', 'PX', ARGV[1]) then
  return 'ok'
end
return 'cooldown'
`)

// RedisStore shares consent state across engine instances, for
// installations where several browser profiles answer to one policy.
type RedisStore struct {
	rdb      *redis.Client
	cooldown time.Duration
	ttl      time.Duration
}

// NewRedisStore wraps an existing client. Non-positive windows fall
// back to the defaults.
func NewRedisStore(rdb *redis.Client, cooldown, ttl time.Duration) *RedisStore {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, cooldown: cooldown, ttl: ttl}
}

func grantKey(k Key) string {
	return fmt.Sprintf("%s:grant:%s:%s", keyPrefix, k.TabID, k.Host)
}

func promptKey(k Key) string {
	return fmt.Sprintf("%s:prompt:%s:%s", keyPrefix, k.TabID, k.Host)
}

// Admit implements Store.
func (s *RedisStore) Admit(ctx context.Context, k Key) (Verdict, error) {
	res, err := admitScript.Run(ctx, s.rdb,
		[]string{grantKey(k), promptKey(k)},
		s.cooldown.Milliseconds(),
	).Text()
	if err != nil {
		return Verdict{}, fmt.Errorf("consent admit: %w", err)
	}
	switch res {
	case "ok":
		return Verdict{Admitted: true}, nil
	case "consent":
		return Verdict{Cause: CauseConsent}, nil
	default:
		return Verdict{Cause: CauseCooldown}, nil
	}
}

// Grant implements Store.
func (s *RedisStore) Grant(ctx context.Context, k Key) error {
	if err := s.rdb.Set(ctx, grantKey(k), "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("consent grant: %w", err)
	}
	return nil
}

// Allowed implements Store.
func (s *RedisStore) Allowed(ctx context.Context, k Key) (bool, error) {
	n, err := s.rdb.Exists(ctx, grantKey(k)).Result()
	if err != nil {
		return false, fmt.Errorf("consent lookup: %w", err)
	}
	return n > 0, nil
}

// ReleaseTab implements Store.
func (s *RedisStore) ReleaseTab(ctx context.Context, tabID string) error {
	for _, pattern := range []string{
		fmt.Sprintf("%s:grant:%s:*", keyPrefix, tabID),
		fmt.Sprintf("%s:prompt:%s:*", keyPrefix, tabID),
	} {
		if err := s.deleteMatching(ctx, pattern); err != nil {
			return err
		}
	}
	return nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context) error {
	return s.deleteMatching(ctx, keyPrefix+":*")
}

func (s *RedisStore) deleteMatching(ctx context.Context, pattern string) error {
	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("consent delete %q: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("consent scan: %w", err)
	}
	return nil
}
