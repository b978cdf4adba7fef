package flags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	indexKey    = "ref:flags:index"
	valuePrefix = "ref:flags:"

	defaultReadTTL = 2 * time.Second
)

var keyRe = regexp.MustCompile(`^[a-zA-Z0-9._|-]{1,128}$`)

// Store keeps flags in Redis. IsEnabled reads go through a short-lived local
// cache so the quote path does not hit Redis on every request.
type Store struct {
	client redis.Cmdable
	logger *logrus.Logger

	mu      sync.Mutex
	cache   map[string]cachedFlag
	readTTL time.Duration
	now     func() time.Time
}

type cachedFlag struct {
	value   bool
	found   bool
	expires time.Time
}

func NewStore(client redis.Cmdable, logger *logrus.Logger) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{
		client:  client,
		logger:  logger,
		cache:   make(map[string]cachedFlag),
		readTTL: defaultReadTTL,
		now:     time.Now,
	}, nil
}

// IsEnabled returns the flag value, or def when it is unset or unreadable
func (s *Store) IsEnabled(ctx context.Context, key string, def bool) bool {
	s.mu.Lock()
	c, ok := s.cache[key]
	s.mu.Unlock()
	if ok && s.now().Before(c.expires) {
		if !c.found {
			return def
		}
		return c.value
	}

	f, err := s.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		s.remember(key, cachedFlag{found: false})
		return def
	case err != nil:
		s.logger.WithError(err).WithField("flag", key).Warn("flag read failed, using default")
		return def
	}
	s.remember(key, cachedFlag{value: f.Value, found: true})
	return f.Value
}

func (s *Store) remember(key string, c cachedFlag) {
	c.expires = s.now().Add(s.readTTL)
	s.mu.Lock()
	s.cache[key] = c
	s.mu.Unlock()
}

func (s *Store) forget(key string) {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
}

func ValidateKey(key string) error {
	if !keyRe.MatchString(key) {
		return fmt.Errorf("invalid flag key")
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, key string, value bool) (*Flag, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	flag := &Flag{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	b, err := json.Marshal(flag)
	if err != nil {
		return nil, fmt.Errorf("marshal flag: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, flagKey(key), b, 0)
	pipe.SAdd(ctx, indexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("upsert flag: %w", err)
	}
	s.forget(key)

	return flag, nil
}

func (s *Store) Get(ctx context.Context, key string) (*Flag, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	val, err := s.client.Get(ctx, flagKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flag: %w", err)
	}

	var f Flag
	if err := json.Unmarshal([]byte(val), &f); err != nil {
		return nil, fmt.Errorf("unmarshal flag: %w", err)
	}
	return &f, nil
}

func (s *Store) List(ctx context.Context) ([]*Flag, error) {
	keys, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list flags index: %w", err)
	}
	if len(keys) == 0 {
		return []*Flag{}, nil
	}

	redisKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		if err := ValidateKey(k); err != nil {
			continue
		}
		redisKeys = append(redisKeys, flagKey(k))
	}
	if len(redisKeys) == 0 {
		return []*Flag{}, nil
	}

	vals, err := s.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget flags: %w", err)
	}

	out := make([]*Flag, 0, len(vals))
	for _, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		var f Flag
		if err := json.Unmarshal([]byte(s), &f); err != nil {
			continue
		}
		out = append(out, &f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	return out, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, flagKey(key))
	pipe.SRem(ctx, indexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete flag: %w", err)
	}
	s.forget(key)

	return nil
}

func flagKey(key string) string {
	return valuePrefix + key
}
