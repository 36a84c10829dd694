package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dom/pack-minter/internal/domain"
	"github.com/dom/pack-minter/internal/repository"
	"github.com/redis/go-redis/v9"
)

// advanceScript sets the key to ARGV[1] unless it already holds a larger
// integer. A non-numeric value is overwritten.
var advanceScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]))
local new = tonumber(ARGV[1])
if cur == nil or new > cur then
	redis.call('SET', KEYS[1], ARGV[1])
	return new
end
return cur
`)

type CounterStore struct {
	client    redis.UniversalClient
	key       string
	onCorrupt repository.CorruptionHandler
}

func NewCounterStore(client redis.UniversalClient, name string, onCorrupt repository.CorruptionHandler) *CounterStore {
	return &CounterStore{
		client:    client,
		key:       "token_counter:" + name,
		onCorrupt: onCorrupt,
	}
}

func (s *CounterStore) Peek(ctx context.Context) (uint64, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	current, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		if s.onCorrupt != nil {
			s.onCorrupt(ctx, fmt.Errorf("%w: key %s holds %q", domain.ErrCounterCorruption, s.key, raw))
		}
		return 0, nil
	}
	return current, nil
}

func (s *CounterStore) Advance(ctx context.Context, value uint64) error {
	return advanceScript.Run(ctx, s.client, []string{s.key}, strconv.FormatUint(value, 10)).Err()
}
