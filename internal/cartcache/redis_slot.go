package cartcache

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

// RedisSlot keeps the slot in redis, for deployments where the cart
// should survive the local host (kiosk setups sharing one session).
type RedisSlot struct {
	Client *redis.Client
	Prefix string
}

func NewRedisSlot(addr string, db int) *RedisSlot {
	return &RedisSlot{
		Client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		Prefix: "giftregistry:",
	}
}

func (s *RedisSlot) Put(ctx context.Context, key string, value []byte) error {
	return s.Client.Set(ctx, s.Prefix+key, value, 0).Err()
}

func (s *RedisSlot) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.Client.Get(ctx, s.Prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *RedisSlot) Delete(ctx context.Context, key string) error {
	return s.Client.Del(ctx, s.Prefix+key).Err()
}
