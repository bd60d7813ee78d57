package redis

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "balha"

type Config struct {
	Addr     string
	Password string
	DB       int
}

type Backend struct {
	client   *goredis.Client
	deviceID string
}

// NewClient connects and pings the server.
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis at %s", cfg.Addr)
	}
	return rdb, nil
}

func New(client *goredis.Client, deviceID string) *Backend {
	return &Backend{client: client, deviceID: deviceID}
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := b.client.Get(ctx, b.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	return b.client.Set(ctx, b.key(key), value, 0).Err()
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.key(key)).Err()
}

func (b *Backend) key(key string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, b.deviceID, key)
}
