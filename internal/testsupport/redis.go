package testsupport

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/rafaeljc/mimir/internal/cache"
	"github.com/rafaeljc/mimir/internal/config"
)

// RedisContainer is a running Redis container and a connected client.
type RedisContainer struct {
	Container testcontainers.Container
	Client    *goredis.Client
	Config    *config.RedisConfig
}

// Terminate closes the client and removes the container.
func (c *RedisContainer) Terminate(ctx context.Context) error {
	_ = c.Client.Close()
	return c.Container.Terminate(ctx)
}

// StartRedisContainer starts redis:7-alpine and connects through
// cache.NewRedisClient.
func StartRedisContainer(ctx context.Context) (*RedisContainer, error) {
	redisContainer, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	endpoint, err := redisContainer.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		_ = redisContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get redis endpoint: %w", err)
	}
	host, port, _ := strings.Cut(endpoint, ":")

	cfg := &config.RedisConfig{
		Host:                host,
		Port:                port,
		PoolSize:            10,
		DialTimeout:         5 * time.Second,
		ReadTimeout:         3 * time.Second,
		WriteTimeout:        3 * time.Second,
		PoolTimeout:         4 * time.Second,
		PingMaxRetries:      5,
		PingBackoff:         time.Second,
		InvalidationChannel: "mimir:test:invalidate",
	}
	client, err := cache.NewRedisClient(ctx, cfg)
	if err != nil {
		_ = redisContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return &RedisContainer{Container: redisContainer, Client: client, Config: cfg}, nil
}
