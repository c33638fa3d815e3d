package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-evaluator-pipeline/internal/queue"
)

func (c *Config) RetryPolicy() queue.RetryPolicy {
	return queue.RetryPolicy{
		MaxDeliveries: c.Queue.MaxDeliveries,
		BaseDelay:     c.Queue.BackoffBase,
	}
}

// InitQueue connects the configured queue driver.
func InitQueue(ctx context.Context, cfg *Config, log logrus.FieldLogger) (queue.Broker, error) {
	policy := cfg.RetryPolicy()

	switch cfg.Queue.Driver {
	case "memory", "":
		log.Info("✅ Using in-memory queue")
		return queue.NewMemoryQueue(cfg.Queue.Buffer, cfg.Worker.Concurrency, policy, log), nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		log.WithField("addr", cfg.Queue.RedisAddr).Info("✅ Redis queue connected")
		return queue.NewRedisQueue(client, cfg.Queue.Name, consumerID(), cfg.Worker.Concurrency, policy, log), nil

	case "rabbitmq":
		return queue.NewRabbitQueue(cfg.Queue.RabbitMQURL, cfg.Queue.Name, cfg.Worker.Concurrency, policy, log)

	default:
		return nil, fmt.Errorf("unsupported queue driver %q", cfg.Queue.Driver)
	}
}

func consumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "worker"
	}
	return host
}
