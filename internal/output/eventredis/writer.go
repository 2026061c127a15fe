package eventredis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"airbrain/internal/logger"
	"airbrain/pkg/models"
)

// Config configures the Redis event writer.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
	MaxLen   int64
	Timeout  time.Duration
}

// Writer pushes events onto a Redis list, optionally capped so the
// list acts as a ring of recent activity.
type Writer struct {
	client  *redis.Client
	key     string
	maxLen  int64
	timeout time.Duration
}

// NewWriter creates a Redis event writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	logger.Infof("Redis event writer initialized: %s key=%s", cfg.Addr, cfg.Key)
	return &Writer{
		client:  client,
		key:     cfg.Key,
		maxLen:  cfg.MaxLen,
		timeout: cfg.Timeout,
	}, nil
}

// WriteEvents pushes a batch of events.
func (w *Writer) WriteEvents(events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	values := make([]interface{}, 0, len(events))
	for _, ev := range events {
		body, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		values = append(values, body)
	}

	if err := w.client.RPush(ctx, w.key, values...).Err(); err != nil {
		return fmt.Errorf("redis push failed: %w", err)
	}
	if w.maxLen > 0 {
		if err := w.client.LTrim(ctx, w.key, -w.maxLen, -1).Err(); err != nil {
			return fmt.Errorf("redis trim failed: %w", err)
		}
	}
	return nil
}

// Close closes the Redis connection.
func (w *Writer) Close() error {
	return w.client.Close()
}
