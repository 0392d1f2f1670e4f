// Package queue carries bulk validation tasks over a Redis list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mailaudit/internal/apperr"
)

const DefaultKey = "mailaudit:tasks"

// Task is one email of a bulk job.
type Task struct {
	JobID string `json:"job_id"`
	Email string `json:"email"`
}

type Client struct {
	rdb *redis.Client
	key string
}

// Open connects to Redis and pings it.
func Open(ctx context.Context, addr string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewClient(rdb, DefaultKey), nil
}

func NewClient(rdb *redis.Client, key string) *Client {
	if key == "" {
		key = DefaultKey
	}
	return &Client{rdb: rdb, key: key}
}

func (c *Client) Close() error { return c.rdb.Close() }

func (c *Client) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// Enqueue pushes tasks in one round trip.
func (c *Client) Enqueue(ctx context.Context, tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}
	values := make([]any, 0, len(tasks))
	for _, t := range tasks {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode task: %w", err)
		}
		values = append(values, b)
	}
	if err := c.rdb.RPush(ctx, c.key, values...).Err(); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// Pop blocks up to timeout for the next task. It returns (nil, nil) when the
// wait expires with nothing queued. A zero timeout blocks until ctx ends.
func (c *Client) Pop(ctx context.Context, timeout time.Duration) (*Task, error) {
	res, err := c.rdb.BLPop(ctx, timeout, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var t Task
	if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
		return nil, apperr.Wrap(apperr.ParseError, fmt.Sprintf("malformed task %q", res[1]), err)
	}
	return &t, nil
}

// Len reports how many tasks are waiting.
func (c *Client) Len(ctx context.Context) (int64, error) {
	return c.rdb.LLen(ctx, c.key).Result()
}
