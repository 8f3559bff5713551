package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ocode/internal/config"
)

const keyPrefix = "ocode:answer:"

// CachedAnswer is a stored model response keyed by the prompt that
// produced it.
type CachedAnswer struct {
	Answer      string    `json:"answer"`
	Model       string    `json:"model"`
	ContextSize int       `json:"context_size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Redis caches model answers so repeated identical queries skip the
// inference server entirely.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the configured Redis instance. Callers treat a
// failure here as "no cache", never as a fatal error.
func NewRedis(cfg config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		MaxRetries:   3,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{
		client: client,
		ttl:    time.Duration(cfg.TTLHours) * time.Hour,
	}, nil
}

// CacheAnswer stores an answer under the hash of model and prompt.
func (r *Redis) CacheAnswer(ctx context.Context, model, prompt string, answer *CachedAnswer) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	return r.client.Set(ctx, answerKey(model, prompt), data, r.ttl).Err()
}

// GetAnswer retrieves a cached answer, or nil when none is stored.
func (r *Redis) GetAnswer(ctx context.Context, model, prompt string) (*CachedAnswer, error) {
	data, err := r.client.Get(ctx, answerKey(model, prompt)).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get cached answer: %w", err)
	}

	var answer CachedAnswer
	if err := json.Unmarshal(data, &answer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached answer: %w", err)
	}
	return &answer, nil
}

// Invalidate removes all cached answers.
func (r *Redis) Invalidate(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

func answerKey(model, prompt string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}
