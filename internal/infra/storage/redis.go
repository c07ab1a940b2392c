package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "voicebot"
	defaultTTL    = 7 * 24 * time.Hour
	defaultKeep   = 500
)

// RedisSink stores each transcript under its own key and keeps a capped list
// of the most recent ids.
type RedisSink struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	keep   int64
}

// RedisOption configures a RedisSink.
type RedisOption func(*RedisSink)

// WithTTL sets how long a transcript is kept. Zero keeps it forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisSink) { s.ttl = ttl }
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisSink) { s.prefix = prefix }
}

// WithKeep caps the recent list.
func WithKeep(n int) RedisOption {
	return func(s *RedisSink) {
		if n > 0 {
			s.keep = int64(n)
		}
	}
}

func NewRedisSink(client *redis.Client, opts ...RedisOption) *RedisSink {
	s := &RedisSink{client: client, prefix: defaultPrefix, ttl: defaultTTL, keep: defaultKeep}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenRedis parses a redis:// URL and returns a connected client.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (s *RedisSink) key(id string) string { return s.prefix + ":transcript:" + id }
func (s *RedisSink) listKey() string      { return s.prefix + ":transcripts" }

// Save writes the record and pushes its id onto the recent list in one
// transaction.
func (s *RedisSink) Save(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("storage: record without id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(rec.ID), data, s.ttl)
	pipe.LPush(ctx, s.listKey(), rec.ID)
	pipe.LTrim(ctx, s.listKey(), 0, s.keep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// Get loads one transcript.
func (s *RedisSink) Get(ctx context.Context, id string) (Record, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("redis get failed: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal transcript: %w", err)
	}
	return rec, nil
}

// Recent returns up to n transcripts, newest first. Ids whose record has
// expired are skipped.
func (s *RedisSink) Recent(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	ids, err := s.client.LRange(ctx, s.listKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}
	out := make([]Record, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisSink) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisSink) Close() error { return s.client.Close() }
