package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps one hash per endpoint plus a set indexing the names.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(opts RedisOptions) *RedisStore {
	if opts.Prefix == "" {
		opts.Prefix = "heartbeat"
	}

	return &RedisStore{
		rdb: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		prefix: opts.Prefix,
	}
}

// Ping checks that the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":endpoints"
}

func (s *RedisStore) recordKey(name string) string {
	return s.prefix + ":endpoint:" + name
}

func (s *RedisStore) Load(ctx context.Context) ([]Record, error) {
	names, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	sort.Strings(names)

	records := make([]Record, 0, len(names))
	for _, name := range names {
		h, err := s.rdb.HGetAll(ctx, s.recordKey(name)).Result()
		if err != nil {
			return nil, fmt.Errorf("load endpoint %s: %w", name, err)
		}
		if len(h) == 0 {
			continue
		}
		records = append(records, decodeHash(name, h))
	}

	return records, nil
}

func (s *RedisStore) Save(ctx context.Context, record Record) error {
	key := s.recordKey(record.Name)

	fields := map[string]any{
		fieldSeconds: record.Seconds,
		fieldMethod:  record.Method,
		fieldURL:     record.URL,
	}
	if record.HasPolicy() {
		fields[fieldSecondsPerRetry] = *record.SecondsPerRetry
		fields[fieldNumRetries] = *record.NumRetries
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		pipe.SAdd(ctx, s.indexKey(), record.Name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save endpoint %s: %w", record.Name, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(name))
		pipe.SRem(ctx, s.indexKey(), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete endpoint %s: %w", name, err)
	}
	return nil
}

// decodeHash leaves unparsable numbers at zero so that validation on load
// rejects the entry.
func decodeHash(name string, h map[string]string) Record {
	record := Record{
		Name:   name,
		Method: h[fieldMethod],
		URL:    h[fieldURL],
	}
	record.Seconds, _ = strconv.Atoi(h[fieldSeconds])

	perRetry, errPer := strconv.Atoi(h[fieldSecondsPerRetry])
	retries, errNum := strconv.Atoi(h[fieldNumRetries])
	if errPer == nil && errNum == nil {
		record = record.WithPolicy(perRetry, retries)
	}

	return record
}
