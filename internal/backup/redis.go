package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"GapSentinel/internal/errs"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps snapshots in Redis: one key for metadata, one for the payload and a
// sorted set indexing names by creation time. Put and Delete run inside MULTI/EXEC.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, addr, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errs.Wrap(errs.IOFailure, err, "connect to redis %s", addr)
	}
	return NewRedisStoreWithClient(client, prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gapsentinel"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) metaKey(name string) string {
	return fmt.Sprintf("%s:backup:meta:%s", s.prefix, name)
}
func (s *RedisStore) dataKey(name string) string {
	return fmt.Sprintf("%s:backup:data:%s", s.prefix, name)
}
func (s *RedisStore) indexKey() string { return s.prefix + ":backup:index" }

func (s *RedisStore) Put(ctx context.Context, snap Snapshot) error {
	if err := checkName(snap.Meta.Name); err != nil {
		return err
	}
	meta, err := json.Marshal(snap.Meta)
	if err != nil {
		return errs.Wrap(errs.IOFailure, err, "encode metadata")
	}
	name := snap.Meta.Name
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.dataKey(name), snap.Payload, 0)
		pipe.Set(ctx, s.metaKey(name), meta, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(snap.Meta.CreatedAt.Unix()),
			Member: name,
		})
		return nil
	})
	if err != nil {
		return errs.Wrap(errs.IOFailure, err, "store backup %s", name)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, name string) (Snapshot, error) {
	raw, err := s.client.Get(ctx, s.metaKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, errs.New(errs.NotFound, "backup %s not found", name)
	}
	if err != nil {
		return Snapshot{}, errs.Wrap(errs.IOFailure, err, "get metadata %s", name)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Snapshot{}, errs.Wrap(errs.Corrupt, err, "parse metadata %s", name)
	}
	payload, err := s.client.Get(ctx, s.dataKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{Meta: meta}, errs.New(errs.Corrupt, "backup %s has no payload", name)
	}
	if err != nil {
		return Snapshot{}, errs.Wrap(errs.IOFailure, err, "get payload %s", name)
	}
	return Snapshot{Meta: meta, Payload: payload}, nil
}

func (s *RedisStore) Exists(ctx context.Context, name string) (bool, error) {
	n, err := s.client.Exists(ctx, s.metaKey(name)).Result()
	if err != nil {
		return false, errs.Wrap(errs.IOFailure, err, "check backup %s", name)
	}
	return n > 0, nil
}

func (s *RedisStore) List(ctx context.Context) ([]Metadata, error) {
	names, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "read backup index")
	}
	if len(names) == 0 {
		return nil, nil
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = s.metaKey(n)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "read backup metadata")
	}
	out := make([]Metadata, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// index entry without metadata
			continue
		}
		var meta Metadata
		if err := json.Unmarshal([]byte(str), &meta); err != nil {
			meta = Metadata{Name: names[i]}
		}
		out = append(out, meta)
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	ok, err := s.Exists(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.NotFound, "backup %s not found", name)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.metaKey(name), s.dataKey(name))
		pipe.ZRem(ctx, s.indexKey(), name)
		return nil
	})
	if err != nil {
		return errs.Wrap(errs.IOFailure, err, "delete backup %s", name)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
