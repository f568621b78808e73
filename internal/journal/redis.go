// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisKeyPrefix = "fingate:journal:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr      string // host:port
	Password  string
	DB        int
	Retention time.Duration
}

// RedisStore shares the journal between gateway replicas:
//   - run:<id>        string, JSON without tools
//   - run:<id>:tools  hash, tool id -> JSON
//   - runs            sorted set, score = start ms, member = run id
//   - recent          sorted set, score = start ms, member = <run>\x00<tool>
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
	logger    zerolog.Logger
}

// OpenRedisStore connects and pings the server.
func OpenRedisStore(cfg RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("journal: redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to Redis journal")

	return &RedisStore{client: client, retention: cfg.Retention, logger: logger}, nil
}

func redisRunKey(id string) string   { return redisKeyPrefix + "run:" + id }
func redisToolsKey(id string) string { return redisKeyPrefix + "run:" + id + ":tools" }

const (
	redisRecentKey = redisKeyPrefix + "recent"
	redisRunsKey   = redisKeyPrefix + "runs"
)

func recentMember(runID, toolID string) string { return runID + "\x00" + toolID }

func (s *RedisStore) StartRun(ctx context.Context, run Run) error {
	run.Tools = nil
	buf, err := json.Marshal(run)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, redisRunKey(run.ID), buf, s.retention)
		p.ZAdd(ctx, redisRunsKey, redis.Z{Score: float64(run.StartedAt.UnixMilli()), Member: run.ID})
		return nil
	})
	return err
}

func (s *RedisStore) FinishRun(ctx context.Context, res RunResult) error {
	key := redisRunKey(res.ID)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var run Run
		if err := json.Unmarshal(raw, &run); err != nil {
			return err
		}
		finished := res.FinishedAt
		run.Status = res.Status
		run.Error = res.Error
		run.FinishedAt = &finished
		run.ToolCalls = res.ToolCalls
		run.Malformed = res.Malformed
		buf, err := json.Marshal(run)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, buf, redis.KeepTTL)
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) RecordTool(ctx context.Context, rec ToolRecord) error {
	exists, err := s.client.Exists(ctx, redisRunKey(rec.RunID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, redisToolsKey(rec.RunID), rec.ToolID, buf)
		if s.retention > 0 {
			p.Expire(ctx, redisToolsKey(rec.RunID), s.retention)
		}
		p.ZAdd(ctx, redisRecentKey, redis.Z{
			Score:  float64(rec.StartedAt.UnixMilli()),
			Member: recentMember(rec.RunID, rec.ToolID),
		})
		return nil
	})
	return err
}

func (s *RedisStore) RecentTools(ctx context.Context, limit int) ([]ToolRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	members, err := s.client.ZRevRange(ctx, redisRecentKey, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.StringCmd, len(members))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, m := range members {
			runID, toolID, _ := strings.Cut(m, "\x00")
			cmds[i] = p.HGet(ctx, redisToolsKey(runID), toolID)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([]ToolRecord, 0, len(members))
	var stale []any
	for i, cmd := range cmds {
		raw, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			stale = append(stale, members[i])
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec ToolRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.Warn().Err(err).Msg("skipping undecodable journal entry")
			continue
		}
		out = append(out, rec)
	}
	// Index members outlive their expired hashes.
	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, redisRecentKey, stale...).Err()
	}
	return out, nil
}

func (s *RedisStore) Run(ctx context.Context, id string) (*Run, error) {
	raw, err := s.client.Get(ctx, redisRunKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var run Run
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, err
	}

	fields, err := s.client.HGetAll(ctx, redisToolsKey(id)).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range fields {
		var rec ToolRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			continue
		}
		run.Tools = append(run.Tools, rec)
	}
	sort.SliceStable(run.Tools, func(i, j int) bool {
		if run.Tools[i].StartedAt.Equal(run.Tools[j].StartedAt) {
			return run.Tools[i].ToolID < run.Tools[j].ToolID
		}
		return run.Tools[i].StartedAt.Before(run.Tools[j].StartedAt)
	})
	return &run, nil
}

// Prune deletes runs started before cutoff and trims both indexes.
func (s *RedisStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	max := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	ids, err := s.client.ZRangeByScore(ctx, redisRunsKey, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		keys := make([]string, 0, 2*len(ids))
		members := make([]any, 0, len(ids))
		for _, id := range ids {
			keys = append(keys, redisRunKey(id), redisToolsKey(id))
			members = append(members, id)
		}
		_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, keys...)
			p.ZRem(ctx, redisRunsKey, members...)
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	if err := s.client.ZRemRangeByScore(ctx, redisRecentKey, "-inf", max).Err(); err != nil {
		return len(ids), err
	}
	return len(ids), nil
}

// Ping reports whether the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error { return s.client.Close() }
