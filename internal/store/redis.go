// Package store provides storage backends for MindCare.
//
// This file implements a Redis-backed store. Session and transcript keys
// expire after the configured TTL, so idle sessions age out on their own.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/BTreeMap/MindCare/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisOpTimeout bounds each Redis round trip.
const DefaultRedisOpTimeout = 5 * time.Second

const (
	redisSessionIndexKey = "sessions"
	redisReceiptsKey     = "receipts"
	redisResponsesKey    = "responses"
)

func redisSessionKey(id string) string        { return "session:" + id }
func redisTranscriptKey(id string) string     { return "transcript:" + id }
func redisProfileKey(userID string) string    { return "profile:" + userID }
func redisUserLatestKey(userID string) string { return "user:" + userID + ":latest" }

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis using the configured URL.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewRedisStore invoked", "URL_set", cfg.DSN != "")
	if cfg.DSN == "" {
		slog.Error("RedisStore URL not set")
		return nil, fmt.Errorf("redis URL not set")
	}
	redisOpts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		slog.Error("RedisStore URL parse failed", "error", err)
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	client := redis.NewClient(redisOpts)
	s := &RedisStore{client: client, ttl: ttl}

	ctx, cancel := s.ctx()
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("Redis ping failed", "error", err, "addr", redisOpts.Addr)
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	slog.Debug("Redis connection established", "addr", redisOpts.Addr, "ttl", ttl)
	return s, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), DefaultRedisOpTimeout)
}

// SaveSession stores the record and refreshes its expiry.
func (s *RedisStore) SaveSession(rec models.SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	ctx, cancel := s.ctx()
	defer cancel()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisSessionKey(rec.ID), data, s.ttl)
		pipe.SAdd(ctx, redisSessionIndexKey, rec.ID)
		pipe.Expire(ctx, redisTranscriptKey(rec.ID), s.ttl)
		if rec.UserID != "" {
			pipe.Set(ctx, redisUserLatestKey(rec.UserID), rec.ID, s.ttl)
		}
		return nil
	})
	if err != nil {
		slog.Error("RedisStore SaveSession failed", "error", err, "sessionID", rec.ID)
		return fmt.Errorf("failed to save session %s: %w", rec.ID, err)
	}
	slog.Debug("RedisStore SaveSession succeeded", "sessionID", rec.ID, "phase", rec.Session.Phase.String())
	return nil
}

// GetSession returns the session with the given ID, or nil if none exists.
func (s *RedisStore) GetSession(id string) (*models.SessionRecord, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.getSession(ctx, id)
}

func (s *RedisStore) getSession(ctx context.Context, id string) (*models.SessionRecord, error) {
	data, err := s.client.Get(ctx, redisSessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisStore GetSession failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	var rec models.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session record %s: %w", id, err)
	}
	return &rec, nil
}

// GetLatestSessionByUser follows the user's latest-session pointer.
func (s *RedisStore) GetLatestSessionByUser(userID string) (*models.SessionRecord, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	id, err := s.client.Get(ctx, redisUserLatestKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisStore GetLatestSessionByUser failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get latest session for %s: %w", userID, err)
	}
	return s.getSession(ctx, id)
}

// ListSessions returns all live sessions ordered by creation time. Index
// entries whose session key has expired are pruned.
func (s *RedisStore) ListSessions() ([]models.SessionRecord, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	ids, err := s.client.SMembers(ctx, redisSessionIndexKey).Result()
	if err != nil {
		slog.Error("RedisStore ListSessions failed", "error", err)
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]models.SessionRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.getSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			s.client.SRem(ctx, redisSessionIndexKey, id)
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteSession removes a session and its transcript.
func (s *RedisStore) DeleteSession(id string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisSessionKey(id), redisTranscriptKey(id))
		pipe.SRem(ctx, redisSessionIndexKey, id)
		return nil
	})
	if err != nil {
		slog.Error("RedisStore DeleteSession failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// DeleteSessionsUpdatedBefore removes sessions idle since before cutoff.
// Keys also expire on their own after the TTL.
func (s *RedisStore) DeleteSessionsUpdatedBefore(cutoff time.Time) (int, error) {
	recs, err := s.ListSessions()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range recs {
		if !rec.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.DeleteSession(rec.ID); err != nil {
			return n, err
		}
		n++
	}
	slog.Debug("RedisStore DeleteSessionsUpdatedBefore succeeded", "deleted", n)
	return n, nil
}

// AppendTranscript pushes entries onto the session's transcript list.
func (s *RedisStore) AppendTranscript(entries ...models.TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encode transcript entry: %w", err)
			}
			pipe.RPush(ctx, redisTranscriptKey(e.SessionID), data)
			pipe.Expire(ctx, redisTranscriptKey(e.SessionID), s.ttl)
		}
		return nil
	})
	if err != nil {
		slog.Error("RedisStore AppendTranscript failed", "error", err)
		return fmt.Errorf("failed to append transcript: %w", err)
	}
	return nil
}

// GetTranscript returns a session's transcript in insertion order.
func (s *RedisStore) GetTranscript(sessionID string) ([]models.TranscriptEntry, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	items, err := s.client.LRange(ctx, redisTranscriptKey(sessionID), 0, -1).Result()
	if err != nil {
		slog.Error("RedisStore GetTranscript failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	out := make([]models.TranscriptEntry, 0, len(items))
	for _, item := range items {
		var e models.TranscriptEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode transcript entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// SaveProfile stores a profile without expiry.
func (s *RedisStore) SaveProfile(p models.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.client.Set(ctx, redisProfileKey(p.UserID), data, 0).Err(); err != nil {
		slog.Error("RedisStore SaveProfile failed", "error", err, "userID", p.UserID)
		return fmt.Errorf("failed to save profile %s: %w", p.UserID, err)
	}
	return nil
}

// GetProfile returns a user's profile, or nil if none exists.
func (s *RedisStore) GetProfile(userID string) (*models.Profile, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	data, err := s.client.Get(ctx, redisProfileKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile %s: %w", userID, err)
	}
	var p models.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	return &p, nil
}

func (s *RedisStore) AddReceipt(r models.Receipt) error {
	return s.push(redisReceiptsKey, r)
}

func (s *RedisStore) GetReceipts() ([]models.Receipt, error) {
	var out []models.Receipt
	err := s.list(redisReceiptsKey, func(b []byte) error {
		var r models.Receipt
		if err := json.Unmarshal(b, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *RedisStore) AddResponse(r models.Response) error {
	return s.push(redisResponsesKey, r)
}

func (s *RedisStore) GetResponses() ([]models.Response, error) {
	var out []models.Response
	err := s.list(redisResponsesKey, func(b []byte) error {
		var r models.Response
		if err := json.Unmarshal(b, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *RedisStore) push(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s entry: %w", key, err)
	}
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.client.RPush(ctx, key, data).Err(); err != nil {
		slog.Error("RedisStore push failed", "error", err, "key", key)
		return fmt.Errorf("failed to append to %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) list(key string, decode func([]byte) error) error {
	ctx, cancel := s.ctx()
	defer cancel()
	items, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	for _, item := range items {
		if err := decode([]byte(item)); err != nil {
			return fmt.Errorf("decode %s entry: %w", key, err)
		}
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	slog.Debug("Closing Redis connection")
	return s.client.Close()
}
