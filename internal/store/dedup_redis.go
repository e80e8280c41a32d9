package store

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

func redisInboundKey(messageID string) string { return "inbound:" + messageID }

func (s *RedisStore) IsDuplicate(messageID string) (bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	n, err := s.client.Exists(ctx, redisInboundKey(messageID)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return n > 0, nil
}

// RecordInbound stores the marker with the store TTL, so dedup keys expire
// together with the sessions they belong to.
func (s *RedisStore) RecordInbound(messageID, userID string) (bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	ok, err := s.client.SetNX(ctx, redisInboundKey(messageID), userID, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) MarkProcessed(messageID string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	err := s.client.SetArgs(ctx, redisInboundKey(messageID), "processed", redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}
