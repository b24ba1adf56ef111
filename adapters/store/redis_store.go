package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/layer-3/gatekeeper/core"
)

const defaultRedisPrefix = "gatekeeper:revoked:"

// RedisStore is a Redis implementation of the RevocationStore interface
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: defaultRedisPrefix,
	}
}

// Revoke records a revocation in Redis; the key expires with the credential
func (s *RedisStore) Revoke(ctx context.Context, tokenID string, rev core.Revocation, ttl time.Duration) error {
	if ttl <= 0 {
		// Already expired, verification rejects it on its own
		return nil
	}

	key := s.prefix + tokenID
	value := string(rev.Reason) + ":" + strconv.FormatInt(rev.At.Unix(), 10)

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to revoke token")
	}

	return nil
}

// Revocation reads the revocation record of a token from Redis
func (s *RedisStore) Revocation(ctx context.Context, tokenID string) (*core.Revocation, error) {
	key := s.prefix + tokenID

	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read token revocation")
	}

	return parseRevocation(value)
}

func parseRevocation(value string) (*core.Revocation, error) {
	reason, at, ok := strings.Cut(value, ":")
	if !ok {
		return nil, errors.Errorf("malformed revocation record %q", value)
	}

	unix, err := strconv.ParseInt(at, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed revocation time %q", at)
	}

	return &core.Revocation{
		Reason: core.RevocationReason(reason),
		At:     time.Unix(unix, 0),
	}, nil
}
