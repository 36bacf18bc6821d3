package session

import (
	"context"
	"time"
)

const revokedNamespace = "revoked_jti"

// KeyStore is the subset of the Redis cache the revoker needs.
type KeyStore interface {
	Set(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error
	Exists(ctx context.Context, namespace, key string) (bool, error)
}

// RedisRevoker keeps a deny list of token ids. Entries expire with the
// token so the list never outgrows the set of live sessions.
type RedisRevoker struct {
	store KeyStore
}

func NewRedisRevoker(store KeyStore) *RedisRevoker {
	return &RedisRevoker{store: store}
}

func (r *RedisRevoker) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.store.Set(ctx, revokedNamespace, tokenID, time.Now().UTC().Unix(), ttl)
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return r.store.Exists(ctx, revokedNamespace, tokenID)
}
