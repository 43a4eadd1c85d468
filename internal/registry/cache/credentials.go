// Package cache keeps minted credential details in Redis.
//
// Credentials never change after mint, so entries are written once and only
// expire by TTL. Keys carry the ledger instance id: a token id names a
// credential only within one ledger, and a rebuilt ledger reuses ids from 0.
// Redis failures degrade to reading the ledger directly.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"certify/internal/registry/metrics"
	"certify/internal/registry/models"
	"certify/pkg/domain"
)

const (
	credentialKeyPrefix = "certify:credential:"

	DefaultTTL = 24 * time.Hour
)

// Source loads a credential on a cache miss and names the ledger it reads.
type Source interface {
	GetCredential(ctx context.Context, tokenID domain.TokenID) (*models.Credential, error)
	InstanceID(ctx context.Context) (string, error)
}

// Credentials is a read-through cache in front of Source.
type Credentials struct {
	client  *redis.Client
	source  Source
	prefix  string
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Credentials cache.
type Option func(*Credentials)

// WithTTL sets how long entries live.
func WithTTL(ttl time.Duration) Option {
	return func(c *Credentials) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Credentials) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Credentials) {
		c.metrics = m
	}
}

// NewCredentials wraps source with a Redis cache scoped to the source's
// ledger instance.
func NewCredentials(ctx context.Context, client *redis.Client, source Source, opts ...Option) (*Credentials, error) {
	instance, err := source.InstanceID(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve ledger instance: %w", err)
	}
	if instance == "" {
		return nil, errors.New("ledger instance id is empty")
	}
	c := &Credentials{
		client: client,
		source: source,
		prefix: KeyPrefix(instance),
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// KeyPrefix is the key prefix of every entry cached for instance.
func KeyPrefix(instance string) string {
	return credentialKeyPrefix + instance + ":"
}

// GetCredential returns the cached credential or loads and caches it. Errors
// from the source are returned unchanged and never cached.
func (c *Credentials) GetCredential(ctx context.Context, tokenID domain.TokenID) (*models.Credential, error) {
	key := c.prefix + tokenID.String()

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var credential models.Credential
		if err := json.Unmarshal(raw, &credential); err == nil {
			c.metrics.IncrementCacheLookup("hit")
			return &credential, nil
		}
		c.logger.WarnContext(ctx, "discarding corrupt cached credential", "token_id", tokenID.String())
		c.metrics.IncrementCacheLookup("miss")
	case errors.Is(err, redis.Nil):
		c.metrics.IncrementCacheLookup("miss")
	default:
		c.logger.WarnContext(ctx, "credential cache unavailable", "token_id", tokenID.String(), "error", err)
		c.metrics.IncrementCacheLookup("error")
	}

	credential, err := c.source.GetCredential(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, credential)
	return credential, nil
}

func (c *Credentials) store(ctx context.Context, key string, credential *models.Credential) {
	raw, err := json.Marshal(credential)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "failed to cache credential", "key", key, "error", err)
	}
}
