package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/raykavin/quantcore/pkg/core"
	"github.com/raykavin/quantcore/pkg/logger"
)

// instanceTTL is the sliding idle lifetime of a cached client.
const instanceTTL = time.Hour

// Credentials authenticate a client against an exchange.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Client is the full per-exchange surface the core consumes.
type Client interface {
	core.MarketDataSource
	core.OrderExecutor
}

// Factory builds a client for a named exchange. creds is nil for
// public, data-only instances.
type Factory func(ctx context.Context, exchange string, creds *Credentials) (Client, error)

// Cache holds constructed exchange clients so repeated lookups reuse
// connections and loaded pair metadata. Entries idle past the TTL are
// rebuilt on next use.
type Cache struct {
	factory Factory
	log     logger.Logger
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	client   Client
	lastUsed time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock overrides the wall clock. Used in tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache creates an exchange instance cache.
func NewCache(factory Factory, log logger.Logger, opts ...CacheOption) *Cache {
	c := &Cache{
		factory: factory,
		log:     log,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetPublic returns the shared unauthenticated client for an exchange.
func (c *Cache) GetPublic(ctx context.Context, exchange string) (Client, error) {
	return c.get(ctx, publicKey(exchange), exchange, nil)
}

// GetAuthed returns the client bound to a profile's credentials.
func (c *Cache) GetAuthed(ctx context.Context, profileID int64, exchange string,
	creds Credentials) (Client, error) {
	return c.get(ctx, authedKey(profileID, exchange), exchange, &creds)
}

func (c *Cache) get(ctx context.Context, key, exchange string, creds *Credentials) (Client, error) {
	now := c.now()

	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && now.Sub(cached.lastUsed) < instanceTTL {
		c.touch(key, now)
		return cached.client, nil
	}

	client, err := c.factory(ctx, exchange, creds)
	if err != nil {
		return nil, fmt.Errorf("%w: building %s client: %v", core.ErrMarketDataUnavailable, exchange, err)
	}

	c.mu.Lock()
	c.entries[key] = &entry{client: client, lastUsed: now}
	c.evictStale(now)
	c.mu.Unlock()

	c.log.Debugf("exchange client built for %s", key)
	return client, nil
}

func (c *Cache) touch(key string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.entries[key]; ok {
		cached.lastUsed = now
	}
}

// evictStale runs under c.mu.
func (c *Cache) evictStale(now time.Time) {
	for key, cached := range c.entries {
		if now.Sub(cached.lastUsed) >= instanceTTL {
			delete(c.entries, key)
		}
	}
}

// Invalidate drops every cached client of a profile. Called when the
// profile's credentials change.
func (c *Cache) Invalidate(profileID int64) {
	prefix := fmt.Sprintf("profile--%d--", profileID)

	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// LastQuote routes a quote request through the public client of the
// pair's exchange.
func (c *Cache) LastQuote(ctx context.Context, exchange, symbol string) (core.Quote, error) {
	client, err := c.GetPublic(ctx, exchange)
	if err != nil {
		return core.Quote{}, err
	}
	return client.LastQuote(ctx, symbol)
}

func publicKey(exchange string) string {
	return "public--" + strings.ToLower(exchange)
}

func authedKey(profileID int64, exchange string) string {
	return fmt.Sprintf("profile--%d--%s", profileID, strings.ToLower(exchange))
}
