package permission

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/roach88/contentflow/internal/content"
)

// DefaultCacheTTL is how long a decision is reused when no TTL is configured.
const DefaultCacheTTL = 30 * time.Second

// minSweep is the entry count at which a write first sweeps expired entries.
const minSweep = 1024

// CachingResolver memoizes decisions of another Checker for a fixed TTL.
//
// STALENESS: there is no invalidation on role or permission changes. A
// decision may be served for up to TTL after the rules that produced it were
// edited. Changing a user's role assignment or the content version changes the
// cache key, so those cases are picked up immediately.
//
// Concurrent misses for the same key may compute the decision twice; the
// last write wins and both results are equivalent.
//
// Expired entries are swept on write once the map has doubled since the
// last sweep, so the map stays within twice the live entries (or minSweep).
type CachingResolver struct {
	next Checker
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	sweepAt int
}

type cacheEntry struct {
	allowed bool
	expires time.Time
}

// CacheOption configures a CachingResolver.
type CacheOption func(*CachingResolver)

// WithCacheClock overrides the wall clock used for expiry.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *CachingResolver) {
		c.now = now
	}
}

// NewCachingResolver wraps next. A non-positive ttl uses DefaultCacheTTL.
func NewCachingResolver(next Checker, ttl time.Duration, opts ...CacheOption) *CachingResolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &CachingResolver{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
		sweepAt: minSweep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CanPerformAction returns a cached decision when one is live, otherwise it
// asks the wrapped Checker. Errors are never cached.
func (c *CachingResolver) CanPerformAction(ctx context.Context, user User, contentType string, action Action, item *content.Content) (bool, error) {
	key := cacheKey(user, contentType, action, item)
	now := c.now()

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && now.Before(entry.expires) {
		return entry.allowed, nil
	}

	allowed, err := c.next.CanPerformAction(ctx, user, contentType, action, item)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{allowed: allowed, expires: now.Add(c.ttl)}
	if len(c.entries) >= c.sweepAt {
		c.sweep(now)
		c.sweepAt = max(2*len(c.entries), minSweep)
	}
	c.mu.Unlock()
	return allowed, nil
}

// Purge drops expired entries and returns how many remain.
func (c *CachingResolver) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep(now)
	return len(c.entries)
}

// Len returns the number of entries held, expired or not.
func (c *CachingResolver) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// sweep drops entries expired at now. c.mu must be held.
func (c *CachingResolver) sweep(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
}

func cacheKey(user User, contentType string, action Action, item *content.Content) string {
	roles := append([]string(nil), user.RoleIDs...)
	sort.Strings(roles)

	var b strings.Builder
	b.WriteString(user.ID)
	b.WriteByte('|')
	b.WriteString(strings.Join(roles, ","))
	b.WriteByte('|')
	b.WriteString(contentType)
	b.WriteByte('|')
	b.WriteString(string(action))
	if item != nil {
		b.WriteByte('|')
		b.WriteString(item.ID)
		b.WriteByte('@')
		b.WriteString(strconv.FormatInt(item.Version, 10))
	}
	return b.String()
}
