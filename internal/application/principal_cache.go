package application

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// principalCache keeps recently validated principals keyed by token hash so
// that authenticated requests skip the session and user lookups. Entries
// never outlive the session they were derived from.
type principalCache struct {
	store *gocache.Cache
	ttl   time.Duration
	now   func() time.Time
}

type principalCacheEntry struct {
	principal Principal
	expiresAt time.Time
}

func newPrincipalCache(ttl time.Duration, now func() time.Time) *principalCache {
	if ttl <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	return &principalCache{
		store: gocache.New(ttl, 2*ttl),
		ttl:   ttl,
		now:   now,
	}
}

func (c *principalCache) Get(tokenHash string) (Principal, bool) {
	if c == nil {
		return Principal{}, false
	}
	value, ok := c.store.Get(tokenHash)
	if !ok {
		return Principal{}, false
	}
	entry := value.(principalCacheEntry)
	if !c.now().Before(entry.expiresAt) {
		c.store.Delete(tokenHash)
		return Principal{}, false
	}
	return clonePrincipal(entry.principal), true
}

func (c *principalCache) Set(tokenHash string, principal Principal, sessionExpiresAt time.Time) {
	if c == nil {
		return
	}
	now := c.now()
	expiresAt := now.Add(c.ttl)
	if !sessionExpiresAt.IsZero() && sessionExpiresAt.Before(expiresAt) {
		expiresAt = sessionExpiresAt
	}
	if !now.Before(expiresAt) {
		return
	}
	c.store.Set(tokenHash, principalCacheEntry{
		principal: clonePrincipal(principal),
		expiresAt: expiresAt,
	}, gocache.DefaultExpiration)
}

func (c *principalCache) Invalidate(tokenHash string) {
	if c == nil {
		return
	}
	c.store.Delete(tokenHash)
}

// InvalidateUser drops every cached principal that belongs to userID.
func (c *principalCache) InvalidateUser(userID int64) {
	if c == nil {
		return
	}
	for key, item := range c.store.Items() {
		if entry, ok := item.Object.(principalCacheEntry); ok && entry.principal.UserID == userID {
			c.store.Delete(key)
		}
	}
}

func clonePrincipal(p Principal) Principal {
	if p.Roles != nil {
		p.Roles = append([]string(nil), p.Roles...)
	}
	return p
}
