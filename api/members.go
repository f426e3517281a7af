package api

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/workhours/overtime/overtime"
)

// MembershipStore loads memberships on a cache miss.
type MembershipStore interface {
	GetMembership(ctx context.Context, uid, org string) (*overtime.Membership, error)
}

// MembershipCache is a short-lived cache of the (uid, org) memberships the
// handlers check on every request. Writers must Evict the entries they
// change; the TTL bounds staleness from other processes.
type MembershipCache struct {
	store MembershipStore
	lru   *expirable.LRU[string, overtime.Membership]
}

func NewMembershipCache(store MembershipStore, size int, ttl time.Duration) *MembershipCache {
	return &MembershipCache{
		store: store,
		lru:   expirable.NewLRU[string, overtime.Membership](size, nil, ttl),
	}
}

// GetMembership returns the membership of uid in org, or nil when there is
// none. Misses are not cached.
func (c *MembershipCache) GetMembership(ctx context.Context, uid, org string) (*overtime.Membership, error) {
	key := overtime.MembershipKey(uid, org)
	if m, ok := c.lru.Get(key); ok {
		return &m, nil
	}
	m, err := c.store.GetMembership(ctx, uid, org)
	if err != nil || m == nil {
		return m, err
	}
	c.lru.Add(key, *m)
	return m, nil
}

// Evict drops the cached membership of uid in org.
func (c *MembershipCache) Evict(uid, org string) {
	c.lru.Remove(overtime.MembershipKey(uid, org))
}

// EvictUser drops every cached membership of uid.
func (c *MembershipCache) EvictUser(uid string) {
	for _, key := range c.lru.Keys() {
		if m, ok := c.lru.Peek(key); ok && m.UID == uid {
			c.lru.Remove(key)
		}
	}
}

// Purge drops every cached membership.
func (c *MembershipCache) Purge() {
	c.lru.Purge()
}
