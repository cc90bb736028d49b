package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/ledgerlock/pkg/observability"
	"github.com/platinummonkey/ledgerlock/pkg/orgs"
)

// MembershipCache is a two-level cache for membership lookups: an
// in-process expirable LRU in front of Redis. Authorization reads hit
// this on every request, so the L1 keeps the hot set off the network
// entirely while Redis keeps instances roughly coherent.
//
// Invalidation deletes from both levels plus a per-organization epoch
// key in Redis, so whole-organization invalidation (rotation, deletion)
// does not require enumerating members.
type MembershipCache struct {
	local  *lru.LRU[string, *orgs.Membership]
	redis  *redis.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewMembershipCache creates the cache. redisClient may be nil for
// single-instance deployments; the LRU then works alone.
func NewMembershipCache(redisClient *redis.Client, size int, ttl time.Duration, logger *observability.Logger) *MembershipCache {
	if size <= 0 {
		size = 4096
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &MembershipCache{
		local:  lru.NewLRU[string, *orgs.Membership](size, nil, ttl),
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

func membershipKey(orgID, userID uuid.UUID) string {
	return fmt.Sprintf("membership:%s:%s", orgID, userID)
}

func epochKey(orgID uuid.UUID) string {
	return fmt.Sprintf("membership_epoch:%s", orgID)
}

// GetMembership implements orgs.MembershipCache.
func (c *MembershipCache) GetMembership(ctx context.Context, orgID, userID uuid.UUID) (*orgs.Membership, bool) {
	key := membershipKey(orgID, userID)

	if m, ok := c.local.Get(key); ok {
		observability.MembershipCache.WithLabelValues("hit_l1").Inc()
		return m, true
	}

	if c.redis != nil {
		data, err := c.redis.Get(ctx, c.epochedKey(ctx, orgID, key)).Result()
		if err == nil {
			m := &orgs.Membership{}
			if err := json.Unmarshal([]byte(data), m); err == nil {
				observability.MembershipCache.WithLabelValues("hit_l2").Inc()
				c.local.Add(key, m)
				return m, true
			}
		} else if err != redis.Nil {
			observability.MembershipCache.WithLabelValues("error").Inc()
			c.logger.WithError(err).Warn("membership cache read failed")
			return nil, false
		}
	}

	observability.MembershipCache.WithLabelValues("miss").Inc()
	return nil, false
}

// SetMembership implements orgs.MembershipCache.
func (c *MembershipCache) SetMembership(ctx context.Context, m *orgs.Membership) {
	key := membershipKey(m.OrganizationID, m.UserID)
	c.local.Add(key, m)

	if c.redis != nil {
		data, err := json.Marshal(m)
		if err != nil {
			return
		}
		if err := c.redis.Set(ctx, c.epochedKey(ctx, m.OrganizationID, key), data, c.ttl).Err(); err != nil {
			c.logger.WithError(err).Warn("membership cache write failed")
		}
	}
}

// Invalidate implements orgs.MembershipCache for a single membership.
func (c *MembershipCache) Invalidate(ctx context.Context, orgID, userID uuid.UUID) {
	key := membershipKey(orgID, userID)
	c.local.Remove(key)
	if c.redis != nil {
		if err := c.redis.Del(ctx, c.epochedKey(ctx, orgID, key)).Err(); err != nil {
			c.logger.WithError(err).Warn("membership cache invalidation failed")
		}
	}
}

// InvalidateOrg drops every cached membership of an organization by
// bumping its epoch. The L1 cannot be invalidated per-organization, so
// it is purged wholesale; entries re-fill within one TTL.
func (c *MembershipCache) InvalidateOrg(ctx context.Context, orgID uuid.UUID) {
	c.local.Purge()
	if c.redis != nil {
		if err := c.redis.Incr(ctx, epochKey(orgID)).Err(); err != nil {
			c.logger.WithError(err).Warn("membership cache epoch bump failed")
		}
	}
}

// epochedKey prefixes a key with the organization's current epoch so a
// bump instantly orphans all previous entries.
func (c *MembershipCache) epochedKey(ctx context.Context, orgID uuid.UUID, key string) string {
	epoch, err := c.redis.Get(ctx, epochKey(orgID)).Result()
	if err != nil {
		epoch = "0"
	}
	return fmt.Sprintf("e%s:%s", epoch, key)
}
