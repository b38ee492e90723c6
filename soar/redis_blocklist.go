package soar

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"argus/core"

	"go.uber.org/zap"
)

// RedisBlockKeyPrefix prefixes every blocklist key
const RedisBlockKeyPrefix = "argus:blocked:"

// RedisBlocklist records blocked addresses in Redis so that several engine
// instances share one blocklist. Each address is stored once; the TTL, when
// set, releases the block automatically.
type RedisBlocklist struct {
	cache  *core.RedisCache
	ttl    time.Duration
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewRedisBlocklist creates a blocklist backed by cache
func NewRedisBlocklist(cache *core.RedisCache, ttl time.Duration, logger *zap.SugaredLogger) *RedisBlocklist {
	return &RedisBlocklist{
		cache:  cache,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Block implements Containment
func (b *RedisBlocklist) Block(ctx context.Context, ip, reason string) error {
	entry := BlockedIP{IP: ip, Reason: reason, BlockedAt: b.now().UTC()}
	created, err := b.cache.SetNX(ctx, RedisBlockKeyPrefix+ip, entry, b.ttl)
	if err != nil {
		return fmt.Errorf("failed to record block for %s: %w", ip, err)
	}
	if !created {
		b.logger.Debugw("Address already blocked", "ip", ip)
		return nil
	}
	b.logger.Errorw("Address blocked", "ip", ip, "reason", reason, "ttl", b.ttl)
	return nil
}

// List implements BlocklistReader. Entries are ordered by block time.
func (b *RedisBlocklist) List(ctx context.Context) ([]BlockedIP, error) {
	keys, err := b.cache.Keys(ctx, RedisBlockKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocklist: %w", err)
	}
	out := make([]BlockedIP, 0, len(keys))
	for _, key := range keys {
		var entry BlockedIP
		found, err := b.cache.Get(ctx, key, &entry)
		if err != nil {
			return nil, fmt.Errorf("failed to read blocklist entry %s: %w", key, err)
		}
		if !found {
			// expired between SCAN and GET
			continue
		}
		if entry.IP == "" {
			entry.IP = strings.TrimPrefix(key, RedisBlockKeyPrefix)
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockedAt.Before(out[j].BlockedAt) })
	return out, nil
}
