package rbac

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ajidk16/tadbeer/pkg/observability"
)

// DefaultCacheTTL is how long a policy snapshot is trusted before being
// re-fetched from the database
const DefaultCacheTTL = 5 * time.Minute

// PolicyFetcher loads the full policy table. *Store satisfies this; tests
// substitute fakes.
type PolicyFetcher interface {
	FetchRoutePolicies(ctx context.Context) ([]RoutePolicy, error)
}

// PolicyCache is a read-through cache over the protected_routes table.
//
// The snapshot is held pre-sorted for longest-prefix matching: by prefix
// length descending, ties on equal length by lexicographic prefix order.
// The first matching entry during iteration is therefore always the most
// specific applicable policy.
type PolicyCache struct {
	fetcher PolicyFetcher
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics

	mu        sync.Mutex
	snapshot  []RoutePolicy
	fetchedAt time.Time
	loaded    bool

	now func() time.Time
}

// NewPolicyCache creates a policy cache. ttl <= 0 falls back to
// DefaultCacheTTL. metrics may be nil.
func NewPolicyCache(fetcher PolicyFetcher, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *PolicyCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &PolicyCache{
		fetcher: fetcher,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Policies returns the current snapshot, refreshing it first when stale.
//
// A refresh failure never fails the caller: the last good snapshot keeps
// serving (stale-serve), and until a first successful load an empty
// snapshot is returned, which protects nothing but keeps requests flowing.
// fetchedAt only advances on success, so a failing database is retried on
// each request until it recovers.
func (c *PolicyCache) Policies(ctx context.Context) []RoutePolicy {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded || c.now().Sub(c.fetchedAt) > c.ttl {
		c.refreshLocked(ctx)
	}

	return c.snapshot
}

// Match returns the most specific policy covering the path, or nil when the
// path is unprotected
func (c *PolicyCache) Match(ctx context.Context, path string) *RoutePolicy {
	snapshot := c.Policies(ctx)
	for i := range snapshot {
		if snapshot[i].Matches(path) {
			return &snapshot[i]
		}
	}
	return nil
}

// ForceRefresh discards the TTL and reloads immediately. Used after policy
// edits so changes take effect without waiting out the TTL.
func (c *PolicyCache) ForceRefresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

// refreshLocked fetches and installs a new snapshot. Caller holds c.mu.
func (c *PolicyCache) refreshLocked(ctx context.Context) error {
	policies, err := c.fetcher.FetchRoutePolicies(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("policy cache refresh failed, serving stale snapshot")
		if c.metrics != nil {
			c.metrics.PolicyCacheRefreshTotal.WithLabelValues(observability.RefreshStatusError).Inc()
			if c.loaded {
				c.metrics.PolicyCacheRefreshTotal.WithLabelValues(observability.RefreshStatusStale).Inc()
			}
		}
		return err
	}

	sort.SliceStable(policies, func(i, j int) bool {
		if len(policies[i].Prefix) != len(policies[j].Prefix) {
			return len(policies[i].Prefix) > len(policies[j].Prefix)
		}
		return policies[i].Prefix < policies[j].Prefix
	})

	c.snapshot = policies
	c.fetchedAt = c.now()
	c.loaded = true

	if c.metrics != nil {
		c.metrics.PolicyCacheRefreshTotal.WithLabelValues(observability.RefreshStatusOK).Inc()
		c.metrics.PolicyCacheEntriesGauge.Set(float64(len(policies)))
	}
	return nil
}
