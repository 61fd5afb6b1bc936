// Package gate enforces the two-layer usage policy in front of every
// mutating or expensive operation: short fixed-window burst limits per IP
// and per account, then per-user daily quotas read from the store. Burst
// refusals are cheap and happen before any retrieval work is dispatched.
package gate

import (
	"context"
	"fmt"
	"time"

	"contextcache/internal/config"
	"contextcache/internal/logging"
	"contextcache/internal/types"
)

// QuotaReader supplies the per-user daily counters. Implemented by the
// store; the gate never writes counters itself, the counted operation does
// that transactionally.
type QuotaReader interface {
	UsageForDay(ctx context.Context, userID int64, day string) (*types.UsageCounters, error)
}

// Gate checks burst windows and daily quotas.
type Gate struct {
	counters CounterStore
	quotas   QuotaReader
	limits   config.LimitsConfig
	now      func() time.Time
}

// New builds a gate. counters may be Badger-backed (shared) or in-memory.
func New(counters CounterStore, quotas QuotaReader, limits config.LimitsConfig) *Gate {
	return &Gate{
		counters: counters,
		quotas:   quotas,
		limits:   limits,
		now:      time.Now,
	}
}

// AllowRecall checks the hourly recall burst windows and the daily recall
// quota. user may be nil for unauthenticated probes (burst only).
func (g *Gate) AllowRecall(ctx context.Context, ip string, user *types.User) error {
	if err := g.burst(ctx, "recall", ip, user, g.limits.RecallPerHour, time.Hour); err != nil {
		return err
	}
	return g.quota(ctx, user, types.UsageRecallQueries, g.limits.DailyRecallLimit, "daily recall limit reached")
}

// AllowWrite checks the per-minute write burst windows and the daily memory
// quota.
func (g *Gate) AllowWrite(ctx context.Context, ip string, user *types.User) error {
	if err := g.burst(ctx, "write", ip, user, g.limits.WritesPerMinute, time.Minute); err != nil {
		return err
	}
	return g.quota(ctx, user, types.UsageMemoriesCreated, g.limits.DailyMemoryLimit, "daily memory limit reached")
}

// AllowIngest checks the per-minute ingest burst windows. Ingest drafts do
// not consume the memory quota until approved.
func (g *Gate) AllowIngest(ctx context.Context, ip string, user *types.User) error {
	return g.burst(ctx, "ingest", ip, user, g.limits.IngestPerMinute, time.Minute)
}

// AllowProjectCreate checks the daily project quota.
func (g *Gate) AllowProjectCreate(ctx context.Context, user *types.User) error {
	return g.quota(ctx, user, types.UsageProjectsCreated, g.limits.DailyProjectLimit, "daily project limit reached")
}

// burst applies one fixed-window limit twice: keyed by client IP and by
// account. Either window tripping refuses the request. Unlimited users skip
// both windows.
func (g *Gate) burst(ctx context.Context, op, ip string, user *types.User, limit int, window time.Duration) error {
	if limit <= 0 {
		return nil
	}
	if user != nil && user.Unlimited {
		return nil
	}

	keys := make([]string, 0, 2)
	if ip != "" {
		keys = append(keys, fmt.Sprintf("%s:ip:%s", op, ip))
	}
	if user != nil {
		keys = append(keys, fmt.Sprintf("%s:user:%d", op, user.ID))
	}

	for _, key := range keys {
		count, remaining, err := g.counters.Incr(ctx, key, window)
		if err != nil {
			if g.limits.Strict {
				return &types.GateRefusedError{Reason: "rate limiter unavailable"}
			}
			logging.Get(logging.CategoryGate).Warnf("counter backend error, allowing request: %v", err)
			return nil
		}
		if count > int64(limit) {
			if remaining <= 0 || remaining > window {
				remaining = window
			}
			logging.Gate("burst refused: key=%s count=%d limit=%d", key, count, limit)
			return &types.GateRefusedError{
				Reason:     fmt.Sprintf("%s rate limit exceeded", op),
				RetryAfter: remaining,
			}
		}
	}
	return nil
}

// quota refuses once a user's daily counter reaches the limit. Unlimited
// users and zero limits bypass the check.
func (g *Gate) quota(ctx context.Context, user *types.User, field string, limit int64, reason string) error {
	if user == nil || user.Unlimited || limit <= 0 {
		return nil
	}

	now := g.now()
	usage, err := g.quotas.UsageForDay(ctx, user.ID, types.DayKey(now))
	if err != nil {
		if g.limits.Strict {
			return &types.GateRefusedError{Reason: "quota check unavailable"}
		}
		logging.Get(logging.CategoryGate).Warnf("quota read failed, allowing request: %v", err)
		return nil
	}

	var current int64
	switch field {
	case types.UsageMemoriesCreated:
		current = usage.MemoriesCreated
	case types.UsageRecallQueries:
		current = usage.RecallQueries
	case types.UsageProjectsCreated:
		current = usage.ProjectsCreated
	}

	if current >= limit {
		logging.Gate("quota refused: user=%d field=%s current=%d limit=%d", user.ID, field, current, limit)
		return &types.GateRefusedError{
			Reason:     reason,
			RetryAfter: untilNextUTCMidnight(now),
		}
	}
	return nil
}

// untilNextUTCMidnight is the Retry-After hint for daily quotas: counters
// key on the UTC date, so they reset at the next UTC midnight.
func untilNextUTCMidnight(now time.Time) time.Duration {
	utc := now.UTC()
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return midnight.Sub(utc)
}
