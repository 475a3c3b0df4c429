// Package ratelimit implements the soft, client-side sliding-window limiter for free-tier generations.
package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"
)

// Store persists the per-client log of admitted request timestamps (epoch milliseconds).
type Store interface {
	Load(ctx context.Context, key string) ([]int64, error)
	Save(ctx context.Context, key string, timestamps []int64) error
}

type Decision struct {
	Allowed      bool
	Used         int
	Remaining    int
	ResetSeconds int
}

type Options struct {
	Quota  int
	Window time.Duration
	Now    func() time.Time
	Logger *slog.Logger
}

type Limiter struct {
	store  Store
	quota  int
	window time.Duration
	now    func() time.Time
	log    *slog.Logger
}

func New(store Store, opts Options) *Limiter {
	quota := opts.Quota
	if quota <= 0 {
		quota = 5
	}
	window := opts.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Limiter{
		store:  store,
		quota:  quota,
		window: window,
		now:    now,
		log:    log,
	}
}

func (l *Limiter) Quota() int {
	return l.quota
}

// Admit reports whether key may issue another request. It never writes to the store.
func (l *Limiter) Admit(ctx context.Context, key string) Decision {
	nowMs := l.now().UnixMilli()
	recent := l.recent(ctx, key, nowMs)

	if len(recent) < l.quota {
		return Decision{
			Allowed:   true,
			Used:      len(recent),
			Remaining: l.quota - len(recent),
		}
	}

	oldest := recent[0]
	untilMs := oldest + l.window.Milliseconds() - nowMs
	reset := int((untilMs + 999) / 1000)
	if reset < 1 {
		reset = 1
	}
	return Decision{
		Allowed:      false,
		Used:         l.quota,
		Remaining:    0,
		ResetSeconds: reset,
	}
}

// Record appends the current instant to key's log. Storage failures are logged and ignored.
func (l *Limiter) Record(ctx context.Context, key string) {
	nowMs := l.now().UnixMilli()
	recent := append(l.recent(ctx, key, nowMs), nowMs)
	if err := l.store.Save(ctx, key, recent); err != nil {
		l.log.Warn("save request timestamps", "key", key, "err", err)
	}
}

// recent loads key's log and keeps entries strictly newer than now-window, oldest first.
func (l *Limiter) recent(ctx context.Context, key string, nowMs int64) []int64 {
	all, err := l.store.Load(ctx, key)
	if err != nil {
		l.log.Warn("load request timestamps", "key", key, "err", err)
		return nil
	}
	cutoff := nowMs - l.window.Milliseconds()
	recent := make([]int64, 0, len(all))
	for _, ts := range all {
		if ts > cutoff {
			recent = append(recent, ts)
		}
	}
	sort.Slice(recent, func(i, j int) bool { return recent[i] < recent[j] })
	return recent
}
