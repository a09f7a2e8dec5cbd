package session

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
)

// ExpireFunc is called for each session removed by the sweeper
type ExpireFunc func(ctx context.Context, s *Session)

// Sweeper deletes sessions that have been idle longer than the TTL. It takes
// the same per-session lock as request handling, so a session in use is
// never expired underneath its holder.
type Sweeper struct {
	store    Store
	locker   *Locker
	ttl      time.Duration
	interval time.Duration
	onExpire ExpireFunc
	logger   *log.Logger
	now      func() time.Time
}

func NewSweeper(store Store, locker *Locker, ttl time.Duration, onExpire ExpireFunc, logger *log.Logger) *Sweeper {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	return &Sweeper{
		store:    store,
		locker:   locker,
		ttl:      ttl,
		interval: interval,
		onExpire: onExpire,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps on an interval until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Warn("Session sweep failed", "error", err)
			}
		}
	}
}

// Sweep deletes expired sessions once and returns how many were removed
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	sessions, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for _, sess := range sessions {
		if !sess.UpdatedAt.Before(cutoff) {
			continue
		}
		expired, err := s.expire(ctx, sess.ID, cutoff)
		if err != nil {
			s.logger.Warn("Failed to delete expired session", "id", sess.ID, "error", err)
			continue
		}
		if expired {
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("Pruned idle sessions",
			"removed", removed,
			"remaining", len(sessions)-removed,
			"duration", time.Since(start))
	}
	return removed, nil
}

// expire removes one session under its lock. Busy sessions and sessions
// touched since they were listed are left alone.
func (s *Sweeper) expire(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	unlock, ok := s.locker.TryLock(id)
	if !ok {
		s.logger.Debug("Skipping busy session", "id", id)
		return false, nil
	}
	defer unlock()

	sess, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !sess.UpdatedAt.Before(cutoff) {
		return false, nil
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return false, err
	}
	if s.onExpire != nil {
		s.onExpire(ctx, sess)
	}
	return true, nil
}
