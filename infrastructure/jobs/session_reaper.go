// Package jobs holds the background work scheduled next to the HTTP server.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"topicref/application/ports"
	"topicref/pkg/observability"
)

// reapTimeout bounds a single purge run.
const reapTimeout = 2 * time.Minute

// SessionReaper periodically deletes sessions older than the session lifetime,
// whether or not their login ever completed.
type SessionReaper struct {
	cron     *cron.Cron
	ttl      time.Duration
	sessions ports.SessionStore
	metrics  *observability.Collector
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionReaper schedules Reap on schedule, a standard cron spec or an
// "@every" descriptor. Nothing runs until Start.
func NewSessionReaper(schedule string, ttl time.Duration, sessions ports.SessionStore, metrics *observability.Collector, logger *zap.Logger) (*SessionReaper, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	r := &SessionReaper{
		cron:     cron.New(),
		ttl:      ttl,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("invalid reap schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *SessionReaper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), reapTimeout)
	defer cancel()
	_, _ = r.Reap(ctx)
}

// Reap deletes every session created before now minus the ttl.
func (r *SessionReaper) Reap(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.ttl)
	n, err := r.sessions.PurgeSessions(ctx, cutoff)
	if err != nil {
		r.logger.Error("Session purge failed", zap.Time("cutoff", cutoff), zap.Error(err))
		return n, err
	}
	r.metrics.SessionsPurged(n)
	if n > 0 {
		r.logger.Info("Expired sessions purged", zap.Int("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

func (r *SessionReaper) Start() {
	r.cron.Start()
}

// Stop halts scheduling and waits for a running purge to finish or ctx to end.
func (r *SessionReaper) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}
