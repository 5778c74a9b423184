package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultReaperSchedule = "0 * * * *" // hourly

var standardCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow,
)

func parseCronExpressionUTC(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, fmt.Errorf("cron expression is required")
	}

	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, fmt.Errorf("cron expression must be UTC-only (timezone prefixes are not allowed)")
	}

	schedule, err := standardCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// SessionReaperConfig configures the background expired-session sweep.
type SessionReaperConfig struct {
	Store    AuthStore
	Schedule string // UTC cron expression, defaults to hourly
	Now      func() time.Time
	Logger   *slog.Logger
}

// SessionReaper deletes expired session rows on a cron schedule so the
// sessions table does not grow without bound.
type SessionReaper struct {
	store    AuthStore
	schedule cron.Schedule
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSessionReaper creates a session reaper instance.
func NewSessionReaper(cfg SessionReaperConfig) (*SessionReaper, error) {
	if cfg.Store == nil {
		return nil, errors.New("session reaper store is nil")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = defaultReaperSchedule
	}
	schedule, err := parseCronExpressionUTC(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("session reaper schedule: %w", err)
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &SessionReaper{
		store:    cfg.Store,
		schedule: schedule,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}, nil
}

// Start begins the background sweep loop. Calling Start on a running
// reaper is a no-op.
func (r *SessionReaper) Start() {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		for {
			now := r.now().UTC()
			timer := time.NewTimer(r.schedule.Next(now).Sub(now))
			select {
			case <-loopCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
				if err := r.RunOnce(loopCtx); err != nil {
					r.logger.Error("session sweep failed", "error", err)
				}
			}
		}
	}()
}

// Stop halts the sweep loop and waits for the in-flight pass to finish.
func (r *SessionReaper) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single expired-session sweep.
func (r *SessionReaper) RunOnce(ctx context.Context) error {
	removed, err := r.store.CleanExpiredSessions(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		r.logger.Info("expired sessions removed", "count", removed)
	}
	return nil
}
