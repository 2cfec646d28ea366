package org

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"salesdeck.io/internal/audit"
	"salesdeck.io/internal/obs"
)

// Sweeper expires stale invites on a cron schedule.
type Sweeper struct {
	svc     *Service
	cron    *cron.Cron
	timeout time.Duration
}

// NewSweeper schedules svc.ExpireStale. The schedule accepts standard
// five-field specs and descriptors such as "@every 1h".
func NewSweeper(svc *Service, schedule string) (*Sweeper, error) {
	s := &Sweeper{svc: svc, cron: cron.New(), timeout: time.Minute}
	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return nil, err
	}
	return s, nil
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.svc.ExpireStale(ctx)
	if err != nil {
		obs.Logger().Error("invite sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		_ = audit.LogEvent(ctx, audit.EventInviteExpired, map[string]any{"count": n})
	}
}

func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts scheduling and returns a context done once a running sweep
// finishes.
func (s *Sweeper) Stop() context.Context { return s.cron.Stop() }
