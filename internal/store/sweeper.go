package store

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/agent"
	"github.com/MeghVyas3132/AI-Interviewer-Saas-sub000/internal/metrics"
)

// SweeperConfig controls the stale-session sweep.
type SweeperConfig struct {
	Schedule string        // cron expression, e.g. "@every 5m"
	MaxAge   time.Duration // in-progress sessions older than this are abandoned
}

// Sweeper abandons sessions whose page died without delivering a finalize.
type Sweeper struct {
	service *Service
	cfg     SweeperConfig
	cron    *cron.Cron
	log     *zap.Logger
	now     func() time.Time
}

func NewSweeper(service *Service, cfg SweeperConfig, log *zap.Logger) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 5m"
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 3 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{service: service, cfg: cfg, cron: cron.New(), log: log, now: time.Now}
}

// Start schedules the sweep.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.log.Error("sweeper: sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("sweeper: started", zap.String("schedule", s.cfg.Schedule), zap.Duration("max_age", s.cfg.MaxAge))
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep abandons every stale in-progress session once and returns how many
// were abandoned.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	stale, err := s.service.Sessions.Stale(ctx, s.now().Add(-s.cfg.MaxAge))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sess := range stale {
		if err := s.service.AbandonSession(ctx, sess.Token, agent.Results{Reason: "stale"}); err != nil {
			s.log.Warn("sweeper: abandon", zap.String("token", sess.Token), zap.Error(err))
			continue
		}
		n++
	}
	if n > 0 {
		metrics.SweptSessions.Add(float64(n))
		s.log.Info("sweeper: abandoned stale sessions", zap.Int("count", n))
	}
	return n, nil
}
