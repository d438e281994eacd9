package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	authzdomain "github.com/carebridge/revcycle/internal/authorization/domain"
	"github.com/carebridge/revcycle/internal/clock"
)

var ErrInvalidConfig = errors.New("scheduler dependencies are incomplete")

type Params struct {
	fx.In

	Log      *zap.Logger
	AuthzSvc authzdomain.Service
	Clock    clock.Clock
	Config   Config `optional:"true"`
}

// Scheduler runs the background sweeps that keep authorization state
// current without an operator in the loop.
type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	authzSvc authzdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.AuthzSvc == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler"),
		cfg:      p.Config.withDefaults(),
		clock:    p.Clock,
		authzSvc: p.AuthzSvc,
	}, nil
}

// RunForever executes every sweep once, then keeps running them at the
// configured interval until ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runJob(ctx, "authorization_expiry", s.expireAuthorizationsJob)
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))
	if err := fn(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.Warn("job timed out", zap.Duration("timeout", s.cfg.JobTimeout))
			return
		}
		log.Error("job failed", zap.Error(err))
		return
	}
	log.Debug("job finished", zap.Duration("elapsed", time.Since(start)))
}

func (s *Scheduler) expireAuthorizationsJob(ctx context.Context) error {
	expired, err := s.authzSvc.ExpireAllDue(ctx)
	if err != nil {
		return err
	}
	if expired > 0 {
		s.log.Info("expired authorizations past their end date", zap.Int64("count", expired))
	}
	return nil
}
