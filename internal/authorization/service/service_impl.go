package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/carebridge/revcycle/internal/actorctx"
	auditdomain "github.com/carebridge/revcycle/internal/audit/domain"
	"github.com/carebridge/revcycle/internal/authorization/domain"
	"github.com/carebridge/revcycle/internal/clock"
	"github.com/carebridge/revcycle/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Repo  domain.Repository
	Audit auditdomain.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  domain.Repository
	audit auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("authorization.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
		audit: p.Audit,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateAuthorizationRequest) (*domain.Authorization, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrAuthorizationNotFound
	}
	if req.AuthorizedUnits <= 0 {
		return nil, domain.ErrInvalidUnits
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, domain.ErrInvalidDateRange
	}

	var serviceTypes datatypes.JSON
	if len(req.ServiceTypes) > 0 {
		raw, err := json.Marshal(req.ServiceTypes)
		if err != nil {
			return nil, err
		}
		serviceTypes = datatypes.JSON(raw)
	}

	status := domain.AuthStatusDraft
	if req.Activate {
		status = domain.AuthStatusActive
	}

	now := s.clock.Now()
	auth := domain.Authorization{
		ID:              s.genID.Generate(),
		OrgID:           orgID,
		AuthNumber:      strings.TrimSpace(req.AuthNumber),
		ClientID:        snowflake.ID(req.ClientID),
		PayerID:         snowflake.ID(req.PayerID),
		ServiceTypes:    serviceTypes,
		Status:          status,
		AuthorizedUnits: req.AuthorizedUnits,
		StartDate:       req.StartDate.UTC(),
		EndDate:         req.EndDate.UTC(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Insert(ctx, s.db, &auth); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAuthNumberConflict
		}
		return nil, err
	}

	_ = s.audit.Record(ctx, "authorization.created", "authorization", auth.ID.String(), map[string]any{
		"auth_number":      auth.AuthNumber,
		"authorized_units": auth.AuthorizedUnits,
	})
	return &auth, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Authorization, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrAuthorizationNotFound
	}
	return s.repo.FindByID(ctx, s.db, orgID, id)
}

func (s *Service) ListByClient(ctx context.Context, clientID snowflake.ID) ([]domain.Authorization, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrAuthorizationNotFound
	}
	return s.repo.FindByClient(ctx, s.db, orgID, clientID)
}

func (s *Service) Activate(ctx context.Context, id snowflake.ID) (*domain.Authorization, error) {
	return s.changeStatus(ctx, id, domain.AuthStatusActive, "authorization.activated",
		domain.AuthStatusDraft)
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (*domain.Authorization, error) {
	return s.changeStatus(ctx, id, domain.AuthStatusCancelled, "authorization.cancelled",
		domain.AuthStatusDraft, domain.AuthStatusActive)
}

func (s *Service) changeStatus(ctx context.Context, id snowflake.ID, to domain.AuthorizationStatus, action string, from ...domain.AuthorizationStatus) (*domain.Authorization, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrAuthorizationNotFound
	}

	auth, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, f := range from {
		if auth.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, domain.ErrInvalidStatusChange
	}

	auth.Status = to
	auth.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, auth); err != nil {
		return nil, err
	}

	_ = s.audit.Record(ctx, action, "authorization", auth.ID.String(), nil)
	return auth, nil
}

func (s *Service) ConsumeUnits(ctx context.Context, tx *gorm.DB, authID snowflake.ID, units float64) error {
	if units <= 0 {
		return domain.ErrInvalidUnits
	}

	auth, err := s.repo.FindByIDForUpdate(ctx, tx, authID)
	if err != nil {
		return err
	}
	if auth.Status != domain.AuthStatusActive {
		return domain.ErrInvalidStatusChange
	}
	if auth.UsedUnits+units > auth.AuthorizedUnits+domain.UnitEpsilon {
		return domain.ErrInsufficientUnits
	}

	auth.UsedUnits += units
	if auth.Exhausted() {
		auth.Status = domain.AuthStatusExhausted
	}
	auth.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, tx, auth)
}

func (s *Service) ReleaseUnits(ctx context.Context, tx *gorm.DB, authID snowflake.ID, units float64) error {
	if units <= 0 {
		return domain.ErrInvalidUnits
	}

	auth, err := s.repo.FindByIDForUpdate(ctx, tx, authID)
	if err != nil {
		return err
	}

	auth.UsedUnits -= units
	if auth.UsedUnits < 0 {
		s.log.Warn("unit release clamped at zero",
			zap.String("authorization_id", authID.String()),
			zap.Float64("units", units))
		auth.UsedUnits = 0
	}
	if auth.Status == domain.AuthStatusExhausted && !auth.Exhausted() {
		auth.Status = domain.AuthStatusActive
	}
	auth.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, tx, auth)
}

func (s *Service) ExpireDue(ctx context.Context) (int64, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return 0, domain.ErrAuthorizationNotFound
	}
	return s.repo.ExpireDue(ctx, s.db, orgID, s.clock.Now())
}

func (s *Service) ExpireAllDue(ctx context.Context) (int64, error) {
	return s.repo.ExpireAllDue(ctx, s.db, s.clock.Now())
}
