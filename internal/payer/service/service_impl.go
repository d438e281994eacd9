package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/carebridge/revcycle/internal/actorctx"
	auditdomain "github.com/carebridge/revcycle/internal/audit/domain"
	"github.com/carebridge/revcycle/internal/clock"
	"github.com/carebridge/revcycle/internal/payer/domain"
	"github.com/carebridge/revcycle/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
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
		log:   p.Log.Named("payer.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
		audit: p.Audit,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreatePayerRequest) (*domain.Payer, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrPayerNotFound
	}
	if !req.PayerType.Valid() {
		return nil, domain.ErrInvalidPayerType
	}

	requiresAuth := true
	if req.RequiresAuthorization != nil {
		requiresAuth = *req.RequiresAuthorization
	}
	turnaround := req.AvgTurnaroundDays
	if turnaround <= 0 {
		turnaround = 30
	}
	appealWindow := req.AppealWindowDays
	if appealWindow <= 0 {
		appealWindow = 60
	}

	now := s.clock.Now()
	payer := domain.Payer{
		ID:                    s.genID.Generate(),
		OrgID:                 orgID,
		Code:                  strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:                  strings.TrimSpace(req.Name),
		PayerType:             req.PayerType,
		RequiresAuthorization: requiresAuth,
		AvgTurnaroundDays:     turnaround,
		AppealWindowDays:      appealWindow,
		Active:                true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.repo.Insert(ctx, s.db, &payer); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrPayerCodeConflict
		}
		return nil, err
	}

	_ = s.audit.Record(ctx, "payer.created", "payer", payer.ID.String(), map[string]any{
		"code":       payer.Code,
		"payer_type": string(payer.PayerType),
	})
	return &payer, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Payer, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrPayerNotFound
	}
	return s.repo.FindByID(ctx, s.db, orgID, id)
}

func (s *Service) List(ctx context.Context) ([]domain.Payer, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrPayerNotFound
	}
	return s.repo.FindByOrg(ctx, s.db, orgID)
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdatePayerRequest) (*domain.Payer, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrPayerNotFound
	}

	payer, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		payer.Name = strings.TrimSpace(*req.Name)
	}
	if req.RequiresAuthorization != nil {
		payer.RequiresAuthorization = *req.RequiresAuthorization
	}
	if req.AvgTurnaroundDays != nil && *req.AvgTurnaroundDays > 0 {
		payer.AvgTurnaroundDays = *req.AvgTurnaroundDays
	}
	if req.AppealWindowDays != nil && *req.AppealWindowDays > 0 {
		payer.AppealWindowDays = *req.AppealWindowDays
	}
	if req.Active != nil {
		payer.Active = *req.Active
	}
	payer.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, payer); err != nil {
		return nil, err
	}

	_ = s.audit.Record(ctx, "payer.updated", "payer", payer.ID.String(), nil)
	return payer, nil
}
