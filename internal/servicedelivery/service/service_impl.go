package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/carebridge/revcycle/internal/actorctx"
	auditdomain "github.com/carebridge/revcycle/internal/audit/domain"
	"github.com/carebridge/revcycle/internal/clock"
	"github.com/carebridge/revcycle/internal/servicedelivery/domain"
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
		log:   p.Log.Named("servicedelivery.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
		audit: p.Audit,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateServiceRequest) (*domain.DeliveredService, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrServiceNotFound
	}
	if req.UnitsDelivered <= 0 || req.RateCents < 0 {
		return nil, domain.ErrInvalidUnits
	}

	var authID *snowflake.ID
	if req.AuthorizationID != nil {
		id := snowflake.ID(*req.AuthorizationID)
		authID = &id
	}

	now := s.clock.Now()
	svc := domain.DeliveredService{
		ID:                  s.genID.Generate(),
		OrgID:               orgID,
		ClientID:            snowflake.ID(req.ClientID),
		ProgramID:           snowflake.ID(req.ProgramID),
		AuthorizationID:     authID,
		ServiceType:         strings.TrimSpace(req.ServiceType),
		ServiceDate:         req.ServiceDate.UTC(),
		UnitsDelivered:      req.UnitsDelivered,
		RateCents:           req.RateCents,
		AmountCents:         domain.ComputeAmountCents(req.UnitsDelivered, req.RateCents),
		DocumentationStatus: domain.DocStatusIncomplete,
		BillingStatus:       domain.BillingStatusUnbilled,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.repo.Insert(ctx, s.db, &svc); err != nil {
		return nil, err
	}

	_ = s.audit.Record(ctx, "service.created", "service", svc.ID.String(), map[string]any{
		"service_type": svc.ServiceType,
		"amount_cents": svc.AmountCents,
	})
	return &svc, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.DeliveredService, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrServiceNotFound
	}
	return s.repo.FindByID(ctx, s.db, orgID, id)
}

func (s *Service) List(ctx context.Context, req domain.ListServicesRequest) ([]domain.DeliveredService, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrServiceNotFound
	}
	return s.repo.List(ctx, s.db, orgID, req)
}

func (s *Service) UpdateDocumentation(ctx context.Context, id snowflake.ID, req domain.UpdateDocumentationRequest) (*domain.DeliveredService, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrServiceNotFound
	}
	switch req.Status {
	case domain.DocStatusIncomplete, domain.DocStatusComplete, domain.DocStatusRejected, domain.DocStatusPendingReview:
	default:
		return nil, domain.ErrInvalidDocStatus
	}

	svc, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if svc.Billed() {
		return nil, domain.ErrServiceBilled
	}

	svc.DocumentationStatus = req.Status
	if req.Status == domain.DocStatusComplete {
		svc.MissingDocs = nil
	} else if req.MissingDocs != nil {
		raw, err := json.Marshal(req.MissingDocs)
		if err != nil {
			return nil, err
		}
		svc.MissingDocs = datatypes.JSON(raw)
	}
	svc.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, svc); err != nil {
		return nil, err
	}

	_ = s.audit.Record(ctx, "service.documentation_updated", "service", svc.ID.String(), map[string]any{
		"status": string(req.Status),
	})
	return svc, nil
}
