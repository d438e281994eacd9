package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/carebridge/revcycle/internal/actorctx"
	auditdomain "github.com/carebridge/revcycle/internal/audit/domain"
	authdomain "github.com/carebridge/revcycle/internal/authorization/domain"
	"github.com/carebridge/revcycle/internal/claim/domain"
	"github.com/carebridge/revcycle/internal/clock"
	"github.com/carebridge/revcycle/internal/observability/metrics"
	svcdomain "github.com/carebridge/revcycle/internal/servicedelivery/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	Metrics     *metrics.Metrics
	Repo        domain.Repository
	ServiceRepo svcdomain.Repository
	Validator   svcdomain.Validator
	AuthService authdomain.Service
	Audit       auditdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	metrics     *metrics.Metrics
	repo        domain.Repository
	serviceRepo svcdomain.Repository
	validator   svcdomain.Validator
	authService authdomain.Service
	audit       auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("claim.service"),
		clock:       p.Clock,
		genID:       p.GenID,
		metrics:     p.Metrics,
		repo:        p.Repo,
		serviceRepo: p.ServiceRepo,
		validator:   p.Validator,
		authService: p.AuthService,
		audit:       p.Audit,
	}
}

func (s *Service) CreateFromServices(ctx context.Context, req domain.CreateClaimRequest) (*domain.CreateClaimResponse, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrClaimNotFound
	}
	if len(req.ServiceIDs) == 0 {
		return nil, domain.ErrNoServices
	}

	serviceIDs := make([]snowflake.ID, 0, len(req.ServiceIDs))
	for _, raw := range req.ServiceIDs {
		serviceIDs = append(serviceIDs, snowflake.ID(raw))
	}
	payerID := snowflake.ID(req.PayerID)

	results, err := s.validator.ValidateForConversion(ctx, serviceIDs, payerID)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		if !res.IsValid {
			return &domain.CreateClaimResponse{ValidationResults: results}, svcdomain.ErrValidationFailed
		}
	}

	now := s.clock.Now()
	var claim *domain.Claim
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		services, err := s.serviceRepo.FindByIDsForUpdate(ctx, tx, orgID, serviceIDs)
		if err != nil {
			return err
		}
		if len(services) != len(serviceIDs) {
			return svcdomain.ErrServiceNotFound
		}

		var (
			clientID   snowflake.ID
			totalCents int64
			rangeStart time.Time
			rangeEnd   time.Time
		)
		for i := range services {
			svc := &services[i]
			// The pre-check above ran without locks. Re-check the
			// double-billing guard under the row lock so a racing
			// conversion loses with a conflict instead of double billing.
			if svc.Billed() {
				return svcdomain.ErrServiceBilled
			}
			if clientID == 0 {
				clientID = svc.ClientID
			} else if svc.ClientID != clientID {
				return domain.ErrMixedClients
			}
			totalCents += svc.AmountCents
			if rangeStart.IsZero() || svc.ServiceDate.Before(rangeStart) {
				rangeStart = svc.ServiceDate
			}
			if rangeEnd.IsZero() || svc.ServiceDate.After(rangeEnd) {
				rangeEnd = svc.ServiceDate
			}
		}

		number, err := s.repo.NextClaimNumber(ctx, tx, orgID, now.Year())
		if err != nil {
			return err
		}

		created := domain.Claim{
			ID:               s.genID.Generate(),
			OrgID:            orgID,
			ClaimNumber:      number,
			ClientID:         clientID,
			PayerID:          payerID,
			Status:           domain.StatusDraft,
			TotalAmountCents: totalCents,
			ServiceStartDate: rangeStart,
			ServiceEndDate:   rangeEnd,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.repo.Insert(ctx, tx, &created); err != nil {
			return err
		}

		for i := range services {
			svc := &services[i]
			if svc.AuthorizationID != nil {
				if err := s.authService.ConsumeUnits(ctx, tx, *svc.AuthorizationID, svc.UnitsDelivered); err != nil {
					return err
				}
			}
			claimID := created.ID
			svc.ClaimID = &claimID
			svc.BillingStatus = svcdomain.BillingStatusInClaim
			svc.UpdatedAt = now
			if err := s.serviceRepo.Update(ctx, tx, svc); err != nil {
				return err
			}
		}

		claim = &created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordClaimTransition(ctx, "", string(domain.StatusDraft))
	_ = s.audit.Record(ctx, "claim.created", "claim", claim.ID.String(), map[string]any{
		"claim_number":       claim.ClaimNumber,
		"total_amount_cents": claim.TotalAmountCents,
		"service_count":      len(serviceIDs),
	})
	return &domain.CreateClaimResponse{Claim: claim, ValidationResults: results}, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Claim, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrClaimNotFound
	}
	return s.repo.FindByID(ctx, s.db, orgID, id)
}

func (s *Service) List(ctx context.Context, req domain.ListClaimsRequest) ([]domain.Claim, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrClaimNotFound
	}
	return s.repo.List(ctx, s.db, orgID, req)
}

// Revalidate re-runs billing validation over the claim's services and moves
// the claim between DRAFT and VALIDATED accordingly.
func (s *Service) Revalidate(ctx context.Context, id snowflake.ID) (*domain.Claim, []svcdomain.ValidationResult, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, nil, domain.ErrClaimNotFound
	}

	claim, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, nil, err
	}
	if claim.Status != domain.StatusDraft && claim.Status != domain.StatusValidated {
		return nil, nil, &domain.InvalidTransitionError{From: claim.Status, To: domain.StatusValidated}
	}

	services, err := s.serviceRepo.FindByClaim(ctx, s.db, orgID, id)
	if err != nil {
		return nil, nil, err
	}
	serviceIDs := make([]snowflake.ID, 0, len(services))
	for _, svc := range services {
		serviceIDs = append(serviceIDs, svc.ID)
	}

	results, err := s.validator.Validate(ctx, serviceIDs)
	if err != nil {
		return nil, nil, err
	}
	allValid := true
	for _, res := range results {
		if !res.IsValid {
			allValid = false
			break
		}
	}

	target := domain.StatusValidated
	if !allValid {
		target = domain.StatusDraft
	}
	if claim.Status != target {
		claim, err = s.transition(ctx, claim, target, func(c *domain.Claim) error { return nil })
		if err != nil {
			return nil, nil, err
		}
	}
	return claim, results, nil
}

func (s *Service) Submit(ctx context.Context, id snowflake.ID, req domain.SubmitClaimRequest) (*domain.Claim, error) {
	if req.Method == "" {
		return nil, domain.ErrSubmissionIncomplete
	}
	claim, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	claim, err = s.transition(ctx, claim, domain.StatusSubmitted, func(c *domain.Claim) error {
		c.SubmissionDate = &now
		c.SubmissionMethod = req.Method
		return nil
	})
	if err != nil {
		return nil, err
	}

	services, err := s.serviceRepo.FindByClaim(ctx, s.db, claim.OrgID, claim.ID)
	if err != nil {
		return nil, err
	}
	for i := range services {
		services[i].BillingStatus = svcdomain.BillingStatusBilled
		services[i].UpdatedAt = now
		if err := s.serviceRepo.Update(ctx, s.db, &services[i]); err != nil {
			return nil, err
		}
	}
	return claim, nil
}

func (s *Service) Acknowledge(ctx context.Context, id snowflake.ID) (*domain.Claim, error) {
	claim, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, claim, domain.StatusAcknowledged, nil)
}

func (s *Service) MarkPending(ctx context.Context, id snowflake.ID) (*domain.Claim, error) {
	claim, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, claim, domain.StatusPending, nil)
}

func (s *Service) Appeal(ctx context.Context, id snowflake.ID) (*domain.Claim, error) {
	claim, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, claim, domain.StatusAppealed, nil)
}

func (s *Service) FinalizeDenial(ctx context.Context, id snowflake.ID) (*domain.Claim, error) {
	claim, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	claim, err = s.transition(ctx, claim, domain.StatusFinalDenied, nil)
	if err != nil {
		return nil, err
	}

	services, err := s.serviceRepo.FindByClaim(ctx, s.db, claim.OrgID, claim.ID)
	if err != nil {
		return nil, err
	}
	for i := range services {
		services[i].BillingStatus = svcdomain.BillingStatusDenied
		services[i].UpdatedAt = now
		if err := s.serviceRepo.Update(ctx, s.db, &services[i]); err != nil {
			return nil, err
		}
	}
	return claim, nil
}

// Void releases every authorization unit the claim consumed and returns its
// services to UNBILLED, all inside one transaction.
func (s *Service) Void(ctx context.Context, id snowflake.ID) (*domain.Claim, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrClaimNotFound
	}

	now := s.clock.Now()
	var voided *domain.Claim
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if claim.OrgID != orgID {
			return domain.ErrClaimNotFound
		}

		from := claim.Status
		next, err := domain.Transition(claim.Status, domain.StatusVoid)
		if err != nil {
			return err
		}
		claim.Status = next
		claim.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, claim); err != nil {
			return err
		}

		services, err := s.serviceRepo.FindByClaim(ctx, tx, orgID, claim.ID)
		if err != nil {
			return err
		}
		for i := range services {
			svc := &services[i]
			if svc.AuthorizationID != nil {
				if err := s.authService.ReleaseUnits(ctx, tx, *svc.AuthorizationID, svc.UnitsDelivered); err != nil {
					return err
				}
			}
			svc.ClaimID = nil
			svc.BillingStatus = svcdomain.BillingStatusUnbilled
			svc.UpdatedAt = now
			if err := s.serviceRepo.Update(ctx, tx, svc); err != nil {
				return err
			}
		}

		s.metrics.RecordClaimTransition(ctx, string(from), string(domain.StatusVoid))
		voided = claim
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = s.audit.Record(ctx, "claim.voided", "claim", voided.ID.String(), map[string]any{
		"claim_number": voided.ClaimNumber,
	})
	return voided, nil
}

func (s *Service) Resubmit(ctx context.Context, id snowflake.ID) (*domain.Claim, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrClaimNotFound
	}

	now := s.clock.Now()
	var replacement *domain.Claim
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		original, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if original.OrgID != orgID {
			return domain.ErrClaimNotFound
		}
		if original.Status != domain.StatusDenied && original.Status != domain.StatusFinalDenied {
			return domain.ErrNotResubmittable
		}

		services, err := s.serviceRepo.FindByClaim(ctx, tx, orgID, original.ID)
		if err != nil {
			return err
		}
		if len(services) == 0 {
			return domain.ErrNoServices
		}

		number, err := s.repo.NextClaimNumber(ctx, tx, orgID, now.Year())
		if err != nil {
			return err
		}

		originalID := original.ID
		created := domain.Claim{
			ID:               s.genID.Generate(),
			OrgID:            orgID,
			ClaimNumber:      number,
			ClientID:         original.ClientID,
			PayerID:          original.PayerID,
			Status:           domain.StatusDraft,
			TotalAmountCents: original.TotalAmountCents,
			ServiceStartDate: original.ServiceStartDate,
			ServiceEndDate:   original.ServiceEndDate,
			OriginalClaimID:  &originalID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.repo.Insert(ctx, tx, &created); err != nil {
			return err
		}

		// The original conversion already consumed authorization units and
		// the denial never released them, so the replacement re-bills the
		// same delivered care without touching the ledger.
		for i := range services {
			svc := &services[i]
			claimID := created.ID
			svc.ClaimID = &claimID
			svc.BillingStatus = svcdomain.BillingStatusInClaim
			svc.UpdatedAt = now
			if err := s.serviceRepo.Update(ctx, tx, svc); err != nil {
				return err
			}
		}

		replacement = &created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordClaimTransition(ctx, "", string(domain.StatusDraft))
	_ = s.audit.Record(ctx, "claim.resubmitted", "claim", replacement.ID.String(), map[string]any{
		"claim_number":      replacement.ClaimNumber,
		"original_claim_id": id.String(),
	})
	return replacement, nil
}

// ApplyAdjudication is called by the reconciliation flow inside its
// transaction. A payment landing on an ACKNOWLEDGED claim steps through
// PENDING so the recorded history only ever walks lifecycle edges.
func (s *Service) ApplyAdjudication(ctx context.Context, tx *gorm.DB, claimID snowflake.ID, adj domain.Adjudication) (*domain.Claim, error) {
	claim, err := s.repo.FindByIDForUpdate(ctx, tx, claimID)
	if err != nil {
		return nil, err
	}
	if !domain.PaymentAppliable(claim.Status) {
		return nil, domain.ErrNotAdjudicable
	}

	from := claim.Status
	if claim.Status == domain.StatusAcknowledged {
		next, err := domain.Transition(claim.Status, domain.StatusPending)
		if err != nil {
			return nil, err
		}
		claim.Status = next
	}
	if claim.Status != adj.ToStatus {
		next, err := domain.Transition(claim.Status, adj.ToStatus)
		if err != nil {
			return nil, err
		}
		claim.Status = next
	}

	adjDate := adj.AdjudicationDate
	claim.AdjudicationDate = &adjDate
	if adj.ToStatus == domain.StatusDenied {
		claim.DenialReason = adj.DenialReason
	}
	claim.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, tx, claim); err != nil {
		return nil, err
	}

	if err := s.syncServiceBilling(ctx, tx, claim); err != nil {
		return nil, err
	}

	s.metrics.RecordClaimTransition(ctx, string(from), string(claim.Status))
	return claim, nil
}

func (s *Service) syncServiceBilling(ctx context.Context, tx *gorm.DB, claim *domain.Claim) error {
	var target svcdomain.BillingStatus
	switch claim.Status {
	case domain.StatusPaid:
		target = svcdomain.BillingStatusPaid
	case domain.StatusDenied:
		target = svcdomain.BillingStatusDenied
	default:
		return nil
	}

	services, err := s.serviceRepo.FindByClaim(ctx, tx, claim.OrgID, claim.ID)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	for i := range services {
		services[i].BillingStatus = target
		services[i].UpdatedAt = now
		if err := s.serviceRepo.Update(ctx, tx, &services[i]); err != nil {
			return err
		}
	}
	return nil
}

// transition applies a single lifecycle edge with an optional mutation hook
// run before persisting.
func (s *Service) transition(ctx context.Context, claim *domain.Claim, to domain.ClaimStatus, mutate func(*domain.Claim) error) (*domain.Claim, error) {
	from := claim.Status
	next, err := domain.Transition(claim.Status, to)
	if err != nil {
		return nil, err
	}
	claim.Status = next
	if mutate != nil {
		if err := mutate(claim); err != nil {
			return nil, err
		}
	}
	claim.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, claim); err != nil {
		return nil, err
	}

	s.metrics.RecordClaimTransition(ctx, string(from), string(to))
	_ = s.audit.Record(ctx, "claim.status_changed", "claim", claim.ID.String(), map[string]any{
		"from": string(from),
		"to":   string(to),
	})
	return claim, nil
}
