package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/carebridge/revcycle/internal/actorctx"
	authdomain "github.com/carebridge/revcycle/internal/authorization/domain"
	"github.com/carebridge/revcycle/internal/clock"
	"github.com/carebridge/revcycle/internal/observability/metrics"
	payerdomain "github.com/carebridge/revcycle/internal/payer/domain"
	"github.com/carebridge/revcycle/internal/servicedelivery/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ValidatorParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Metrics   *metrics.Metrics
	Repo      domain.Repository
	AuthRepo  authdomain.Repository
	PayerRepo payerdomain.Repository
}

// Validator decides whether delivered services are ready to bill. It never
// writes; callers reserve authorization units and flip billing status only
// after every service in the batch validates.
type Validator struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	metrics   *metrics.Metrics
	repo      domain.Repository
	authRepo  authdomain.Repository
	payerRepo payerdomain.Repository
}

func NewValidator(p ValidatorParams) domain.Validator {
	return &Validator{
		db:        p.DB,
		log:       p.Log.Named("servicedelivery.validator"),
		clock:     p.Clock,
		metrics:   p.Metrics,
		repo:      p.Repo,
		authRepo:  p.AuthRepo,
		payerRepo: p.PayerRepo,
	}
}

func (v *Validator) Validate(ctx context.Context, serviceIDs []snowflake.ID) ([]domain.ValidationResult, error) {
	return v.validate(ctx, serviceIDs, nil, false)
}

func (v *Validator) ValidateForConversion(ctx context.Context, serviceIDs []snowflake.ID, payerID snowflake.ID) ([]domain.ValidationResult, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrServiceNotFound
	}
	payer, err := v.payerRepo.FindByID(ctx, v.db, orgID, payerID)
	if err != nil {
		return nil, err
	}
	return v.validate(ctx, serviceIDs, payer, true)
}

func (v *Validator) validate(ctx context.Context, serviceIDs []snowflake.ID, payer *payerdomain.Payer, forConversion bool) ([]domain.ValidationResult, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrServiceNotFound
	}
	if len(serviceIDs) == 0 {
		return nil, domain.ErrServiceNotFound
	}

	seen := make(map[snowflake.ID]struct{}, len(serviceIDs))
	for _, id := range serviceIDs {
		if _, dup := seen[id]; dup {
			return nil, domain.ErrDuplicateServiceID
		}
		seen[id] = struct{}{}
	}

	services, err := v.repo.FindByIDs(ctx, v.db, orgID, serviceIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID]*domain.DeliveredService, len(services))
	for i := range services {
		byID[services[i].ID] = &services[i]
	}

	// Pending unit consumption per authorization across this batch, so two
	// services sharing one authorization cannot each pass alone while the
	// pair overdraws it.
	pendingUnits := make(map[snowflake.ID]float64)
	authCache := make(map[snowflake.ID]*authdomain.Authorization)

	results := make([]domain.ValidationResult, 0, len(serviceIDs))
	for _, id := range serviceIDs {
		svc, found := byID[id]
		if !found {
			return nil, domain.ErrServiceNotFound
		}
		res := v.validateOne(ctx, svc, payer, forConversion, pendingUnits, authCache)
		if !res.IsValid {
			for _, issue := range res.Errors {
				v.metrics.RecordValidationFailure(ctx, issue.Code)
			}
		}
		results = append(results, res)
	}
	return results, nil
}

func (v *Validator) validateOne(
	ctx context.Context,
	svc *domain.DeliveredService,
	payer *payerdomain.Payer,
	forConversion bool,
	pendingUnits map[snowflake.ID]float64,
	authCache map[snowflake.ID]*authdomain.Authorization,
) domain.ValidationResult {
	res := domain.ValidationResult{
		ServiceID: svc.ID,
		IsValid:   true,
		Errors:    []domain.ValidationIssue{},
		Warnings:  []domain.ValidationIssue{},
	}

	v.checkDocumentation(svc, &res)
	v.checkAuthorization(ctx, svc, payer, pendingUnits, authCache, &res)

	if forConversion {
		if svc.Billed() {
			res.AddError(domain.CodeAlreadyBilled,
				fmt.Sprintf("service is %s and cannot be billed again", svc.BillingStatus))
		}
		if svc.BillingStatus == domain.BillingStatusVoid {
			res.AddError(domain.CodeServiceVoided, "service has been voided")
		}
	}
	return res
}

func (v *Validator) checkDocumentation(svc *domain.DeliveredService, res *domain.ValidationResult) {
	res.Documentation = domain.DocumentationResult{
		IsComplete: svc.DocumentationStatus == domain.DocStatusComplete,
		Status:     string(svc.DocumentationStatus),
	}
	if len(svc.MissingDocs) > 0 {
		var items []string
		if err := json.Unmarshal(svc.MissingDocs, &items); err == nil {
			res.Documentation.MissingItems = items
		}
	}

	switch svc.DocumentationStatus {
	case domain.DocStatusComplete:
	case domain.DocStatusRejected:
		res.AddError(domain.CodeDocRejected, "documentation was rejected and must be corrected")
	case domain.DocStatusPendingReview:
		res.AddError(domain.CodeDocPendingReview, "documentation is awaiting review")
	default:
		res.AddError(domain.CodeDocIncomplete, "documentation is incomplete")
	}
}

func (v *Validator) checkAuthorization(
	ctx context.Context,
	svc *domain.DeliveredService,
	payer *payerdomain.Payer,
	pendingUnits map[snowflake.ID]float64,
	authCache map[snowflake.ID]*authdomain.Authorization,
	res *domain.ValidationResult,
) {
	if svc.AuthorizationID == nil {
		res.Authorization = domain.AuthorizationResult{IsAuthorized: false}
		if payer != nil && !payer.RequiresAuthorization {
			return
		}
		res.AddError(domain.CodeAuthMissing, "service has no authorization")
		return
	}

	authID := *svc.AuthorizationID
	auth, cached := authCache[authID]
	if !cached {
		loaded, err := v.authRepo.FindByID(ctx, v.db, svc.OrgID, authID)
		if err != nil {
			res.Authorization = domain.AuthorizationResult{IsAuthorized: false, AuthorizationID: &authID}
			res.AddError(domain.CodeAuthMissing, "authorization not found")
			return
		}
		auth = loaded
		authCache[authID] = auth
	}

	reserved := pendingUnits[authID]
	remaining := auth.AuthorizedUnits - auth.UsedUnits - reserved
	if remaining < 0 {
		remaining = 0
	}
	expiration := auth.EndDate
	res.Authorization = domain.AuthorizationResult{
		IsAuthorized:    true,
		AuthorizationID: &authID,
		AuthorizedUnits: auth.AuthorizedUnits,
		UsedUnits:       auth.UsedUnits + reserved,
		RemainingUnits:  remaining,
		ExpirationDate:  &expiration,
	}

	if auth.Status != authdomain.AuthStatusActive {
		res.Authorization.IsAuthorized = false
		res.AddError(domain.CodeAuthNotActive,
			fmt.Sprintf("authorization is %s", auth.Status))
	}
	if !auth.CoversDate(svc.ServiceDate) {
		res.Authorization.IsAuthorized = false
		res.AddError(domain.CodeAuthDateOutOfRange, "service date falls outside the authorization window")
	}

	var coveredTypes []string
	if len(auth.ServiceTypes) > 0 {
		_ = json.Unmarshal(auth.ServiceTypes, &coveredTypes)
	}
	if !auth.CoversServiceType(svc.ServiceType, coveredTypes) {
		res.Authorization.IsAuthorized = false
		res.AddError(domain.CodeAuthServiceType,
			fmt.Sprintf("service type %s is not covered by the authorization", svc.ServiceType))
	}

	if svc.UnitsDelivered > remaining+authdomain.UnitEpsilon {
		res.Authorization.IsAuthorized = false
		res.AddError(domain.CodeAuthUnitsExceeded,
			fmt.Sprintf("units exceed authorization: requested %.2f, remaining %.2f", svc.UnitsDelivered, remaining))
	} else {
		pendingUnits[authID] += svc.UnitsDelivered
	}

	if res.Authorization.IsAuthorized {
		now := v.clock.Now()
		until := auth.EndDate.Sub(now)
		if until > 0 && until <= 30*24*time.Hour {
			res.AddWarning(domain.WarnAuthExpiringSoon,
				fmt.Sprintf("authorization expires on %s", auth.EndDate.Format("2006-01-02")))
		}
		if auth.AuthorizedUnits > 0 {
			afterUse := remaining - svc.UnitsDelivered
			if afterUse/auth.AuthorizedUnits < 0.10 {
				res.AddWarning(domain.WarnAuthLowRemainingUnit,
					fmt.Sprintf("authorization has %.2f units remaining after this service", afterUse))
			}
		}
	}
}
