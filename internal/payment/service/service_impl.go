package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/carebridge/revcycle/internal/actorctx"
	auditdomain "github.com/carebridge/revcycle/internal/audit/domain"
	claimdomain "github.com/carebridge/revcycle/internal/claim/domain"
	"github.com/carebridge/revcycle/internal/clock"
	"github.com/carebridge/revcycle/internal/config"
	"github.com/carebridge/revcycle/internal/payment/domain"
	"github.com/carebridge/revcycle/internal/payment/matcher"
	payerdomain "github.com/carebridge/revcycle/internal/payer/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	GenID        *snowflake.Node
	Billing      *config.BillingConfigHolder
	Repo         domain.Repository
	ClaimRepo    claimdomain.Repository
	ClaimService claimdomain.Service
	PayerRepo    payerdomain.Repository
	Remit        domain.RemittanceLookup
	Audit        auditdomain.Service
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	genID        *snowflake.Node
	billing      *config.BillingConfigHolder
	repo         domain.Repository
	claimRepo    claimdomain.Repository
	claimService claimdomain.Service
	payerRepo    payerdomain.Repository
	remit        domain.RemittanceLookup
	audit        auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payment.service"),
		clock:        p.Clock,
		genID:        p.GenID,
		billing:      p.Billing,
		repo:         p.Repo,
		claimRepo:    p.ClaimRepo,
		claimService: p.ClaimService,
		payerRepo:    p.PayerRepo,
		remit:        p.Remit,
		audit:        p.Audit,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreatePaymentRequest) (*domain.Payment, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	if req.AmountCents <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if _, err := s.payerRepo.FindByID(ctx, s.db, orgID, snowflake.ID(req.PayerID)); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	payment := domain.Payment{
		ID:                   s.genID.Generate(),
		OrgID:                orgID,
		PayerID:              snowflake.ID(req.PayerID),
		PaymentDate:          req.PaymentDate.UTC(),
		AmountCents:          req.AmountCents,
		Method:               req.Method,
		ReconciliationStatus: domain.ReconStatusUnreconciled,
		ReferenceNumber:      strings.TrimSpace(req.ReferenceNumber),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		return nil, err
	}

	_ = s.audit.Record(ctx, "payment.created", "payment", payment.ID.String(), map[string]any{
		"amount_cents": payment.AmountCents,
		"method":       string(payment.Method),
	})
	return &payment, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return s.repo.FindByID(ctx, s.db, orgID, id)
}

func (s *Service) List(ctx context.Context, req domain.ListPaymentsRequest) ([]domain.Payment, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return s.repo.List(ctx, s.db, orgID, req)
}

func (s *Service) SuggestMatches(ctx context.Context, paymentID snowflake.ID) ([]domain.MatchSuggestion, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	payment, err := s.repo.FindByID(ctx, s.db, orgID, paymentID)
	if err != nil {
		return nil, err
	}

	cfg := s.billing.Get()
	turnaroundDays := cfg.DefaultTurnaroundDays
	if payer, err := s.payerRepo.FindByID(ctx, s.db, orgID, payment.PayerID); err == nil && payer.AvgTurnaroundDays > 0 {
		turnaroundDays = payer.AvgTurnaroundDays
	}

	claims, err := s.claimRepo.ListOutstandingByPayer(ctx, s.db, orgID, payment.PayerID)
	if err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return []domain.MatchSuggestion{}, nil
	}

	claimIDs := make([]snowflake.ID, 0, len(claims))
	for _, c := range claims {
		claimIDs = append(claimIDs, c.ID)
	}
	paidTotals, err := s.repo.PaidTotalsByClaims(ctx, s.db, claimIDs)
	if err != nil {
		return nil, err
	}

	hints := map[string]*matcher.RemittanceHint{}
	if payment.RemittanceID != nil {
		lines, err := s.remit.LinesForRemittance(ctx, s.db, *payment.RemittanceID)
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			hints[line.ClaimNumber] = &matcher.RemittanceHint{
				ClaimNumber:     line.ClaimNumber,
				PaidAmountCents: line.PaidAmountCents,
			}
		}
	}

	facts := matcher.PaymentFacts{AmountCents: payment.AmountCents, PaymentDate: payment.PaymentDate}
	suggestions := make([]domain.MatchSuggestion, 0, len(claims))
	for _, c := range claims {
		outstanding := c.TotalAmountCents - paidTotals[c.ID]
		if outstanding <= 0 {
			continue
		}
		cand := matcher.Candidate{
			ClaimNumber:      c.ClaimNumber,
			OutstandingCents: outstanding,
			ServiceStartDate: c.ServiceStartDate,
			ServiceEndDate:   c.ServiceEndDate,
			SubmissionDate:   c.SubmissionDate,
		}
		res := matcher.ScoreCandidate(facts, cand, hints[c.ClaimNumber], cfg.MatcherWeights, turnaroundDays)
		if res.Score < cfg.MinMatchScore {
			continue
		}
		suggestions = append(suggestions, domain.MatchSuggestion{
			Claim:            c,
			OutstandingCents: outstanding,
			MatchScore:       res.Score,
			MatchReason:      res.Reason,
		})
	}

	// Best score first; ties go to the closest amount, then the oldest
	// claim (FIFO collections priority).
	sort.SliceStable(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		if a.MatchScore != b.MatchScore {
			return a.MatchScore > b.MatchScore
		}
		da := absDiff(payment.AmountCents, a.OutstandingCents)
		db := absDiff(payment.AmountCents, b.OutstandingCents)
		if da != db {
			return da < db
		}
		return a.Claim.ServiceEndDate.Before(b.Claim.ServiceEndDate)
	})
	return suggestions, nil
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

func (s *Service) ApplyMatch(ctx context.Context, tx *gorm.DB, payment *domain.Payment, batchID snowflake.ID, inputs []domain.MatchInput) ([]domain.MatchOutcome, error) {
	if len(inputs) == 0 {
		return nil, domain.ErrNothingToApply
	}

	cfg := s.billing.Get()

	seen := make(map[int64]struct{}, len(inputs))
	var allocated int64
	for _, in := range inputs {
		if _, dup := seen[in.ClaimID]; dup {
			return nil, domain.ErrDuplicateClaimInput
		}
		seen[in.ClaimID] = struct{}{}
		if in.AmountCents < 0 {
			return nil, domain.ErrInvalidAmount
		}
		allocated += in.AmountCents
		for _, adj := range in.Adjustments {
			if adj.Type == domain.AdjTransfer {
				allocated += adj.AmountCents
			}
		}
	}

	// Sum previously applied amounts so a second reconciliation on the
	// same payment cannot allocate past the check total.
	existing, err := s.repo.ClaimPaymentsByPayment(ctx, tx, payment.ID)
	if err != nil {
		return nil, err
	}
	for _, cp := range existing {
		allocated += cp.PaidAmountCents
	}
	if allocated > payment.AmountCents {
		return nil, domain.ErrOverAllocation
	}

	now := s.clock.Now()
	outcomes := make([]domain.MatchOutcome, 0, len(inputs))
	for _, in := range inputs {
		claimID := snowflake.ID(in.ClaimID)
		outcome := s.applyOne(ctx, tx, payment, batchID, claimID, in, cfg, now)
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (s *Service) applyOne(
	ctx context.Context,
	tx *gorm.DB,
	payment *domain.Payment,
	batchID snowflake.ID,
	claimID snowflake.ID,
	in domain.MatchInput,
	cfg config.BillingConfig,
	now time.Time,
) domain.MatchOutcome {
	outcome := domain.MatchOutcome{ClaimID: claimID}

	claim, err := s.claimRepo.FindByIDForUpdate(ctx, tx, claimID)
	if err != nil {
		outcome.ErrorCode = "NOT_FOUND"
		outcome.ErrorMessage = err.Error()
		return outcome
	}
	if claim.OrgID != payment.OrgID || claim.PayerID != payment.PayerID {
		outcome.ErrorCode = "NOT_FOUND"
		outcome.ErrorMessage = claimdomain.ErrClaimNotFound.Error()
		return outcome
	}
	if !claimdomain.PaymentAppliable(claim.Status) {
		outcome.ErrorCode = "CONFLICT"
		outcome.ErrorMessage = fmt.Sprintf("claim %s is %s and cannot accept payment", claim.ClaimNumber, claim.Status)
		return outcome
	}

	cp := domain.ClaimPayment{
		ID:              s.genID.Generate(),
		OrgID:           payment.OrgID,
		PaymentID:       payment.ID,
		ClaimID:         claimID,
		BatchID:         batchID,
		PaidAmountCents: in.AmountCents,
		PrevClaimStatus: claim.Status,
		CreatedAt:       now,
	}
	for _, adj := range in.Adjustments {
		cp.Adjustments = append(cp.Adjustments, domain.PaymentAdjustment{
			ID:             s.genID.Generate(),
			ClaimPaymentID: cp.ID,
			Type:           adj.Type,
			Code:           strings.ToUpper(strings.TrimSpace(adj.Code)),
			AmountCents:    adj.AmountCents,
			Description:    adj.Description,
		})
	}
	if err := s.repo.InsertClaimPayment(ctx, tx, &cp); err != nil {
		outcome.ErrorCode = "INTERNAL"
		outcome.ErrorMessage = err.Error()
		return outcome
	}

	paidTotals, err := s.repo.PaidTotalsByClaims(ctx, tx, []snowflake.ID{claimID})
	if err != nil {
		outcome.ErrorCode = "INTERNAL"
		outcome.ErrorMessage = err.Error()
		return outcome
	}
	cumulative := paidTotals[claimID]

	target, denialReason := adjudicationTarget(claim, &cp, cumulative, cfg)
	if target == "" {
		// Zero-amount application with non-denial adjustments leaves the
		// claim where it is; only the ClaimPayment line is recorded.
		outcome.ClaimPayment = &cp
		outcome.NewStatus = string(claim.Status)
		return outcome
	}

	updated, err := s.claimService.ApplyAdjudication(ctx, tx, claimID, claimdomain.Adjudication{
		ToStatus:         target,
		AdjudicationDate: payment.PaymentDate,
		DenialReason:     denialReason,
	})
	if err != nil {
		// A rejected transition must not leave the line behind, or the
		// claim would carry paid totals it never accepted.
		if delErr := s.repo.DeleteClaimPayment(ctx, tx, &cp); delErr != nil {
			outcome.ErrorCode = "INTERNAL"
			outcome.ErrorMessage = delErr.Error()
			return outcome
		}
		outcome.ErrorCode = "CONFLICT"
		outcome.ErrorMessage = err.Error()
		return outcome
	}

	outcome.ClaimPayment = &cp
	outcome.NewStatus = string(updated.Status)
	return outcome
}

// adjudicationTarget decides the lifecycle edge a claim payment drives.
// Fully paid within the rounding tolerance goes to PAID, any positive
// partial amount to PARTIAL_PAID, and a zero-amount line whose adjustments
// are all denial codes to DENIED with the dominant code as the reason.
func adjudicationTarget(claim *claimdomain.Claim, cp *domain.ClaimPayment, cumulativeCents int64, cfg config.BillingConfig) (claimdomain.ClaimStatus, string) {
	if cumulativeCents >= claim.TotalAmountCents-cfg.RoundingToleranceCents {
		return claimdomain.StatusPaid, ""
	}
	if cp.PaidAmountCents > 0 {
		return claimdomain.StatusPartialPaid, ""
	}

	if len(cp.Adjustments) == 0 {
		return "", ""
	}
	var dominant *domain.PaymentAdjustment
	for i := range cp.Adjustments {
		adj := &cp.Adjustments[i]
		if adj.Type != domain.AdjNoncovered && !cfg.IsDenialCode(adj.Code) {
			return "", ""
		}
		if dominant == nil || adj.AmountCents > dominant.AmountCents {
			dominant = adj
		}
	}

	reason := dominant.Code
	if reason == "" {
		reason = string(dominant.Type)
	}
	if dominant.Description != "" {
		reason = reason + ": " + dominant.Description
	}
	return claimdomain.StatusDenied, reason
}
