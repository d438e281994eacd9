package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/carebridge/revcycle/internal/actorctx"
	auditdomain "github.com/carebridge/revcycle/internal/audit/domain"
	claimdomain "github.com/carebridge/revcycle/internal/claim/domain"
	"github.com/carebridge/revcycle/internal/clock"
	"github.com/carebridge/revcycle/internal/config"
	"github.com/carebridge/revcycle/internal/observability/metrics"
	paymentdomain "github.com/carebridge/revcycle/internal/payment/domain"
	"github.com/carebridge/revcycle/internal/reconciliation/domain"
	remitdomain "github.com/carebridge/revcycle/internal/remittance/domain"
	svcdomain "github.com/carebridge/revcycle/internal/servicedelivery/domain"
	"github.com/carebridge/revcycle/pkg/db"
	"github.com/carebridge/revcycle/pkg/lock"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	lockTTL       = 30 * time.Second
	lockKeyFormat = "revcycle:recon:payment:%s"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Clock          clock.Clock
	GenID          *snowflake.Node
	Billing        *config.BillingConfigHolder
	Metrics        *metrics.Metrics
	Locker         *lock.Locker `optional:"true"`
	Repo           domain.Repository
	PaymentRepo    paymentdomain.Repository
	PaymentService paymentdomain.Service
	ClaimRepo      claimdomain.Repository
	ServiceRepo    svcdomain.Repository
	RemitRepo      remitdomain.Repository
	Audit          auditdomain.Service
}

type Engine struct {
	db             *gorm.DB
	log            *zap.Logger
	clock          clock.Clock
	genID          *snowflake.Node
	billing        *config.BillingConfigHolder
	metrics        *metrics.Metrics
	locker         *lock.Locker
	repo           domain.Repository
	paymentRepo    paymentdomain.Repository
	paymentService paymentdomain.Service
	claimRepo      claimdomain.Repository
	serviceRepo    svcdomain.Repository
	remitRepo      remitdomain.Repository
	audit          auditdomain.Service
}

func NewEngine(p Params) domain.Engine {
	return &Engine{
		db:             p.DB,
		log:            p.Log.Named("reconciliation.engine"),
		clock:          p.Clock,
		genID:          p.GenID,
		billing:        p.Billing,
		metrics:        p.Metrics,
		locker:         p.Locker,
		repo:           p.Repo,
		paymentRepo:    p.PaymentRepo,
		paymentService: p.PaymentService,
		claimRepo:      p.ClaimRepo,
		serviceRepo:    p.ServiceRepo,
		remitRepo:      p.RemitRepo,
		audit:          p.Audit,
	}
}

func (e *Engine) Reconcile(ctx context.Context, paymentID snowflake.ID, req domain.ReconcileRequest) (*domain.ReconcileResult, error) {
	return e.reconcile(ctx, paymentID, req, domain.SourceManual)
}

func (e *Engine) reconcile(ctx context.Context, paymentID snowflake.ID, req domain.ReconcileRequest, source domain.BatchSource) (*domain.ReconcileResult, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, paymentdomain.ErrPaymentNotFound
	}

	key := fmt.Sprintf(lockKeyFormat, paymentID)
	token, acquired, err := e.locker.TryLock(ctx, key, lockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, domain.ErrAlreadyReconciling
	}
	defer func() {
		_ = e.locker.Release(context.WithoutCancel(ctx), key, token)
	}()

	idemKey := strings.TrimSpace(req.IdempotencyKey)
	if idemKey == "" {
		idemKey = uuid.NewString()
	}

	now := e.clock.Now()
	var result *domain.ReconcileResult
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := e.paymentRepo.FindByIDForUpdate(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment.OrgID != orgID {
			return paymentdomain.ErrPaymentNotFound
		}

		batch := domain.ReconciliationBatch{
			ID:             e.genID.Generate(),
			OrgID:          orgID,
			PaymentID:      payment.ID,
			IdempotencyKey: idemKey,
			Source:         source,
			CreatedAt:      now,
		}
		if err := e.repo.InsertBatch(ctx, tx, &batch); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateRequest
			}
			return err
		}

		outcomes, err := e.paymentService.ApplyMatch(ctx, tx, payment, batch.ID, req.Matches)
		if err != nil {
			return err
		}

		var matchedCents int64
		errorCount := 0
		for _, out := range outcomes {
			if out.ErrorCode != "" {
				errorCount++
				continue
			}
			if out.ClaimPayment != nil {
				matchedCents += out.ClaimPayment.PaidAmountCents
			}
		}

		batch.MatchedAmountCents = matchedCents
		batch.ErrorCount = errorCount
		if err := tx.WithContext(ctx).Save(&batch).Error; err != nil {
			return err
		}

		if err := e.refreshPaymentStatus(ctx, tx, payment, errorCount > 0, now); err != nil {
			return err
		}

		result = &domain.ReconcileResult{
			Payment:            payment,
			Batch:              &batch,
			Outcomes:           outcomes,
			MatchedAmountCents: matchedCents,
			ErrorCount:         errorCount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.RecordReconciliation(ctx, string(source), string(result.Payment.ReconciliationStatus))
	_ = e.audit.Record(ctx, "payment.reconciled", "payment", paymentID.String(), map[string]any{
		"source":               string(source),
		"matched_amount_cents": result.MatchedAmountCents,
		"error_count":          result.ErrorCount,
	})
	return result, nil
}

// refreshPaymentStatus recomputes the aggregate status from everything
// applied to the payment so far. A per-claim failure in the latest attempt
// pins EXCEPTION without discarding the matched portion.
func (e *Engine) refreshPaymentStatus(ctx context.Context, tx *gorm.DB, payment *paymentdomain.Payment, hadErrors bool, now time.Time) error {
	cps, err := e.paymentRepo.ClaimPaymentsByPayment(ctx, tx, payment.ID)
	if err != nil {
		return err
	}
	var applied int64
	for _, cp := range cps {
		applied += cp.PaidAmountCents
	}

	switch {
	case hadErrors:
		payment.ReconciliationStatus = paymentdomain.ReconStatusException
	case applied == 0:
		payment.ReconciliationStatus = paymentdomain.ReconStatusUnreconciled
	case applied >= payment.AmountCents:
		payment.ReconciliationStatus = paymentdomain.ReconStatusReconciled
	default:
		payment.ReconciliationStatus = paymentdomain.ReconStatusPartial
	}
	payment.UpdatedAt = now
	return e.paymentRepo.Update(ctx, tx, payment)
}

func (e *Engine) AutoReconcile(ctx context.Context, paymentID snowflake.ID, req domain.AutoReconcileRequest) (*domain.ReconcileResult, error) {
	cfg := e.billing.Get()
	threshold := req.MatchThreshold
	if threshold <= 0 {
		threshold = cfg.AutoMatchThreshold
	}

	payment, err := e.paymentService.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	suggestions, err := e.paymentService.SuggestMatches(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	remaining := payment.AmountCents
	cps, err := e.paymentRepo.ClaimPaymentsByPayment(ctx, e.db, paymentID)
	if err != nil {
		return nil, err
	}
	for _, cp := range cps {
		remaining -= cp.PaidAmountCents
	}

	matches := make([]paymentdomain.MatchInput, 0, len(suggestions))
	for _, sug := range suggestions {
		if sug.MatchScore < threshold || remaining <= 0 {
			continue
		}
		amount := sug.OutstandingCents
		if amount > remaining {
			amount = remaining
		}
		matches = append(matches, paymentdomain.MatchInput{
			ClaimID:     int64(sug.Claim.ID),
			AmountCents: amount,
		})
		remaining -= amount
	}
	if len(matches) == 0 {
		return nil, domain.ErrNoCandidates
	}

	return e.reconcile(ctx, paymentID, domain.ReconcileRequest{Matches: matches}, domain.SourceAuto)
}

func (e *Engine) Undo(ctx context.Context, paymentID snowflake.ID) (*domain.UndoResult, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, paymentdomain.ErrPaymentNotFound
	}

	key := fmt.Sprintf(lockKeyFormat, paymentID)
	token, acquired, err := e.locker.TryLock(ctx, key, lockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, domain.ErrAlreadyReconciling
	}
	defer func() {
		_ = e.locker.Release(context.WithoutCancel(ctx), key, token)
	}()

	now := e.clock.Now()
	var result *domain.UndoResult
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := e.paymentRepo.FindByIDForUpdate(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment.OrgID != orgID {
			return paymentdomain.ErrPaymentNotFound
		}

		batch, err := e.repo.LatestActiveBatch(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		cps, err := e.paymentRepo.ClaimPaymentsByBatch(ctx, tx, batch.ID)
		if err != nil {
			return err
		}

		var reversedCents int64
		for i := range cps {
			cp := &cps[i]
			if err := e.reverseClaimPayment(ctx, tx, batch, cp, now); err != nil {
				return err
			}
			reversedCents += cp.PaidAmountCents
		}

		if err := e.repo.MarkUndone(ctx, tx, batch.ID, now); err != nil {
			return err
		}
		if err := e.refreshPaymentStatus(ctx, tx, payment, false, now); err != nil {
			return err
		}

		result = &domain.UndoResult{
			Payment:             payment,
			Batch:               batch,
			ReversedCount:       len(cps),
			ReversedAmountCents: reversedCents,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = e.audit.Record(ctx, "payment.reconciliation_undone", "payment", paymentID.String(), map[string]any{
		"batch_id":              result.Batch.ID.String(),
		"reversed_amount_cents": result.ReversedAmountCents,
	})
	return result, nil
}

// reverseClaimPayment deletes one line of an undone batch and restores the
// claim status captured when the line was applied. It refuses when the
// claim has received an independent payment since, as rewinding would
// corrupt that later history.
func (e *Engine) reverseClaimPayment(ctx context.Context, tx *gorm.DB, batch *domain.ReconciliationBatch, cp *paymentdomain.ClaimPayment, now time.Time) error {
	all, err := e.paymentRepo.ClaimPaymentsByClaim(ctx, tx, cp.ClaimID)
	if err != nil {
		return err
	}
	for _, other := range all {
		if other.BatchID != batch.ID && other.ID > cp.ID {
			return domain.ErrUndoConflict
		}
	}

	claim, err := e.claimRepo.FindByIDForUpdate(ctx, tx, cp.ClaimID)
	if err != nil {
		return err
	}

	prev := cp.PrevClaimStatus
	statusChanged := claim.Status != prev
	claim.Status = prev
	if !adjudicated(prev) {
		claim.AdjudicationDate = nil
		claim.DenialReason = ""
	}
	claim.UpdatedAt = now
	if err := e.claimRepo.Update(ctx, tx, claim); err != nil {
		return err
	}

	if statusChanged {
		if err := e.resetServiceBilling(ctx, tx, claim); err != nil {
			return err
		}
	}
	return e.paymentRepo.DeleteClaimPayment(ctx, tx, cp)
}

func adjudicated(s claimdomain.ClaimStatus) bool {
	switch s {
	case claimdomain.StatusPaid, claimdomain.StatusPartialPaid, claimdomain.StatusDenied:
		return true
	}
	return false
}

// resetServiceBilling walks services back to BILLED after an undo pulls
// the claim out of PAID or DENIED.
func (e *Engine) resetServiceBilling(ctx context.Context, tx *gorm.DB, claim *claimdomain.Claim) error {
	services, err := e.serviceRepo.FindByClaim(ctx, tx, claim.OrgID, claim.ID)
	if err != nil {
		return err
	}
	now := e.clock.Now()
	for i := range services {
		svc := &services[i]
		switch svc.BillingStatus {
		case svcdomain.BillingStatusPaid, svcdomain.BillingStatusDenied:
			svc.BillingStatus = svcdomain.BillingStatusBilled
			svc.UpdatedAt = now
			if err := e.serviceRepo.Update(ctx, tx, svc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) ImportRemittance(ctx context.Context, req domain.ImportRemittanceRequest) (*domain.ImportRemittanceResult, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	if len(req.Lines) == 0 {
		return nil, remitdomain.ErrEmptyRemittance
	}

	cfg := e.billing.Get()
	now := e.clock.Now()

	info := remitdomain.RemittanceInfo{
		ID:               e.genID.Generate(),
		OrgID:            orgID,
		PayerID:          snowflake.ID(req.PayerID),
		RemittanceNumber: strings.TrimSpace(req.RemittanceNumber),
		RemittanceDate:   req.RemittanceDate.UTC(),
		TotalAmountCents: req.TotalAmountCents,
		PaymentMethod:    req.PaymentMethod,
		CreatedAt:        now,
	}
	for _, line := range req.Lines {
		info.Details = append(info.Details, remitdomain.RemittanceDetail{
			ID:                e.genID.Generate(),
			RemittanceID:      info.ID,
			ClaimNumber:       strings.TrimSpace(line.ClaimNumber),
			BilledAmountCents: line.BilledAmountCents,
			PaidAmountCents:   line.PaidAmountCents,
			AdjustmentCode:    strings.ToUpper(strings.TrimSpace(line.AdjustmentCode)),
			AdjustmentCents:   line.AdjustmentCents,
		})
	}

	remitID := info.ID
	payment := paymentdomain.Payment{
		ID:                   e.genID.Generate(),
		OrgID:                orgID,
		PayerID:              snowflake.ID(req.PayerID),
		PaymentDate:          req.RemittanceDate.UTC(),
		AmountCents:          req.TotalAmountCents,
		Method:               remittanceMethod(req.PaymentMethod),
		ReconciliationStatus: paymentdomain.ReconStatusUnreconciled,
		ReferenceNumber:      info.RemittanceNumber,
		RemittanceID:         &remitID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.remitRepo.Insert(ctx, tx, &info); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return remitdomain.ErrRemittanceConflict
			}
			return err
		}
		return e.paymentRepo.Insert(ctx, tx, &payment)
	})
	if err != nil {
		return nil, err
	}

	// Build match inputs line by line. The claim number on the line is the
	// high-confidence signal; lines naming no known claim stay unmatched
	// for operator review.
	result := &domain.ImportRemittanceResult{Payment: &payment, RemittanceID: remitID}
	matches := make([]paymentdomain.MatchInput, 0, len(info.Details))
	matchedDetails := make([]snowflake.ID, 0, len(info.Details))
	for _, detail := range info.Details {
		claim, err := e.claimRepo.FindByNumber(ctx, e.db, orgID, detail.ClaimNumber)
		if err != nil {
			result.UnmatchedCount++
			result.UnmatchedAmountCents += detail.PaidAmountCents
			continue
		}
		in := paymentdomain.MatchInput{
			ClaimID:     int64(claim.ID),
			AmountCents: detail.PaidAmountCents,
		}
		if detail.AdjustmentCode != "" {
			adjType := paymentdomain.AdjContractual
			if cfg.IsDenialCode(detail.AdjustmentCode) {
				adjType = paymentdomain.AdjNoncovered
			}
			in.Adjustments = append(in.Adjustments, paymentdomain.AdjustmentInput{
				Type:        adjType,
				Code:        detail.AdjustmentCode,
				AmountCents: detail.AdjustmentCents,
			})
		}
		matches = append(matches, in)
		matchedDetails = append(matchedDetails, detail.ID)
	}

	if len(matches) > 0 {
		recon, err := e.reconcile(ctx, payment.ID, domain.ReconcileRequest{
			IdempotencyKey: "remit:" + info.RemittanceNumber,
			Matches:        matches,
		}, domain.SourceRemittance)
		if err != nil {
			return nil, err
		}
		result.Payment = recon.Payment
		result.Outcomes = recon.Outcomes
		result.MatchedAmountCents = recon.MatchedAmountCents

		for i, out := range recon.Outcomes {
			if out.ErrorCode == "" {
				result.MatchedCount++
				if err := e.remitRepo.MarkDetailMatched(ctx, e.db, matchedDetails[i]); err != nil {
					return nil, err
				}
			} else {
				result.UnmatchedCount++
			}
		}
	}

	_ = e.audit.Record(ctx, "remittance.imported", "remittance", remitID.String(), map[string]any{
		"remittance_number": info.RemittanceNumber,
		"matched_count":     result.MatchedCount,
		"unmatched_count":   result.UnmatchedCount,
	})
	e.metrics.RecordRemittanceLines(ctx, "matched", int64(result.MatchedCount))
	e.metrics.RecordRemittanceLines(ctx, "unmatched", int64(result.UnmatchedCount))
	return result, nil
}

func remittanceMethod(raw string) paymentdomain.PaymentMethod {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CHECK":
		return paymentdomain.MethodCheck
	case "CREDIT_CARD":
		return paymentdomain.MethodCreditCard
	case "CASH":
		return paymentdomain.MethodCash
	case "", "EFT", "ACH":
		return paymentdomain.MethodEFT
	default:
		return paymentdomain.MethodOther
	}
}

func (e *Engine) BatchReconcile(ctx context.Context, items []domain.BatchReconcileItem) ([]domain.BatchReconcileOutcome, error) {
	outcomes := make([]domain.BatchReconcileOutcome, 0, len(items))
	for _, item := range items {
		paymentID := snowflake.ID(item.PaymentID)
		res, err := e.Reconcile(ctx, paymentID, item.Request)
		outcome := domain.BatchReconcileOutcome{PaymentID: paymentID}
		if err != nil {
			outcome.Error = err.Error()
			e.log.Warn("batch reconcile item failed",
				zap.String("payment_id", paymentID.String()),
				zap.Error(err))
		} else {
			outcome.Result = res
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}
