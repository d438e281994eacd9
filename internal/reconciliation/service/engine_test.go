package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/carebridge/revcycle/internal/actorctx"
	auditdomain "github.com/carebridge/revcycle/internal/audit/domain"
	auditrepo "github.com/carebridge/revcycle/internal/audit/repository"
	auditservice "github.com/carebridge/revcycle/internal/audit/service"
	authdomain "github.com/carebridge/revcycle/internal/authorization/domain"
	authrepo "github.com/carebridge/revcycle/internal/authorization/repository"
	authservice "github.com/carebridge/revcycle/internal/authorization/service"
	claimdomain "github.com/carebridge/revcycle/internal/claim/domain"
	claimrepo "github.com/carebridge/revcycle/internal/claim/repository"
	claimservice "github.com/carebridge/revcycle/internal/claim/service"
	"github.com/carebridge/revcycle/internal/clock"
	"github.com/carebridge/revcycle/internal/config"
	"github.com/carebridge/revcycle/internal/observability/metrics"
	payerdomain "github.com/carebridge/revcycle/internal/payer/domain"
	payerrepo "github.com/carebridge/revcycle/internal/payer/repository"
	paymentdomain "github.com/carebridge/revcycle/internal/payment/domain"
	paymentrepo "github.com/carebridge/revcycle/internal/payment/repository"
	paymentservice "github.com/carebridge/revcycle/internal/payment/service"
	"github.com/carebridge/revcycle/internal/reconciliation/domain"
	reconrepo "github.com/carebridge/revcycle/internal/reconciliation/repository"
	remitdomain "github.com/carebridge/revcycle/internal/remittance/domain"
	remitrepo "github.com/carebridge/revcycle/internal/remittance/repository"
	svcdomain "github.com/carebridge/revcycle/internal/servicedelivery/domain"
	svcrepo "github.com/carebridge/revcycle/internal/servicedelivery/repository"
	svcservice "github.com/carebridge/revcycle/internal/servicedelivery/service"
)

var testNow = time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)

type env struct {
	db       *gorm.DB
	node     *snowflake.Node
	clk      *clock.FakeClock
	orgID    snowflake.ID
	clientID snowflake.ID
	ctx      context.Context
	claimSeq int64

	engine      domain.Engine
	payments    paymentdomain.Service
	paymentRepo paymentdomain.Repository
}

func newEnv(t *testing.T) *env {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&claimdomain.Claim{},
		&claimdomain.ClaimCounter{},
		&svcdomain.DeliveredService{},
		&authdomain.Authorization{},
		&payerdomain.Payer{},
		&auditdomain.AuditLog{},
		&paymentdomain.Payment{},
		&paymentdomain.ClaimPayment{},
		&paymentdomain.PaymentAdjustment{},
		&remitdomain.RemittanceInfo{},
		&remitdomain.RemittanceDetail{},
		&domain.ReconciliationBatch{},
	))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	clk := clock.NewFakeClock(testNow)
	log := zap.NewNop()
	m, err := metrics.New(metrics.Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	billing := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())

	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, Clock: clk, GenID: node, Repo: auditrepo.Provide(),
	})
	authSvc := authservice.NewService(authservice.Params{
		DB: db, Log: log, Clock: clk, GenID: node, Repo: authrepo.Provide(), Audit: audit,
	})
	validator := svcservice.NewValidator(svcservice.ValidatorParams{
		DB: db, Log: log, Clock: clk, Metrics: m,
		Repo: svcrepo.Provide(), AuthRepo: authrepo.Provide(), PayerRepo: payerrepo.Provide(),
	})
	claims := claimservice.NewService(claimservice.Params{
		DB: db, Log: log, Clock: clk, GenID: node, Metrics: m,
		Repo: claimrepo.Provide(), ServiceRepo: svcrepo.Provide(),
		Validator: validator, AuthService: authSvc, Audit: audit,
	})
	payments := paymentservice.NewService(paymentservice.Params{
		DB: db, Log: log, Clock: clk, GenID: node, Billing: billing,
		Repo: paymentrepo.Provide(), ClaimRepo: claimrepo.Provide(), ClaimService: claims,
		PayerRepo: payerrepo.Provide(), Remit: remitrepo.ProvideLookup(), Audit: audit,
	})
	engine := NewEngine(Params{
		DB: db, Log: log, Clock: clk, GenID: node, Billing: billing, Metrics: m,
		Repo: reconrepo.Provide(), PaymentRepo: paymentrepo.Provide(), PaymentService: payments,
		ClaimRepo: claimrepo.Provide(), ServiceRepo: svcrepo.Provide(),
		RemitRepo: remitrepo.Provide(), Audit: audit,
	})

	orgID := node.Generate()
	return &env{
		db:          db,
		node:        node,
		clk:         clk,
		orgID:       orgID,
		clientID:    node.Generate(),
		ctx:         actorctx.WithOrgID(context.Background(), orgID),
		engine:      engine,
		payments:    payments,
		paymentRepo: paymentrepo.Provide(),
	}
}

func (e *env) insertPayer(t *testing.T) *payerdomain.Payer {
	t.Helper()
	payer := &payerdomain.Payer{
		ID:                e.node.Generate(),
		OrgID:             e.orgID,
		Code:              fmt.Sprintf("MCD-%d", e.node.Generate()),
		Name:              "State Medicaid",
		PayerType:         payerdomain.PayerTypeMedicaid,
		AvgTurnaroundDays: 30,
		AppealWindowDays:  60,
		Active:            true,
		CreatedAt:         testNow,
		UpdatedAt:         testNow,
	}
	require.NoError(t, e.db.Create(payer).Error)
	return payer
}

// insertClaim puts a claim directly into the table in the given lifecycle
// state so reconciliation behavior can be tested without replaying the
// whole billing flow.
func (e *env) insertClaim(t *testing.T, payerID snowflake.ID, status claimdomain.ClaimStatus, totalCents int64) *claimdomain.Claim {
	t.Helper()
	e.claimSeq++
	submitted := testNow.AddDate(0, 0, -30)
	claim := &claimdomain.Claim{
		ID:               e.node.Generate(),
		OrgID:            e.orgID,
		ClaimNumber:      fmt.Sprintf("CLM-2026-%06d", e.claimSeq),
		ClientID:         e.clientID,
		PayerID:          payerID,
		Status:           status,
		TotalAmountCents: totalCents,
		ServiceStartDate: testNow.AddDate(0, 0, -45),
		ServiceEndDate:   testNow.AddDate(0, 0, -40),
		SubmissionDate:   &submitted,
		SubmissionMethod: claimdomain.SubmissionElectronic,
		CreatedAt:        testNow,
		UpdatedAt:        testNow,
	}
	require.NoError(t, e.db.Create(claim).Error)
	return claim
}

func (e *env) insertBilledService(t *testing.T, claim *claimdomain.Claim, amountCents int64) *svcdomain.DeliveredService {
	t.Helper()
	svc := &svcdomain.DeliveredService{
		ID:                  e.node.Generate(),
		OrgID:               e.orgID,
		ClientID:            claim.ClientID,
		ProgramID:           e.node.Generate(),
		ClaimID:             &claim.ID,
		ServiceType:         "personal_care",
		ServiceDate:         claim.ServiceStartDate,
		UnitsDelivered:      4,
		RateCents:           amountCents / 4,
		AmountCents:         amountCents,
		DocumentationStatus: svcdomain.DocStatusComplete,
		BillingStatus:       svcdomain.BillingStatusBilled,
		CreatedAt:           testNow,
		UpdatedAt:           testNow,
	}
	require.NoError(t, e.db.Create(svc).Error)
	return svc
}

func (e *env) createPayment(t *testing.T, payerID snowflake.ID, amountCents int64) *paymentdomain.Payment {
	t.Helper()
	payment, err := e.payments.Create(e.ctx, paymentdomain.CreatePaymentRequest{
		PayerID:     int64(payerID),
		PaymentDate: testNow,
		AmountCents: amountCents,
		Method:      paymentdomain.MethodEFT,
	})
	require.NoError(t, err)
	return payment
}

func (e *env) reloadClaim(t *testing.T, id snowflake.ID) *claimdomain.Claim {
	t.Helper()
	var claim claimdomain.Claim
	require.NoError(t, e.db.First(&claim, "id = ?", id).Error)
	return &claim
}

func (e *env) reloadPayment(t *testing.T, id snowflake.ID) *paymentdomain.Payment {
	t.Helper()
	var payment paymentdomain.Payment
	require.NoError(t, e.db.First(&payment, "id = ?", id).Error)
	return &payment
}

func (e *env) claimPaymentCount(t *testing.T, claimID snowflake.ID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&paymentdomain.ClaimPayment{}).Where("claim_id = ?", claimID).Count(&n).Error)
	return n
}

func TestReconcileFullPaymentMarksClaimPaid(t *testing.T) {
	e := newEnv(t)
	payer := e.insertPayer(t)
	claim := e.insertClaim(t, payer.ID, claimdomain.StatusPending, 50000)
	svc := e.insertBilledService(t, claim, 50000)
	payment := e.createPayment(t, payer.ID, 50000)

	res, err := e.engine.Reconcile(e.ctx, payment.ID, domain.ReconcileRequest{
		IdempotencyKey: "manual-1",
		Matches:        []paymentdomain.MatchInput{{ClaimID: int64(claim.ID), AmountCents: 50000}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(50000), res.MatchedAmountCents)
	assert.Equal(t, 0, res.ErrorCount)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, string(claimdomain.StatusPaid), res.Outcomes[0].NewStatus)
	assert.Equal(t, domain.SourceManual, res.Batch.Source)
	assert.Equal(t, paymentdomain.ReconStatusReconciled, res.Payment.ReconciliationStatus)

	got := e.reloadClaim(t, claim.ID)
	assert.Equal(t, claimdomain.StatusPaid, got.Status)
	require.NotNil(t, got.AdjudicationDate)
	assert.WithinDuration(t, testNow, *got.AdjudicationDate, time.Second)

	var gotSvc svcdomain.DeliveredService
	require.NoError(t, e.db.First(&gotSvc, "id = ?", svc.ID).Error)
	assert.Equal(t, svcdomain.BillingStatusPaid, gotSvc.BillingStatus)
}

func TestReconcilePartialPaymentLeavesClaimPartiallyPaid(t *testing.T) {
	e := newEnv(t)
	payer := e.insertPayer(t)
	claim := e.insertClaim(t, payer.ID, claimdomain.StatusPending, 50000)
	payment := e.createPayment(t, payer.ID, 30000)

	res, err := e.engine.Reconcile(e.ctx, payment.ID, domain.ReconcileRequest{
		Matches: []paymentdomain.MatchInput{{ClaimID: int64(claim.ID), AmountCents: 30000}},
	})
	require.NoError(t, err)

	assert.Equal(t, claimdomain.StatusPartialPaid, e.reloadClaim(t, claim.ID).Status)
	// The payment itself is fully allocated even though the claim is not
	// fully paid.
	assert.Equal(t, paymentdomain.ReconStatusReconciled, res.Payment.ReconciliationStatus)
}

func TestReconcileRejectsOverAllocation(t *testing.T) {
	e := newEnv(t)
	payer := e.insertPayer(t)
	claimA := e.insertClaim(t, payer.ID, claimdomain.StatusPending, 30000)
	claimB := e.insertClaim(t, payer.ID, claimdomain.StatusPending, 25000)
	payment := e.createPayment(t, payer.ID, 50000)

	_, err := e.engine.Reconcile(e.ctx, payment.ID, domain.ReconcileRequest{
		Matches: []paymentdomain.MatchInput{
			{ClaimID: int64(claimA.ID), AmountCents: 30000},
			{ClaimID: int64(claimB.ID), AmountCents: 25000},
		},
	})
	require.ErrorIs(t, err, paymentdomain.ErrOverAllocation)

	assert.Equal(t, claimdomain.StatusPending, e.reloadClaim(t, claimA.ID).Status)
	assert.Equal(t, claimdomain.StatusPending, e.reloadClaim(t, claimB.ID).Status)
	assert.Zero(t, e.claimPaymentCount(t, claimA.ID))
	assert.Zero(t, e.claimPaymentCount(t, claimB.ID))

	var batches int64
	require.NoError(t, e.db.Model(&domain.ReconciliationBatch{}).Count(&batches).Error)
	assert.Zero(t, batches, "failed reconciliation must not leave a batch behind")
}

func TestReconcileRejectsReplayedIdempotencyKey(t *testing.T) {
	e := newEnv(t)
	payer := e.insertPayer(t)
	claim := e.insertClaim(t, payer.ID, claimdomain.StatusPending, 50000)
	payment := e.createPayment(t, payer.ID, 50000)

	req := domain.ReconcileRequest{
		IdempotencyKey: "posting-42",
		Matches:        []paymentdomain.MatchInput{{ClaimID: int64(claim.ID), AmountCents: 20000}},
	}
	_, err := e.engine.Reconcile(e.ctx, payment.ID, req)
	require.NoError(t, err)

	_, err = e.engine.Reconcile(e.ctx, payment.ID, req)
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)
	assert.Equal(t, int64(1), e.claimPaymentCount(t, claim.ID))
}

func TestReconcileDenialAdjustmentDeniesClaim(t *testing.T) {
	e := newEnv(t)
	payer := e.insertPayer(t)
	claim := e.insertClaim(t, payer.ID, claimdomain.StatusPending, 40000)
	svc := e.insertBilledService(t, claim, 40000)
	payment := e.createPayment(t, payer.ID, 10000)

	res, err := e.engine.Reconcile(e.ctx, payment.ID, domain.ReconcileRequest{
		Matches: []paymentdomain.MatchInput{{
			ClaimID:     int64(claim.ID),
			AmountCents: 0,
			Adjustments: []paymentdomain.AdjustmentInput{{
				Type:        paymentdomain.AdjNoncovered,
				Code:        "CO-50",
				AmountCents: 40000,
				Description: "non-covered service",
			}},
		}},
	})
	require.NoError(t, err)

	got := e.reloadClaim(t, claim.ID)
	assert.Equal(t, claimdomain.StatusDenied, got.Status)
	assert.Contains(t, got.DenialReason, "CO-50")

	var gotSvc svcdomain.DeliveredService
	require.NoError(t, e.db.First(&gotSvc, "id = ?", svc.ID).Error)
	assert.Equal(t, svcdomain.BillingStatusDenied, gotSvc.BillingStatus)

	// Nothing was applied in cash terms, so the payment stays unreconciled.
	assert.Equal(t, paymentdomain.ReconStatusUnreconciled, res.Payment.ReconciliationStatus)
}

func TestReconcilePerClaimFailureMarksPaymentException(t *testing.T) {
	e := newEnv(t)
	payer := e.insertPayer(t)
	draft := e.insertClaim(t, payer.ID, claimdomain.StatusDraft, 20000)
	pending := e.insertClaim(t, payer.ID, claimdomain.StatusPending, 30000)
	payment := e.createPayment(t, payer.ID, 50000)

	res, err := e.engine.Reconcile(e.ctx, payment.ID, domain.ReconcileRequest{
		Matches: []paymentdomain.MatchInput{
			{ClaimID: int64(draft.ID), AmountCents: 20000},
			{ClaimID: int64(pending.ID), AmountCents: 30000},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.ErrorCount)
	assert.Equal(t, "CONFLICT", res.Outcomes[0].ErrorCode)
	assert.Equal(t, int64(30000), res.MatchedAmountCents)
	assert.Equal(t, paymentdomain.ReconStatusException, res.Payment.ReconciliationStatus)

	// The sibling claim was still paid.
	assert.Equal(t, claimdomain.StatusPaid, e.reloadClaim(t, pending.ID).Status)
	assert.Equal(t, claimdomain.StatusDraft, e.reloadClaim(t, draft.ID).Status)
}

func TestReconcileRejectedTransitionLeavesNoClaimPayment(t *testing.T) {
	e := newEnv(t)
	payer := e.insertPayer(t)
	// An appealed claim accepts payment but cannot be re-denied, so a
	// zero-amount denial line fails adjudication after the line exists.
	claim := e.insertClaim(t, payer.ID, claimdomain.StatusAppealed, 40000)
	payment := e.createPayment(t, payer.ID, 10000)

	res, err := e.engine.Reconcile(e.ctx, payment.ID, domain.ReconcileRequest{
		Matches: []paymentdomain.MatchInput{{
			ClaimID:     int64(claim.ID),
			AmountCents: 0,
			Adjustments: []paymentdomain.AdjustmentInput{{
				Type:        paymentdomain.AdjNoncovered,
				Code:        "CO-50",
				AmountCents: 40000,
			}},
		}},
	})
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, "CONFLICT", res.Outcomes[0].ErrorCode)
	assert.Equal(t, claimdomain.StatusAppealed, e.reloadClaim(t, claim.ID).Status)

	// The failed application must not leave the line or its adjustments.
	assert.Zero(t, e.claimPaymentCount(t, claim.ID))
	var adjCount int64
	require.NoError(t, e.db.Model(&paymentdomain.PaymentAdjustment{}).Count(&adjCount).Error)
	assert.Zero(t, adjCount)
}

func TestUndoRestoresClaimServicesAndPayment(t *testing.T) {
	e := newEnv(t)
	payer := e.insertPayer(t)
	claim := e.insertClaim(t, payer.ID, claimdomain.StatusPending, 50000)
	svc := e.insertBilledService(t, claim, 50000)
	payment := e.createPayment(t, payer.ID, 50000)

	_, err := e.engine.Reconcile(e.ctx, payment.ID, domain.ReconcileRequest{
		Matches: []paymentdomain.MatchInput{{ClaimID: int64(claim.ID), AmountCents: 50000}},
	})
	require.NoError(t, err)

	res, err := e.engine.Undo(e.ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ReversedCount)
	assert.Equal(t, int64(50000), res.ReversedAmountCents)

	got := e.reloadClaim(t, claim.ID)
	assert.Equal(t, claimdomain.StatusPending, got.Status)
	assert.Nil(t, got.AdjudicationDate)
	assert.Empty(t, got.DenialReason)

	var gotSvc svcdomain.DeliveredService
	require.NoError(t, e.db.First(&gotSvc, "id = ?", svc.ID).Error)
	assert.Equal(t, svcdomain.BillingStatusBilled, gotSvc.BillingStatus)

	assert.Equal(t, paymentdomain.ReconStatusUnreconciled, e.reloadPayment(t, payment.ID).ReconciliationStatus)
	assert.Zero(t, e.claimPaymentCount(t, claim.ID))

	_, err = e.engine.Undo(e.ctx, payment.ID)
	assert.ErrorIs(t, err, domain.ErrNothingToUndo)

	// Replaying the reconciliation lands the claim right back where it was.
	replay, err := e.engine.Reconcile(e.ctx, payment.ID, domain.ReconcileRequest{
		Matches: []paymentdomain.MatchInput{{ClaimID: int64(claim.ID), AmountCents: 50000}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), replay.MatchedAmountCents)
	assert.Equal(t, claimdomain.StatusPaid, e.reloadClaim(t, claim.ID).Status)
	assert.Equal(t, paymentdomain.ReconStatusReconciled, replay.Payment.ReconciliationStatus)
}

func TestUndoRefusesWhenClaimReceivedLaterPayment(t *testing.T) {
	e := newEnv(t)
	payer := e.insertPayer(t)
	claim := e.insertClaim(t, payer.ID, claimdomain.StatusPending, 50000)
	first := e.createPayment(t, payer.ID, 20000)
	second := e.createPayment(t, payer.ID, 20000)

	_, err := e.engine.Reconcile(e.ctx, first.ID, domain.ReconcileRequest{
		Matches: []paymentdomain.MatchInput{{ClaimID: int64(claim.ID), AmountCents: 20000}},
	})
	require.NoError(t, err)
	_, err = e.engine.Reconcile(e.ctx, second.ID, domain.ReconcileRequest{
		Matches: []paymentdomain.MatchInput{{ClaimID: int64(claim.ID), AmountCents: 20000}},
	})
	require.NoError(t, err)

	_, err = e.engine.Undo(e.ctx, first.ID)
	assert.ErrorIs(t, err, domain.ErrUndoConflict)
	assert.Equal(t, int64(2), e.claimPaymentCount(t, claim.ID))
}

func TestAutoReconcileAppliesHighConfidenceMatch(t *testing.T) {
	e := newEnv(t)
	payer := e.insertPayer(t)
	claim := e.insertClaim(t, payer.ID, claimdomain.StatusPending, 40000)
	payment := e.createPayment(t, payer.ID, 40000)

	res, err := e.engine.AutoReconcile(e.ctx, payment.ID, domain.AutoReconcileRequest{})
	require.NoError(t, err)

	assert.Equal(t, domain.SourceAuto, res.Batch.Source)
	assert.Equal(t, int64(40000), res.MatchedAmountCents)
	assert.Equal(t, claimdomain.StatusPaid, e.reloadClaim(t, claim.ID).Status)
	assert.Equal(t, paymentdomain.ReconStatusReconciled, res.Payment.ReconciliationStatus)
}

func TestAutoReconcileWithoutCandidates(t *testing.T) {
	e := newEnv(t)
	payer := e.insertPayer(t)
	payment := e.createPayment(t, payer.ID, 40000)

	_, err := e.engine.AutoReconcile(e.ctx, payment.ID, domain.AutoReconcileRequest{})
	assert.ErrorIs(t, err, domain.ErrNoCandidates)
}

func TestImportRemittanceMatchesKnownClaims(t *testing.T) {
	e := newEnv(t)
	payer := e.insertPayer(t)
	claim := e.insertClaim(t, payer.ID, claimdomain.StatusPending, 50000)

	req := domain.ImportRemittanceRequest{
		PayerID:          int64(payer.ID),
		RemittanceNumber: "RA-2026-0001",
		RemittanceDate:   testNow,
		TotalAmountCents: 62000,
		PaymentMethod:    "ACH",
		Lines: []domain.RemittanceLineInput{
			{ClaimNumber: claim.ClaimNumber, BilledAmountCents: 50000, PaidAmountCents: 50000},
			{ClaimNumber: "CLM-2026-999999", BilledAmountCents: 12000, PaidAmountCents: 12000},
		},
	}
	res, err := e.engine.ImportRemittance(e.ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 1, res.MatchedCount)
	assert.Equal(t, 1, res.UnmatchedCount)
	assert.Equal(t, int64(50000), res.MatchedAmountCents)
	assert.Equal(t, int64(12000), res.UnmatchedAmountCents)
	assert.Equal(t, paymentdomain.MethodEFT, res.Payment.Method)
	require.NotNil(t, res.Payment.RemittanceID)
	assert.Equal(t, res.RemittanceID, *res.Payment.RemittanceID)
	assert.Equal(t, paymentdomain.ReconStatusPartial, res.Payment.ReconciliationStatus)

	assert.Equal(t, claimdomain.StatusPaid, e.reloadClaim(t, claim.ID).Status)

	var matched int64
	require.NoError(t, e.db.Model(&remitdomain.RemittanceDetail{}).
		Where("remittance_id = ? AND matched = ?", res.RemittanceID, true).
		Count(&matched).Error)
	assert.Equal(t, int64(1), matched)

	// The same advice number cannot be imported twice.
	_, err = e.engine.ImportRemittance(e.ctx, req)
	assert.ErrorIs(t, err, remitdomain.ErrRemittanceConflict)
}

func TestImportRemittanceDenialLine(t *testing.T) {
	e := newEnv(t)
	payer := e.insertPayer(t)
	claim := e.insertClaim(t, payer.ID, claimdomain.StatusPending, 30000)

	res, err := e.engine.ImportRemittance(e.ctx, domain.ImportRemittanceRequest{
		PayerID:          int64(payer.ID),
		RemittanceNumber: "RA-2026-0002",
		RemittanceDate:   testNow,
		Lines: []domain.RemittanceLineInput{{
			ClaimNumber:       claim.ClaimNumber,
			BilledAmountCents: 30000,
			PaidAmountCents:   0,
			AdjustmentCode:    "co-50",
			AdjustmentCents:   30000,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.MatchedCount)

	got := e.reloadClaim(t, claim.ID)
	assert.Equal(t, claimdomain.StatusDenied, got.Status)
	assert.Contains(t, got.DenialReason, "CO-50")
}

func TestImportRemittanceRejectsEmptyAdvice(t *testing.T) {
	e := newEnv(t)
	payer := e.insertPayer(t)

	_, err := e.engine.ImportRemittance(e.ctx, domain.ImportRemittanceRequest{
		PayerID:          int64(payer.ID),
		RemittanceNumber: "RA-2026-0003",
		RemittanceDate:   testNow,
	})
	assert.ErrorIs(t, err, remitdomain.ErrEmptyRemittance)
}

func TestBatchReconcileIsolatesFailingItems(t *testing.T) {
	e := newEnv(t)
	payer := e.insertPayer(t)
	claim := e.insertClaim(t, payer.ID, claimdomain.StatusPending, 50000)
	payment := e.createPayment(t, payer.ID, 50000)

	outcomes, err := e.engine.BatchReconcile(e.ctx, []domain.BatchReconcileItem{
		{
			PaymentID: int64(payment.ID),
			Request: domain.ReconcileRequest{
				Matches: []paymentdomain.MatchInput{{ClaimID: int64(claim.ID), AmountCents: 50000}},
			},
		},
		{
			PaymentID: int64(e.node.Generate()),
			Request: domain.ReconcileRequest{
				Matches: []paymentdomain.MatchInput{{ClaimID: int64(claim.ID), AmountCents: 1000}},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	require.NotNil(t, outcomes[0].Result)
	assert.Empty(t, outcomes[0].Error)
	assert.NotEmpty(t, outcomes[1].Error)
	assert.Nil(t, outcomes[1].Result)

	assert.Equal(t, claimdomain.StatusPaid, e.reloadClaim(t, claim.ID).Status)
}
