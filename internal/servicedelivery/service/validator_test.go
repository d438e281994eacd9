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
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/carebridge/revcycle/internal/actorctx"
	authdomain "github.com/carebridge/revcycle/internal/authorization/domain"
	authrepo "github.com/carebridge/revcycle/internal/authorization/repository"
	"github.com/carebridge/revcycle/internal/clock"
	"github.com/carebridge/revcycle/internal/observability/metrics"
	payerdomain "github.com/carebridge/revcycle/internal/payer/domain"
	payerrepo "github.com/carebridge/revcycle/internal/payer/repository"
	"github.com/carebridge/revcycle/internal/servicedelivery/domain"
	svcrepo "github.com/carebridge/revcycle/internal/servicedelivery/repository"
)

var testNow = time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)

func setupValidatorDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.DeliveredService{},
		&authdomain.Authorization{},
		&payerdomain.Payer{},
	))
	return db
}

func newTestValidator(t *testing.T, db *gorm.DB, clk clock.Clock) domain.Validator {
	t.Helper()
	m, err := metrics.New(metrics.Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	return NewValidator(ValidatorParams{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     clk,
		Metrics:   m,
		Repo:      svcrepo.Provide(),
		AuthRepo:  authrepo.Provide(),
		PayerRepo: payerrepo.Provide(),
	})
}

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	orgID snowflake.ID
	ctx   context.Context
}

func newFixture(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	orgID := node.Generate()
	return &fixture{
		db:    db,
		node:  node,
		orgID: orgID,
		ctx:   actorctx.WithOrgID(context.Background(), orgID),
	}
}

func (f *fixture) insertAuth(t *testing.T, authorized, used float64, mutate func(*authdomain.Authorization)) *authdomain.Authorization {
	t.Helper()
	auth := &authdomain.Authorization{
		ID:              f.node.Generate(),
		OrgID:           f.orgID,
		AuthNumber:      fmt.Sprintf("AUTH-%d", f.node.Generate()),
		ClientID:        f.node.Generate(),
		PayerID:         f.node.Generate(),
		Status:          authdomain.AuthStatusActive,
		AuthorizedUnits: authorized,
		UsedUnits:       used,
		StartDate:       testNow.AddDate(0, -2, 0),
		EndDate:         testNow.AddDate(0, 4, 0),
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
	if mutate != nil {
		mutate(auth)
	}
	require.NoError(t, f.db.Create(auth).Error)
	return auth
}

func (f *fixture) insertService(t *testing.T, authID *snowflake.ID, units float64, mutate func(*domain.DeliveredService)) *domain.DeliveredService {
	t.Helper()
	svc := &domain.DeliveredService{
		ID:                  f.node.Generate(),
		OrgID:               f.orgID,
		ClientID:            f.node.Generate(),
		ProgramID:           f.node.Generate(),
		AuthorizationID:     authID,
		ServiceType:         "personal_care",
		ServiceDate:         testNow.AddDate(0, 0, -5),
		UnitsDelivered:      units,
		RateCents:           2500,
		AmountCents:         domain.ComputeAmountCents(units, 2500),
		DocumentationStatus: domain.DocStatusComplete,
		BillingStatus:       domain.BillingStatusUnbilled,
		CreatedAt:           testNow,
		UpdatedAt:           testNow,
	}
	if mutate != nil {
		mutate(svc)
	}
	require.NoError(t, f.db.Create(svc).Error)
	return svc
}

func TestValidateReadyService(t *testing.T) {
	db := setupValidatorDB(t)
	f := newFixture(t, db)
	v := newTestValidator(t, db, clock.NewFakeClock(testNow))

	auth := f.insertAuth(t, 100, 10, nil)
	svc := f.insertService(t, &auth.ID, 4, nil)

	results, err := v.Validate(f.ctx, []snowflake.ID{svc.ID})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
	assert.True(t, res.Documentation.IsComplete)
	assert.True(t, res.Authorization.IsAuthorized)
	assert.InDelta(t, 90.0, res.Authorization.RemainingUnits, 1e-9)
}

func TestValidateDocumentationStates(t *testing.T) {
	db := setupValidatorDB(t)
	f := newFixture(t, db)
	v := newTestValidator(t, db, clock.NewFakeClock(testNow))
	auth := f.insertAuth(t, 100, 0, nil)

	cases := []struct {
		status domain.DocumentationStatus
		code   string
	}{
		{domain.DocStatusIncomplete, domain.CodeDocIncomplete},
		{domain.DocStatusRejected, domain.CodeDocRejected},
		{domain.DocStatusPendingReview, domain.CodeDocPendingReview},
	}
	for _, tc := range cases {
		svc := f.insertService(t, &auth.ID, 1, func(s *domain.DeliveredService) {
			s.DocumentationStatus = tc.status
			if tc.status == domain.DocStatusIncomplete {
				s.MissingDocs = datatypes.JSON(`["progress_note","signature"]`)
			}
		})

		results, err := v.Validate(f.ctx, []snowflake.ID{svc.ID})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.False(t, results[0].IsValid)
		require.Len(t, results[0].Errors, 1)
		assert.Equal(t, tc.code, results[0].Errors[0].Code)
		if tc.status == domain.DocStatusIncomplete {
			assert.Equal(t, []string{"progress_note", "signature"}, results[0].Documentation.MissingItems)
		}
	}
}

func TestValidateUnitsExceedAuthorization(t *testing.T) {
	db := setupValidatorDB(t)
	f := newFixture(t, db)
	v := newTestValidator(t, db, clock.NewFakeClock(testNow))

	// 100 authorized, 95 used, 10 requested: 5 remaining is not enough.
	auth := f.insertAuth(t, 100, 95, nil)
	svc := f.insertService(t, &auth.ID, 10, nil)

	results, err := v.Validate(f.ctx, []snowflake.ID{svc.ID})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.False(t, res.IsValid)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, domain.CodeAuthUnitsExceeded, res.Errors[0].Code)
	assert.InDelta(t, 5.0, res.Authorization.RemainingUnits, 1e-9)
}

func TestValidateBatchSharesAuthorizationHeadroom(t *testing.T) {
	db := setupValidatorDB(t)
	f := newFixture(t, db)
	v := newTestValidator(t, db, clock.NewFakeClock(testNow))

	// 10 units remain. Each service needs 6: either alone would pass, the
	// pair must not.
	auth := f.insertAuth(t, 10, 0, nil)
	first := f.insertService(t, &auth.ID, 6, nil)
	second := f.insertService(t, &auth.ID, 6, nil)

	results, err := v.Validate(f.ctx, []snowflake.ID{first.ID, second.ID})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].IsValid)
	assert.False(t, results[1].IsValid)
	assert.Equal(t, domain.CodeAuthUnitsExceeded, results[1].Errors[0].Code)
}

func TestValidateAuthorizationWindowAndType(t *testing.T) {
	db := setupValidatorDB(t)
	f := newFixture(t, db)
	v := newTestValidator(t, db, clock.NewFakeClock(testNow))

	expired := f.insertAuth(t, 100, 0, func(a *authdomain.Authorization) {
		a.Status = authdomain.AuthStatusExpired
	})
	outOfRange := f.insertAuth(t, 100, 0, func(a *authdomain.Authorization) {
		a.StartDate = testNow.AddDate(0, 1, 0)
		a.EndDate = testNow.AddDate(0, 2, 0)
	})
	wrongType := f.insertAuth(t, 100, 0, func(a *authdomain.Authorization) {
		a.ServiceTypes = datatypes.JSON(`["respite"]`)
	})

	cases := []struct {
		authID snowflake.ID
		code   string
	}{
		{expired.ID, domain.CodeAuthNotActive},
		{outOfRange.ID, domain.CodeAuthDateOutOfRange},
		{wrongType.ID, domain.CodeAuthServiceType},
	}
	for _, tc := range cases {
		authID := tc.authID
		svc := f.insertService(t, &authID, 1, nil)

		results, err := v.Validate(f.ctx, []snowflake.ID{svc.ID})
		require.NoError(t, err)
		require.NotEmpty(t, results[0].Errors)
		assert.Equal(t, tc.code, results[0].Errors[0].Code)
	}
}

func TestValidateMissingAuthorization(t *testing.T) {
	db := setupValidatorDB(t)
	f := newFixture(t, db)
	v := newTestValidator(t, db, clock.NewFakeClock(testNow))

	svc := f.insertService(t, nil, 2, nil)

	results, err := v.Validate(f.ctx, []snowflake.ID{svc.ID})
	require.NoError(t, err)
	assert.False(t, results[0].IsValid)
	assert.Equal(t, domain.CodeAuthMissing, results[0].Errors[0].Code)
}

func TestValidateForConversionPayerWaivesAuthorization(t *testing.T) {
	db := setupValidatorDB(t)
	f := newFixture(t, db)
	v := newTestValidator(t, db, clock.NewFakeClock(testNow))

	payer := &payerdomain.Payer{
		ID:                    f.node.Generate(),
		OrgID:                 f.orgID,
		Code:                  "PP-01",
		Name:                  "Private Pay",
		PayerType:             payerdomain.PayerTypePrivate,
		RequiresAuthorization: false,
		Active:                true,
		CreatedAt:             testNow,
		UpdatedAt:             testNow,
	}
	require.NoError(t, db.Create(payer).Error)

	svc := f.insertService(t, nil, 2, nil)

	results, err := v.ValidateForConversion(f.ctx, []snowflake.ID{svc.ID}, payer.ID)
	require.NoError(t, err)
	assert.True(t, results[0].IsValid)
	assert.False(t, results[0].Authorization.IsAuthorized)
}

func TestValidateForConversionRejectsBilledAndVoided(t *testing.T) {
	db := setupValidatorDB(t)
	f := newFixture(t, db)
	v := newTestValidator(t, db, clock.NewFakeClock(testNow))

	payer := &payerdomain.Payer{
		ID:        f.node.Generate(),
		OrgID:     f.orgID,
		Code:      "MCD-01",
		Name:      "State Medicaid",
		PayerType: payerdomain.PayerTypeMedicaid,
		Active:    true,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	require.NoError(t, db.Create(payer).Error)
	auth := f.insertAuth(t, 100, 0, nil)

	billed := f.insertService(t, &auth.ID, 1, func(s *domain.DeliveredService) {
		s.BillingStatus = domain.BillingStatusBilled
	})
	voided := f.insertService(t, &auth.ID, 1, func(s *domain.DeliveredService) {
		s.BillingStatus = domain.BillingStatusVoid
	})

	results, err := v.ValidateForConversion(f.ctx, []snowflake.ID{billed.ID, voided.ID}, payer.ID)
	require.NoError(t, err)
	assert.False(t, results[0].IsValid)
	assert.Equal(t, domain.CodeAlreadyBilled, results[0].Errors[0].Code)
	assert.False(t, results[1].IsValid)
	assert.Equal(t, domain.CodeServiceVoided, results[1].Errors[0].Code)
}

func TestValidateWarnsOnExpiringAuthorization(t *testing.T) {
	db := setupValidatorDB(t)
	f := newFixture(t, db)
	v := newTestValidator(t, db, clock.NewFakeClock(testNow))

	auth := f.insertAuth(t, 100, 0, func(a *authdomain.Authorization) {
		a.EndDate = testNow.AddDate(0, 0, 14)
	})
	svc := f.insertService(t, &auth.ID, 1, nil)

	results, err := v.Validate(f.ctx, []snowflake.ID{svc.ID})
	require.NoError(t, err)
	assert.True(t, results[0].IsValid)
	require.NotEmpty(t, results[0].Warnings)
	assert.Equal(t, domain.WarnAuthExpiringSoon, results[0].Warnings[0].Code)
}

func TestValidateRejectsDuplicateServiceIDs(t *testing.T) {
	db := setupValidatorDB(t)
	f := newFixture(t, db)
	v := newTestValidator(t, db, clock.NewFakeClock(testNow))

	auth := f.insertAuth(t, 100, 0, nil)
	svc := f.insertService(t, &auth.ID, 1, nil)

	_, err := v.Validate(f.ctx, []snowflake.ID{svc.ID, svc.ID})
	assert.ErrorIs(t, err, domain.ErrDuplicateServiceID)
}
