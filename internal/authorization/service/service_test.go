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
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/carebridge/revcycle/internal/actorctx"
	auditdomain "github.com/carebridge/revcycle/internal/audit/domain"
	auditrepo "github.com/carebridge/revcycle/internal/audit/repository"
	auditservice "github.com/carebridge/revcycle/internal/audit/service"
	"github.com/carebridge/revcycle/internal/authorization/domain"
	authrepo "github.com/carebridge/revcycle/internal/authorization/repository"
	"github.com/carebridge/revcycle/internal/clock"
)

var testNow = time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clk   *clock.FakeClock
	orgID snowflake.ID
	ctx   context.Context
	svc   domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Authorization{}, &auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	clk := clock.NewFakeClock(testNow)
	log := zap.NewNop()

	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, Clock: clk, GenID: node, Repo: auditrepo.Provide(),
	})
	svc := NewService(Params{
		DB: db, Log: log, Clock: clk, GenID: node, Repo: authrepo.Provide(), Audit: audit,
	})

	orgID := node.Generate()
	return &fixture{
		db:    db,
		node:  node,
		clk:   clk,
		orgID: orgID,
		ctx:   actorctx.WithOrgID(context.Background(), orgID),
		svc:   svc,
	}
}

func (f *fixture) createActive(t *testing.T, units float64) *domain.Authorization {
	t.Helper()
	auth, err := f.svc.Create(f.ctx, domain.CreateAuthorizationRequest{
		AuthNumber:      fmt.Sprintf("AUTH-%d", f.node.Generate()),
		ClientID:        int64(f.node.Generate()),
		PayerID:         int64(f.node.Generate()),
		AuthorizedUnits: units,
		StartDate:       testNow.AddDate(0, -1, 0),
		EndDate:         testNow.AddDate(0, 2, 0),
		Activate:        true,
	})
	require.NoError(t, err)
	return auth
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) *domain.Authorization {
	t.Helper()
	var auth domain.Authorization
	require.NoError(t, f.db.First(&auth, "id = ?", id).Error)
	return &auth
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(f.ctx, domain.CreateAuthorizationRequest{
		AuthNumber: "AUTH-1", ClientID: 1, PayerID: 1,
		AuthorizedUnits: 0,
		StartDate:       testNow, EndDate: testNow.AddDate(0, 1, 0),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidUnits)

	_, err = f.svc.Create(f.ctx, domain.CreateAuthorizationRequest{
		AuthNumber: "AUTH-1", ClientID: 1, PayerID: 1,
		AuthorizedUnits: 10,
		StartDate:       testNow, EndDate: testNow.AddDate(0, 0, -1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDateRange)
}

func TestCreateRejectsDuplicateAuthNumber(t *testing.T) {
	f := newFixture(t)

	req := domain.CreateAuthorizationRequest{
		AuthNumber: "AUTH-DUP", ClientID: 1, PayerID: 1,
		AuthorizedUnits: 10,
		StartDate:       testNow, EndDate: testNow.AddDate(0, 1, 0),
	}
	_, err := f.svc.Create(f.ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Create(f.ctx, req)
	assert.ErrorIs(t, err, domain.ErrAuthNumberConflict)
}

func TestConsumeUnitsEnforcesBalance(t *testing.T) {
	f := newFixture(t)
	auth := f.createActive(t, 10)

	require.NoError(t, f.svc.ConsumeUnits(f.ctx, f.db, auth.ID, 6))
	assert.InDelta(t, 6, f.reload(t, auth.ID).UsedUnits, 1e-9)

	err := f.svc.ConsumeUnits(f.ctx, f.db, auth.ID, 5)
	assert.ErrorIs(t, err, domain.ErrInsufficientUnits)
	assert.InDelta(t, 6, f.reload(t, auth.ID).UsedUnits, 1e-9)
}

func TestConsumingFullBalanceExhaustsAuthorization(t *testing.T) {
	f := newFixture(t)
	auth := f.createActive(t, 8)

	require.NoError(t, f.svc.ConsumeUnits(f.ctx, f.db, auth.ID, 8))

	got := f.reload(t, auth.ID)
	assert.Equal(t, domain.AuthStatusExhausted, got.Status)
	assert.Zero(t, got.RemainingUnits())

	// Exhausted authorizations accept no further consumption.
	err := f.svc.ConsumeUnits(f.ctx, f.db, auth.ID, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidStatusChange)
}

func TestReleaseUnitsReactivatesExhaustedAuthorization(t *testing.T) {
	f := newFixture(t)
	auth := f.createActive(t, 8)
	require.NoError(t, f.svc.ConsumeUnits(f.ctx, f.db, auth.ID, 8))

	require.NoError(t, f.svc.ReleaseUnits(f.ctx, f.db, auth.ID, 3))

	got := f.reload(t, auth.ID)
	assert.Equal(t, domain.AuthStatusActive, got.Status)
	assert.InDelta(t, 5, got.UsedUnits, 1e-9)
}

func TestReleaseUnitsClampsAtZero(t *testing.T) {
	f := newFixture(t)
	auth := f.createActive(t, 10)
	require.NoError(t, f.svc.ConsumeUnits(f.ctx, f.db, auth.ID, 2))

	require.NoError(t, f.svc.ReleaseUnits(f.ctx, f.db, auth.ID, 5))
	assert.Zero(t, f.reload(t, auth.ID).UsedUnits)
}

func TestActivateAndCancelTransitions(t *testing.T) {
	f := newFixture(t)

	auth, err := f.svc.Create(f.ctx, domain.CreateAuthorizationRequest{
		AuthNumber: "AUTH-DRAFT", ClientID: 1, PayerID: 1,
		AuthorizedUnits: 10,
		StartDate:       testNow, EndDate: testNow.AddDate(0, 1, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.AuthStatusDraft, auth.Status)

	activated, err := f.svc.Activate(f.ctx, auth.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuthStatusActive, activated.Status)

	_, err = f.svc.Activate(f.ctx, auth.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStatusChange)

	cancelled, err := f.svc.Cancel(f.ctx, auth.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuthStatusCancelled, cancelled.Status)

	_, err = f.svc.Cancel(f.ctx, auth.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStatusChange)
}

func TestExpireAllDueSweepsPastEndDates(t *testing.T) {
	f := newFixture(t)

	overdue := f.createActive(t, 10)
	require.NoError(t, f.db.Model(&domain.Authorization{}).
		Where("id = ?", overdue.ID).
		Update("end_date", testNow.AddDate(0, 0, -1)).Error)
	current := f.createActive(t, 10)

	n, err := f.svc.ExpireAllDue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, domain.AuthStatusExpired, f.reload(t, overdue.ID).Status)
	assert.Equal(t, domain.AuthStatusActive, f.reload(t, current.ID).Status)
}
