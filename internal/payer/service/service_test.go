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
	"github.com/carebridge/revcycle/internal/clock"
	"github.com/carebridge/revcycle/internal/payer/domain"
	payerrepo "github.com/carebridge/revcycle/internal/payer/repository"
)

var testNow = time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db    *gorm.DB
	orgID snowflake.ID
	ctx   context.Context
	svc   domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Payer{}, &auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(8)
	require.NoError(t, err)
	clk := clock.NewFakeClock(testNow)
	log := zap.NewNop()

	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, Clock: clk, GenID: node, Repo: auditrepo.Provide(),
	})
	svc := NewService(Params{
		DB: db, Log: log, Clock: clk, GenID: node, Repo: payerrepo.Provide(), Audit: audit,
	})

	orgID := node.Generate()
	return &fixture{
		db:    db,
		orgID: orgID,
		ctx:   actorctx.WithOrgID(context.Background(), orgID),
		svc:   svc,
	}
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) *domain.Payer {
	t.Helper()
	var payer domain.Payer
	require.NoError(t, f.db.First(&payer, "id = ?", id).Error)
	return &payer
}

func boolPtr(b bool) *bool { return &b }

func TestCreateAppliesDefaults(t *testing.T) {
	f := newFixture(t)

	payer, err := f.svc.Create(f.ctx, domain.CreatePayerRequest{
		Code: "medicaid-oh", Name: "Ohio Medicaid", PayerType: domain.PayerTypeMedicaid,
	})
	require.NoError(t, err)

	got := f.reload(t, payer.ID)
	assert.Equal(t, "MEDICAID-OH", got.Code)
	assert.True(t, got.RequiresAuthorization)
	assert.Equal(t, 30, got.AvgTurnaroundDays)
	assert.Equal(t, 60, got.AppealWindowDays)
	assert.True(t, got.Active)
}

func TestCreatePersistsAuthorizationWaiver(t *testing.T) {
	f := newFixture(t)

	payer, err := f.svc.Create(f.ctx, domain.CreatePayerRequest{
		Code:                  "PRIVATE",
		Name:                  "Private Pay",
		PayerType:             domain.PayerTypePrivate,
		RequiresAuthorization: boolPtr(false),
	})
	require.NoError(t, err)
	assert.False(t, payer.RequiresAuthorization)

	// The waiver must survive the round trip to the database, not just
	// the in-memory struct returned by Create.
	got := f.reload(t, payer.ID)
	assert.False(t, got.RequiresAuthorization)
	assert.True(t, got.Active)
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	f := newFixture(t)

	req := domain.CreatePayerRequest{
		Code: "MCO-1", Name: "Buckeye", PayerType: domain.PayerTypeMCO,
	}
	_, err := f.svc.Create(f.ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Create(f.ctx, req)
	assert.ErrorIs(t, err, domain.ErrPayerCodeConflict)
}

func TestUpdatePersistsDeactivation(t *testing.T) {
	f := newFixture(t)

	payer, err := f.svc.Create(f.ctx, domain.CreatePayerRequest{
		Code: "MCO-2", Name: "CareSource", PayerType: domain.PayerTypeMCO,
	})
	require.NoError(t, err)

	_, err = f.svc.Update(f.ctx, payer.ID, domain.UpdatePayerRequest{
		RequiresAuthorization: boolPtr(false),
		Active:                boolPtr(false),
	})
	require.NoError(t, err)

	got := f.reload(t, payer.ID)
	assert.False(t, got.RequiresAuthorization)
	assert.False(t, got.Active)
}
