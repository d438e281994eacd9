package scheduler

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

	auditdomain "github.com/carebridge/revcycle/internal/audit/domain"
	auditrepo "github.com/carebridge/revcycle/internal/audit/repository"
	auditservice "github.com/carebridge/revcycle/internal/audit/service"
	authzdomain "github.com/carebridge/revcycle/internal/authorization/domain"
	authzrepo "github.com/carebridge/revcycle/internal/authorization/repository"
	authzservice "github.com/carebridge/revcycle/internal/authorization/service"
	"github.com/carebridge/revcycle/internal/clock"
)

var testNow = time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)

func newScheduler(t *testing.T) (*Scheduler, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&authzdomain.Authorization{}, &auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	clk := clock.NewFakeClock(testNow)
	log := zap.NewNop()

	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, Clock: clk, GenID: node, Repo: auditrepo.Provide(),
	})
	authzSvc := authzservice.NewService(authzservice.Params{
		DB: db, Log: log, Clock: clk, GenID: node, Repo: authzrepo.Provide(), Audit: audit,
	})

	sched, err := New(Params{Log: log, AuthzSvc: authzSvc, Clock: clk})
	require.NoError(t, err)
	return sched, db, node
}

func insertAuth(t *testing.T, db *gorm.DB, node *snowflake.Node, status authzdomain.AuthorizationStatus, end time.Time) *authzdomain.Authorization {
	t.Helper()
	auth := &authzdomain.Authorization{
		ID:              node.Generate(),
		OrgID:           node.Generate(),
		AuthNumber:      fmt.Sprintf("AUTH-%d", node.Generate()),
		ClientID:        node.Generate(),
		PayerID:         node.Generate(),
		Status:          status,
		AuthorizedUnits: 100,
		StartDate:       end.AddDate(0, -6, 0),
		EndDate:         end,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
	require.NoError(t, db.Create(auth).Error)
	return auth
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 15*time.Minute, cfg.RunInterval)
	assert.Equal(t, 2*time.Minute, cfg.JobTimeout)

	custom := Config{RunInterval: time.Minute, JobTimeout: time.Second}.withDefaults()
	assert.Equal(t, time.Minute, custom.RunInterval)
	assert.Equal(t, time.Second, custom.JobTimeout)
}

func TestRunOnceExpiresOverdueAuthorizations(t *testing.T) {
	sched, db, node := newScheduler(t)

	// Sweeps cover every org; no actor context is attached.
	overdue := insertAuth(t, db, node, authzdomain.AuthStatusActive, testNow.AddDate(0, 0, -1))
	current := insertAuth(t, db, node, authzdomain.AuthStatusActive, testNow.AddDate(0, 1, 0))
	cancelled := insertAuth(t, db, node, authzdomain.AuthStatusCancelled, testNow.AddDate(0, 0, -1))

	sched.RunOnce(context.Background())

	assert.Equal(t, authzdomain.AuthStatusExpired, reloadAuth(t, db, overdue.ID).Status)
	assert.Equal(t, authzdomain.AuthStatusActive, reloadAuth(t, db, current.ID).Status)
	assert.Equal(t, authzdomain.AuthStatusCancelled, reloadAuth(t, db, cancelled.ID).Status)
}

func reloadAuth(t *testing.T, db *gorm.DB, id snowflake.ID) *authzdomain.Authorization {
	t.Helper()
	var auth authzdomain.Authorization
	require.NoError(t, db.First(&auth, "id = ?", id).Error)
	return &auth
}

func TestRunOnceIsIdempotent(t *testing.T) {
	sched, db, node := newScheduler(t)
	overdue := insertAuth(t, db, node, authzdomain.AuthStatusActive, testNow.AddDate(0, 0, -1))

	sched.RunOnce(context.Background())
	sched.RunOnce(context.Background())

	assert.Equal(t, authzdomain.AuthStatusExpired, reloadAuth(t, db, overdue.ID).Status)
}
