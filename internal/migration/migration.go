package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	auditdomain "github.com/carebridge/revcycle/internal/audit/domain"
	authzdomain "github.com/carebridge/revcycle/internal/authorization/domain"
	claimdomain "github.com/carebridge/revcycle/internal/claim/domain"
	payerdomain "github.com/carebridge/revcycle/internal/payer/domain"
	paymentdomain "github.com/carebridge/revcycle/internal/payment/domain"
	recondomain "github.com/carebridge/revcycle/internal/reconciliation/domain"
	remitdomain "github.com/carebridge/revcycle/internal/remittance/domain"
	svcdomain "github.com/carebridge/revcycle/internal/servicedelivery/domain"
)

// RunMigrations applies the versioned schema to a PostgreSQL database so the
// service is usable out of the box for local and self-hosted deployments.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema via gorm for dialects the versioned
// migrations do not target (sqlite, mysql).
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&payerdomain.Payer{},
		&authzdomain.Authorization{},
		&svcdomain.DeliveredService{},
		&claimdomain.Claim{},
		&claimdomain.ClaimCounter{},
		&paymentdomain.Payment{},
		&paymentdomain.ClaimPayment{},
		&paymentdomain.PaymentAdjustment{},
		&remitdomain.RemittanceInfo{},
		&remitdomain.RemittanceDetail{},
		&recondomain.ReconciliationBatch{},
		&auditdomain.AuditLog{},
	)
}
