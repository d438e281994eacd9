package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	authzdomain "github.com/carebridge/revcycle/internal/authorization/domain"
	payerdomain "github.com/carebridge/revcycle/internal/payer/domain"
	svcdomain "github.com/carebridge/revcycle/internal/servicedelivery/domain"
)

const (
	demoPayerCode  = "MCD-DEMO"
	demoPayerName  = "Demo State Medicaid"
	demoAuthNumber = "AUTH-DEMO-0001"
)

// EnsureDemoData seeds a payer, an active authorization, and a pair of
// delivered services so a fresh install has something to validate and bill.
// Re-running is a no-op.
func EnsureDemoData(db *gorm.DB, orgID int64) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	org := snowflake.ID(orgID)
	if org == 0 {
		org = node.Generate()
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payer, err := ensureDemoPayer(ctx, tx, node, org)
		if err != nil {
			return err
		}
		auth, err := ensureDemoAuthorization(ctx, tx, node, org, payer.ID)
		if err != nil {
			return err
		}
		return ensureDemoServices(ctx, tx, node, org, auth)
	})
}

func ensureDemoPayer(ctx context.Context, tx *gorm.DB, node *snowflake.Node, orgID snowflake.ID) (payerdomain.Payer, error) {
	var payer payerdomain.Payer
	err := tx.WithContext(ctx).
		Where("org_id = ? AND code = ?", orgID, demoPayerCode).
		First(&payer).Error
	if err == nil {
		return payer, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return payer, err
	}

	now := time.Now().UTC()
	payer = payerdomain.Payer{
		ID:                    node.Generate(),
		OrgID:                 orgID,
		Code:                  demoPayerCode,
		Name:                  demoPayerName,
		PayerType:             payerdomain.PayerTypeMedicaid,
		RequiresAuthorization: true,
		AvgTurnaroundDays:     30,
		AppealWindowDays:      60,
		Active:                true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	return payer, tx.WithContext(ctx).Create(&payer).Error
}

func ensureDemoAuthorization(ctx context.Context, tx *gorm.DB, node *snowflake.Node, orgID, payerID snowflake.ID) (authzdomain.Authorization, error) {
	var auth authzdomain.Authorization
	err := tx.WithContext(ctx).
		Where("org_id = ? AND auth_number = ?", orgID, demoAuthNumber).
		First(&auth).Error
	if err == nil {
		return auth, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return auth, err
	}

	now := time.Now().UTC()
	auth = authzdomain.Authorization{
		ID:              node.Generate(),
		OrgID:           orgID,
		AuthNumber:      demoAuthNumber,
		ClientID:        node.Generate(),
		PayerID:         payerID,
		Status:          authzdomain.AuthStatusActive,
		AuthorizedUnits: 480,
		UsedUnits:       0,
		StartDate:       now.AddDate(0, -1, 0),
		EndDate:         now.AddDate(0, 5, 0),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return auth, tx.WithContext(ctx).Create(&auth).Error
}

func ensureDemoServices(ctx context.Context, tx *gorm.DB, node *snowflake.Node, orgID snowflake.ID, auth authzdomain.Authorization) error {
	var count int64
	if err := tx.WithContext(ctx).
		Model(&svcdomain.DeliveredService{}).
		Where("org_id = ? AND authorization_id = ?", orgID, auth.ID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	programID := node.Generate()
	services := []svcdomain.DeliveredService{
		{
			ID:                  node.Generate(),
			OrgID:               orgID,
			ClientID:            auth.ClientID,
			ProgramID:           programID,
			AuthorizationID:     &auth.ID,
			ServiceType:         "personal_care",
			ServiceDate:         now.AddDate(0, 0, -10),
			UnitsDelivered:      4,
			RateCents:           2500,
			DocumentationStatus: svcdomain.DocStatusComplete,
			BillingStatus:       svcdomain.BillingStatusUnbilled,
			CreatedAt:           now,
			UpdatedAt:           now,
		},
		{
			ID:                  node.Generate(),
			OrgID:               orgID,
			ClientID:            auth.ClientID,
			ProgramID:           programID,
			AuthorizationID:     &auth.ID,
			ServiceType:         "respite",
			ServiceDate:         now.AddDate(0, 0, -7),
			UnitsDelivered:      2.5,
			RateCents:           3200,
			DocumentationStatus: svcdomain.DocStatusIncomplete,
			MissingDocs:         datatypes.JSON(`["progress_note"]`),
			BillingStatus:       svcdomain.BillingStatusUnbilled,
			CreatedAt:           now,
			UpdatedAt:           now,
		},
	}

	for i := range services {
		services[i].AmountCents = svcdomain.ComputeAmountCents(services[i].UnitsDelivered, services[i].RateCents)
	}
	return tx.WithContext(ctx).Create(&services).Error
}
