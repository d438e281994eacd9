package service

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/carebridge/revcycle/internal/actorctx"
	"github.com/carebridge/revcycle/internal/aging/domain"
	claimdomain "github.com/carebridge/revcycle/internal/claim/domain"
	"github.com/carebridge/revcycle/internal/config"
	paymentdomain "github.com/carebridge/revcycle/internal/payment/domain"
	svcdomain "github.com/carebridge/revcycle/internal/servicedelivery/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Billing     *config.BillingConfigHolder
	ClaimRepo   claimdomain.Repository
	PaymentRepo paymentdomain.Repository
	ServiceRepo svcdomain.Repository
}

type Calculator struct {
	db          *gorm.DB
	log         *zap.Logger
	billing     *config.BillingConfigHolder
	claimRepo   claimdomain.Repository
	paymentRepo paymentdomain.Repository
	serviceRepo svcdomain.Repository
}

func NewCalculator(p Params) domain.Calculator {
	return &Calculator{
		db:          p.DB,
		log:         p.Log.Named("aging.calculator"),
		billing:     p.Billing,
		claimRepo:   p.ClaimRepo,
		paymentRepo: p.PaymentRepo,
		serviceRepo: p.ServiceRepo,
	}
}

func (c *Calculator) ComputeAging(ctx context.Context, asOf time.Time, filters domain.Filters) (*domain.Report, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, claimdomain.ErrClaimNotFound
	}
	cfg := c.billing.Get()

	lines, err := c.buildLines(ctx, orgID, asOf, filters, cfg)
	if err != nil {
		return nil, err
	}

	report := &domain.Report{
		AsOf:     asOf,
		AgeBasis: cfg.AgeBasis,
		Buckets:  map[string]int64{},
		Lines:    lines,
	}

	byPayer := map[snowflake.ID]*domain.GroupAging{}
	for _, line := range lines {
		report.OutstandingCents += line.OutstandingCents
		report.Buckets[line.Bucket] += line.OutstandingCents

		g := byPayer[line.PayerID]
		if g == nil {
			g = &domain.GroupAging{GroupID: line.PayerID, Buckets: map[string]int64{}}
			byPayer[line.PayerID] = g
		}
		g.Buckets[line.Bucket] += line.OutstandingCents
		g.OutstandingCents += line.OutstandingCents
	}
	report.ByPayer = sortGroups(byPayer)

	byProgram, err := c.aggregateByProgram(ctx, orgID, lines)
	if err != nil {
		return nil, err
	}
	report.ByProgram = byProgram
	return report, nil
}

func (c *Calculator) CollectionWorklist(ctx context.Context, asOf time.Time, limit int) ([]domain.WorklistItem, error) {
	orgID, ok := actorctx.OrgIDFromContext(ctx)
	if !ok {
		return nil, claimdomain.ErrClaimNotFound
	}
	cfg := c.billing.Get()

	lines, err := c.buildLines(ctx, orgID, asOf, domain.Filters{}, cfg)
	if err != nil {
		return nil, err
	}

	items := make([]domain.WorklistItem, 0, len(lines))
	for _, line := range lines {
		weight := cfg.CurrentBucketWeight
		if line.Bucket != domain.BucketCurrent {
			_, weight = cfg.BucketFor(line.AgeDays)
		}
		items = append(items, domain.WorklistItem{
			Line:     line,
			Priority: weight * float64(line.OutstandingCents) / 100,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].AgeDays > items[j].AgeDays
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// buildLines loads every open claim, nets out payments, and places each
// remaining balance in its bucket.
func (c *Calculator) buildLines(ctx context.Context, orgID snowflake.ID, asOf time.Time, filters domain.Filters, cfg config.BillingConfig) ([]domain.Line, error) {
	var (
		claims []claimdomain.Claim
		err    error
	)
	if filters.PayerID != 0 {
		claims, err = c.claimRepo.ListOutstandingByPayer(ctx, c.db, orgID, snowflake.ID(filters.PayerID))
	} else {
		claims, err = c.claimRepo.ListOutstanding(ctx, c.db, orgID)
	}
	if err != nil {
		return nil, err
	}

	claimIDs := make([]snowflake.ID, 0, len(claims))
	for _, cl := range claims {
		claimIDs = append(claimIDs, cl.ID)
	}
	paidTotals, err := c.paymentRepo.PaidTotalsByClaims(ctx, c.db, claimIDs)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.Line, 0, len(claims))
	for _, cl := range claims {
		if filters.ClientID != 0 && cl.ClientID != snowflake.ID(filters.ClientID) {
			continue
		}
		outstanding := cl.TotalAmountCents - paidTotals[cl.ID]
		if outstanding <= 0 {
			continue
		}

		ageDays, bucket := c.placeClaim(&cl, asOf, cfg)
		lines = append(lines, domain.Line{
			ClaimID:          cl.ID,
			ClaimNumber:      cl.ClaimNumber,
			PayerID:          cl.PayerID,
			ClientID:         cl.ClientID,
			Status:           cl.Status,
			AgeDays:          ageDays,
			Bucket:           bucket,
			OutstandingCents: outstanding,
		})
	}
	return lines, nil
}

// placeClaim computes age in whole days from the configured basis date.
// Unsubmitted claims are Current regardless of age.
func (c *Calculator) placeClaim(cl *claimdomain.Claim, asOf time.Time, cfg config.BillingConfig) (int, string) {
	basis := cl.ServiceEndDate
	if cfg.AgeBasis == config.AgeBasisSubmission && cl.SubmissionDate != nil {
		basis = *cl.SubmissionDate
	}
	ageDays := int(asOf.Sub(basis).Hours() / 24)
	if ageDays < 0 {
		ageDays = 0
	}

	if cl.SubmissionDate == nil {
		return ageDays, domain.BucketCurrent
	}
	label, _ := cfg.BucketFor(ageDays)
	return ageDays, label
}

func sortGroups(m map[snowflake.ID]*domain.GroupAging) []domain.GroupAging {
	out := make([]domain.GroupAging, 0, len(m))
	for _, g := range m {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OutstandingCents > out[j].OutstandingCents
	})
	return out
}

// aggregateByProgram prorates each claim's outstanding balance across its
// programs by service-amount share.
func (c *Calculator) aggregateByProgram(ctx context.Context, orgID snowflake.ID, lines []domain.Line) ([]domain.GroupAging, error) {
	claimIDs := make([]snowflake.ID, 0, len(lines))
	for _, line := range lines {
		claimIDs = append(claimIDs, line.ClaimID)
	}
	programAmounts, err := c.serviceRepo.ProgramAmountsByClaims(ctx, c.db, orgID, claimIDs)
	if err != nil {
		return nil, err
	}

	byProgram := map[snowflake.ID]*domain.GroupAging{}
	for _, line := range lines {
		programs := programAmounts[line.ClaimID]
		var claimTotal int64
		for _, amt := range programs {
			claimTotal += amt
		}
		if claimTotal == 0 {
			continue
		}
		for programID, amt := range programs {
			share := line.OutstandingCents * amt / claimTotal
			g := byProgram[programID]
			if g == nil {
				g = &domain.GroupAging{GroupID: programID, Buckets: map[string]int64{}}
				byProgram[programID] = g
			}
			g.Buckets[line.Bucket] += share
			g.OutstandingCents += share
		}
	}
	return sortGroups(byProgram), nil
}
