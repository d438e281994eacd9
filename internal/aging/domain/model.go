package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	claimdomain "github.com/carebridge/revcycle/internal/claim/domain"
)

// BucketCurrent holds claims that have not been submitted yet; they are
// outstanding work, not yet aged receivables.
const BucketCurrent = "Current"

type Filters struct {
	PayerID  int64 `form:"payer_id"`
	ClientID int64 `form:"client_id"`
}

// Line is one outstanding claim placed in its aging bucket.
type Line struct {
	ClaimID          snowflake.ID            `json:"claim_id"`
	ClaimNumber      string                  `json:"claim_number"`
	PayerID          snowflake.ID            `json:"payer_id"`
	ClientID         snowflake.ID            `json:"client_id"`
	Status           claimdomain.ClaimStatus `json:"status"`
	AgeDays          int                     `json:"age_days"`
	Bucket           string                  `json:"bucket"`
	OutstandingCents int64                   `json:"outstanding_cents"`
}

// GroupAging is a bucketed subtotal for one payer or program.
type GroupAging struct {
	GroupID          snowflake.ID     `json:"group_id"`
	Buckets          map[string]int64 `json:"buckets"`
	OutstandingCents int64            `json:"outstanding_cents"`
}

type Report struct {
	AsOf             time.Time        `json:"as_of"`
	AgeBasis         string           `json:"age_basis"`
	OutstandingCents int64            `json:"outstanding_cents"`
	Buckets          map[string]int64 `json:"buckets"`
	ByPayer          []GroupAging     `json:"by_payer"`
	ByProgram        []GroupAging     `json:"by_program"`
	Lines            []Line           `json:"lines"`
}

// WorklistItem is one claim in the collections queue. Priority grows with
// both bucket weight and the dollars outstanding.
type WorklistItem struct {
	Line
	Priority float64 `json:"priority"`
}

type Calculator interface {
	ComputeAging(ctx context.Context, asOf time.Time, filters Filters) (*Report, error)
	CollectionWorklist(ctx context.Context, asOf time.Time, limit int) ([]WorklistItem, error)
}
