// Package matcher scores how well an incoming payment fits an outstanding
// claim. Scoring is a pure function over plain facts so it can be exercised
// without a database.
package matcher

import (
	"fmt"
	"math"
	"time"

	"github.com/carebridge/revcycle/internal/config"
)

// PaymentFacts is the slice of a payment the heuristic needs.
type PaymentFacts struct {
	AmountCents int64
	PaymentDate time.Time
}

// Candidate is the slice of an outstanding claim the heuristic needs.
// OutstandingCents is the claim total minus everything already paid.
type Candidate struct {
	ClaimNumber      string
	OutstandingCents int64
	ServiceStartDate time.Time
	ServiceEndDate   time.Time
	SubmissionDate   *time.Time
}

// RemittanceHint carries the remittance line reference when a remittance
// accompanies the payment. A claim number match is near-certain.
type RemittanceHint struct {
	ClaimNumber     string
	PaidAmountCents int64
}

// Result is a composite confidence in [0,1] with the dominant signal
// spelled out for the operator.
type Result struct {
	Score  float64
	Reason string
}

// ScoreCandidate combines amount proximity, payment-date plausibility
// against the claim's service window, and payer turnaround fit. A
// remittance line naming the candidate's claim number short-circuits to a
// certain match.
func ScoreCandidate(p PaymentFacts, c Candidate, hint *RemittanceHint, w config.MatcherWeights, turnaroundDays int) Result {
	if hint != nil && hint.ClaimNumber != "" && hint.ClaimNumber == c.ClaimNumber {
		return Result{
			Score:  1.0,
			Reason: fmt.Sprintf("remittance line references claim %s", c.ClaimNumber),
		}
	}

	amount := amountScore(p.AmountCents, c.OutstandingCents)
	dateRange := dateRangeScore(p.PaymentDate, c.ServiceEndDate)
	turnaround := turnaroundScore(p.PaymentDate, c, turnaroundDays)

	score := w.Amount*amount + w.DateRange*dateRange + w.Turnaround*turnaround
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}

	return Result{Score: score, Reason: dominantReason(p, c, amount, dateRange, turnaround)}
}

// amountScore is 1.0 on an exact outstanding-balance match and falls off
// with the relative difference.
func amountScore(paymentCents, outstandingCents int64) float64 {
	if outstandingCents <= 0 {
		return 0
	}
	if paymentCents == outstandingCents {
		return 1
	}
	diff := math.Abs(float64(paymentCents - outstandingCents))
	base := math.Max(float64(paymentCents), float64(outstandingCents))
	s := 1 - diff/base
	if s < 0 {
		return 0
	}
	return s
}

// dateRangeScore rewards payments that arrive after the service period.
// A payment dated before care was delivered is implausible.
func dateRangeScore(paymentDate, serviceEnd time.Time) float64 {
	days := paymentDate.Sub(serviceEnd).Hours() / 24
	switch {
	case days < 0:
		return 0
	case days <= 90:
		return 1
	case days <= 365:
		return 1 - (days-90)/275
	default:
		return 0
	}
}

// turnaroundScore peaks when the elapsed time since submission (or service
// end when never submitted) matches the payer's typical turnaround.
func turnaroundScore(paymentDate time.Time, c Candidate, turnaroundDays int) float64 {
	if turnaroundDays <= 0 {
		return 0
	}
	anchor := c.ServiceEndDate
	if c.SubmissionDate != nil {
		anchor = *c.SubmissionDate
	}
	elapsed := paymentDate.Sub(anchor).Hours() / 24
	if elapsed < 0 {
		return 0
	}
	deviation := math.Abs(elapsed-float64(turnaroundDays)) / float64(turnaroundDays)
	s := 1 - deviation
	if s < 0 {
		return 0
	}
	return s
}

func dominantReason(p PaymentFacts, c Candidate, amount, dateRange, turnaround float64) string {
	switch {
	case amount >= dateRange && amount >= turnaround:
		if p.AmountCents == c.OutstandingCents {
			return fmt.Sprintf("payment equals outstanding balance on claim %s", c.ClaimNumber)
		}
		return fmt.Sprintf("payment amount is close to outstanding balance on claim %s", c.ClaimNumber)
	case dateRange >= turnaround:
		return fmt.Sprintf("payment date is consistent with claim %s service period", c.ClaimNumber)
	default:
		return fmt.Sprintf("claim %s age matches typical payer turnaround", c.ClaimNumber)
	}
}
