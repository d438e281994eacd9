package matcher

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/carebridge/revcycle/internal/config"
)

var weights = config.MatcherWeights{Amount: 0.55, DateRange: 0.25, Turnaround: 0.20}

func day(offset int) time.Time {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, offset)
}

func TestScoreCandidatePerfectMatch(t *testing.T) {
	c := Candidate{
		ClaimNumber:      "CLM-2026-000001",
		OutstandingCents: 50000,
		ServiceStartDate: day(-40),
		ServiceEndDate:   day(-30),
	}
	p := PaymentFacts{AmountCents: 50000, PaymentDate: day(0)}

	// Exact amount, 30 days after service end, payer turnaround 30 days.
	res := ScoreCandidate(p, c, nil, weights, 30)
	assert.InDelta(t, 1.0, res.Score, 1e-9)
	assert.Contains(t, res.Reason, "equals outstanding balance")
}

func TestScoreCandidateAmountMismatchLowersScore(t *testing.T) {
	c := Candidate{
		ClaimNumber:      "CLM-2026-000002",
		OutstandingCents: 10000,
		ServiceEndDate:   day(-30),
	}
	p := PaymentFacts{AmountCents: 5000, PaymentDate: day(0)}

	res := ScoreCandidate(p, c, nil, weights, 30)
	// amount 0.5, date range 1.0, turnaround 1.0
	assert.InDelta(t, 0.55*0.5+0.25+0.20, res.Score, 1e-9)
}

func TestScoreCandidatePaymentBeforeServiceEnd(t *testing.T) {
	c := Candidate{
		ClaimNumber:      "CLM-2026-000003",
		OutstandingCents: 20000,
		ServiceEndDate:   day(10),
	}
	p := PaymentFacts{AmountCents: 20000, PaymentDate: day(0)}

	// Paying for care not yet delivered scores only on the amount signal.
	res := ScoreCandidate(p, c, nil, weights, 30)
	assert.InDelta(t, 0.55, res.Score, 1e-9)
}

func TestScoreCandidateTurnaroundAnchorsOnSubmission(t *testing.T) {
	submitted := day(-30)
	c := Candidate{
		ClaimNumber:      "CLM-2026-000004",
		OutstandingCents: 30000,
		ServiceEndDate:   day(-120),
		SubmissionDate:   &submitted,
	}
	p := PaymentFacts{AmountCents: 30000, PaymentDate: day(0)}

	// 30 days since submission matches a 30-day payer exactly even though
	// the service period is much older.
	res := ScoreCandidate(p, c, nil, weights, 30)
	dateRange := 1 - (120.0-90.0)/275.0
	assert.InDelta(t, 0.55+0.25*dateRange+0.20, res.Score, 1e-9)
}

func TestScoreCandidateRemittanceHintIsCertain(t *testing.T) {
	c := Candidate{
		ClaimNumber:      "CLM-2026-000005",
		OutstandingCents: 75000,
		ServiceEndDate:   day(-10),
	}
	// Amount disagrees wildly, the remittance line still decides.
	p := PaymentFacts{AmountCents: 100, PaymentDate: day(0)}
	hint := &RemittanceHint{ClaimNumber: "CLM-2026-000005", PaidAmountCents: 100}

	res := ScoreCandidate(p, c, hint, weights, 30)
	assert.Equal(t, 1.0, res.Score)
	assert.Contains(t, res.Reason, "remittance line references claim")
}

func TestScoreCandidateHintForOtherClaimIsIgnored(t *testing.T) {
	c := Candidate{
		ClaimNumber:      "CLM-2026-000006",
		OutstandingCents: 75000,
		ServiceEndDate:   day(-30),
	}
	p := PaymentFacts{AmountCents: 70000, PaymentDate: day(0)}
	hint := &RemittanceHint{ClaimNumber: "CLM-2026-000099"}

	res := ScoreCandidate(p, c, hint, weights, 30)
	assert.Less(t, res.Score, 1.0)
	assert.NotContains(t, res.Reason, "remittance")
}

func TestScoreCandidateDecaysWithStaleness(t *testing.T) {
	c := Candidate{
		ClaimNumber:      "CLM-2026-000007",
		OutstandingCents: 40000,
		ServiceEndDate:   day(-400),
	}
	p := PaymentFacts{AmountCents: 40000, PaymentDate: day(0)}

	res := ScoreCandidate(p, c, nil, weights, 30)
	// Date range and turnaround both zero out beyond a year.
	assert.InDelta(t, 0.55, res.Score, 1e-9)
}

func TestScoreCandidateBounds(t *testing.T) {
	for i, c := range []Candidate{
		{ClaimNumber: "CLM-A", OutstandingCents: 0, ServiceEndDate: day(-10)},
		{ClaimNumber: "CLM-B", OutstandingCents: 1, ServiceEndDate: day(-10)},
		{ClaimNumber: "CLM-C", OutstandingCents: 1 << 40, ServiceEndDate: day(-500)},
	} {
		t.Run(fmt.Sprintf("candidate_%d", i), func(t *testing.T) {
			res := ScoreCandidate(PaymentFacts{AmountCents: 12345, PaymentDate: day(0)}, c, nil, weights, 30)
			assert.GreaterOrEqual(t, res.Score, 0.0)
			assert.LessOrEqual(t, res.Score, 1.0)
		})
	}
}
