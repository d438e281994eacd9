package domain

import "fmt"

type ClaimStatus string

const (
	StatusDraft        ClaimStatus = "DRAFT"
	StatusValidated    ClaimStatus = "VALIDATED"
	StatusSubmitted    ClaimStatus = "SUBMITTED"
	StatusAcknowledged ClaimStatus = "ACKNOWLEDGED"
	StatusPending      ClaimStatus = "PENDING"
	StatusPaid         ClaimStatus = "PAID"
	StatusPartialPaid  ClaimStatus = "PARTIAL_PAID"
	StatusDenied       ClaimStatus = "DENIED"
	StatusAppealed     ClaimStatus = "APPEALED"
	StatusVoid         ClaimStatus = "VOID"
	StatusFinalDenied  ClaimStatus = "FINAL_DENIED"
)

// transitions is the full lifecycle graph. VOID edges from non-terminal
// states are added in init so the table here only lists the business edges.
var transitions = map[ClaimStatus]map[ClaimStatus]struct{}{
	StatusDraft:        edges(StatusValidated),
	StatusValidated:    edges(StatusSubmitted, StatusDraft),
	StatusSubmitted:    edges(StatusAcknowledged, StatusDenied),
	StatusAcknowledged: edges(StatusPending, StatusDenied),
	StatusPending:      edges(StatusPaid, StatusPartialPaid, StatusDenied),
	StatusPartialPaid:  edges(StatusPaid, StatusDenied, StatusAppealed),
	StatusDenied:       edges(StatusAppealed, StatusFinalDenied),
	StatusAppealed:     edges(StatusPaid, StatusPartialPaid, StatusFinalDenied),
	StatusPaid:         {},
	StatusVoid:         {},
	StatusFinalDenied:  {},
}

// voidable are the states from which a claim may be voided.
var voidable = map[ClaimStatus]struct{}{
	StatusDraft: {}, StatusValidated: {}, StatusSubmitted: {},
	StatusAcknowledged: {}, StatusPending: {}, StatusPartialPaid: {},
	StatusDenied: {}, StatusAppealed: {},
}

func init() {
	for from := range voidable {
		transitions[from][StatusVoid] = struct{}{}
	}
}

func edges(to ...ClaimStatus) map[ClaimStatus]struct{} {
	m := make(map[ClaimStatus]struct{}, len(to))
	for _, s := range to {
		m[s] = struct{}{}
	}
	return m
}

// InvalidTransitionError reports an attempted edge outside the lifecycle
// graph. The claim is left untouched when this is returned.
type InvalidTransitionError struct {
	From ClaimStatus
	To   ClaimStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid claim transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to ClaimStatus) bool {
	targets, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// Transition validates the edge and returns the new status, or an
// InvalidTransitionError leaving the caller's state unchanged.
func Transition(from, to ClaimStatus) (ClaimStatus, error) {
	if !CanTransition(from, to) {
		return from, &InvalidTransitionError{From: from, To: to}
	}
	return to, nil
}

// IsTerminal reports whether no edge leaves the status.
func IsTerminal(s ClaimStatus) bool {
	return len(transitions[s]) == 0
}

// PaymentAppliable reports whether a payment may be applied to a claim in
// this status.
func PaymentAppliable(s ClaimStatus) bool {
	switch s {
	case StatusPending, StatusAcknowledged, StatusPartialPaid, StatusAppealed:
		return true
	}
	return false
}

// AllStatuses lists every lifecycle state, used for validation of inputs.
func AllStatuses() []ClaimStatus {
	return []ClaimStatus{
		StatusDraft, StatusValidated, StatusSubmitted, StatusAcknowledged,
		StatusPending, StatusPaid, StatusPartialPaid, StatusDenied,
		StatusAppealed, StatusVoid, StatusFinalDenied,
	}
}
