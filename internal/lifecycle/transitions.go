package lifecycle

import (
	"fmt"

	"github.com/barterchain/chainengine/internal/domain"
)

// validTransitions is the explicit status graph from the external
// interfaces contract. Unlike a swap's binary state machine this one has
// multiple fan-out edges driven by participant-level progress rather than
// a single event, so every operation calls transitionTo immediately
// before it persists a status change; the finer-grained "have all
// participants done X" gating that decides whether a status change
// happens at all still lives in the per-operation methods.
var validTransitions = map[domain.ProposalStatus][]domain.ProposalStatus{
	domain.StatusProposed:          {domain.StatusPendingAcceptance, domain.StatusLocked, domain.StatusFailed, domain.StatusExpired},
	domain.StatusPendingAcceptance: {domain.StatusLocked, domain.StatusFailed, domain.StatusExpired},
	domain.StatusLocked:            {domain.StatusShipping, domain.StatusFailed, domain.StatusExpired},
	domain.StatusEscrowFunded:      {domain.StatusShipping, domain.StatusFailed, domain.StatusExpired},
	domain.StatusShipping:          {domain.StatusCompleted, domain.StatusFailed, domain.StatusExpired},
	domain.StatusCompleted:         {},
	domain.StatusFailed:            {},
	domain.StatusExpired:           {},
}

// transitionTo checks newStatus against the valid-transition table for
// status, mirroring Swap.TransitionTo's explicit map[State][]State gate.
func transitionTo(status, newStatus domain.ProposalStatus) error {
	allowed, ok := validTransitions[status]
	if !ok {
		return fmt.Errorf("%w: unknown current status %s", ErrIntegrityViolation, status)
	}
	for _, s := range allowed {
		if s == newStatus {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrIllegalTransition, status, newStatus)
}
