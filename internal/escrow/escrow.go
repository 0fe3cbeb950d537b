// Package escrow implements the escrow orchestrator: creating holds on
// fund, capturing on chain completion, and cancelling on chain failure,
// against the external payment provider.
package escrow

import (
	"fmt"

	"github.com/barterchain/chainengine/internal/chainstore"
	"github.com/barterchain/chainengine/internal/domain"
	"github.com/barterchain/chainengine/internal/provider"
	"github.com/barterchain/chainengine/pkg/logging"
	"github.com/google/uuid"
)

// Orchestrator coordinates escrow holds between the proposal store and
// the external payment provider.
type Orchestrator struct {
	store    *chainstore.Store
	payments provider.PaymentProvider
	log      *logging.Logger
}

// New constructs an Orchestrator.
func New(store *chainstore.Store, payments provider.PaymentProvider) *Orchestrator {
	return &Orchestrator{store: store, payments: payments, log: logging.GetDefault().Component("escrow")}
}

// CreateHold opens a manual-capture payment intent for a participant's
// fund() call and persists the resulting hold row in status PENDING.
// Returns the provider reference, or ("", nil) if the total (fee plus
// cash component) is zero (no provider call is made for a zero-amount
// fund).
func (o *Orchestrator) CreateHold(chainID string, userID int64, cashComponent, feeComponent int64, metadata map[string]any) (string, error) {
	total := feeComponent + cashComponent
	if total <= 0 {
		return "", nil
	}

	intent, err := o.payments.CreatePaymentIntent(total, "usd", chainID, userID, metadata, feeComponent)
	if err != nil {
		return "", fmt.Errorf("create payment intent: %w", err)
	}

	hold := domain.EscrowHold{
		ID:                "hold_" + uuid.NewString(),
		ChainID:           chainID,
		PayerID:           userID,
		RecipientID:       0, // sentinel: no single recipient until capture/payout
		AmountCents:       total,
		Status:            domain.HoldPending,
		Provider:          "default",
		ProviderReference: intent.ProviderReference,
	}
	if err := o.store.CreateHold(hold); err != nil {
		return "", fmt.Errorf("persist hold: %w", err)
	}

	return hold.ProviderReference, nil
}

// MarkFunded transitions every PENDING hold for a chain to FUNDED. In
// this engine a hold is considered funded once its intent exists
// (capture happens only at chain completion); the coordinator calls this
// once, when the last participant of the chain has funded.
func (o *Orchestrator) MarkFunded(chainID string) error {
	holds, err := o.store.HoldsForChain(chainID)
	if err != nil {
		return err
	}
	for _, h := range holds {
		if h.Status != domain.HoldPending {
			continue
		}
		if err := o.store.UpdateHoldStatus(h.ID, domain.HoldFunded); err != nil {
			return err
		}
	}
	return nil
}

// CaptureChain captures every FUNDED hold for a chain at the provider and
// flips it to RELEASED. Individual provider failures are logged and do
// not halt the capture of the remaining holds.
func (o *Orchestrator) CaptureChain(chainID string) error {
	holds, err := o.store.HoldsForChain(chainID)
	if err != nil {
		return err
	}
	for _, h := range holds {
		if h.Status != domain.HoldFunded {
			continue
		}
		if err := o.payments.CapturePayment(h.ProviderReference); err != nil {
			o.log.Error("capture failed, proceeding with remaining holds", "chain", chainID, "hold", h.ID, "err", err)
			continue
		}
		if err := o.store.UpdateHoldStatus(h.ID, domain.HoldReleased); err != nil {
			return err
		}
	}
	return nil
}

// CancelChain cancels every PENDING/FUNDED hold for a chain at the
// provider and marks it REFUNDED. Individual provider failures are
// logged and do not halt the unwind of the remaining holds.
func (o *Orchestrator) CancelChain(chainID string) error {
	holds, err := o.store.HoldsForChain(chainID)
	if err != nil {
		return err
	}
	for _, h := range holds {
		if h.Status != domain.HoldPending && h.Status != domain.HoldFunded {
			continue
		}
		if err := o.payments.RefundPayment(h.ProviderReference, nil); err != nil {
			o.log.Error("refund failed, proceeding with remaining holds", "chain", chainID, "hold", h.ID, "err", err)
			continue
		}
		if err := o.store.UpdateHoldStatus(h.ID, domain.HoldRefunded); err != nil {
			return err
		}
	}
	return nil
}

// PayoutNetReceivers initiates a transfer for every participant with a
// negative cash delta (a net receiver). If the provider has no
// connected-account record for the recipient, a pending_onboarding
// payout row is persisted instead of calling Transfer.
func (o *Orchestrator) PayoutNetReceivers(chainID string, participants []domain.ChainParticipant, hasConnectedAccount func(userID int64) (string, bool)) error {
	for _, p := range participants {
		if p.CashDelta >= 0 {
			continue
		}
		amount := -p.CashDelta

		account, ok := hasConnectedAccount(p.UserID)
		if !ok {
			if err := o.store.RecordPayout(chainID, p.UserID, amount, chainstore.PayoutPendingOnboarding, ""); err != nil {
				return err
			}
			continue
		}

		result, err := o.payments.Transfer(account, amount, "usd", map[string]any{"chainId": chainID, "userId": p.UserID})
		if err != nil {
			o.log.Error("payout transfer failed", "chain", chainID, "user", p.UserID, "err", err)
			continue
		}
		if err := o.store.RecordPayout(chainID, p.UserID, amount, chainstore.PayoutCompleted, result.ID); err != nil {
			return err
		}
	}
	return nil
}
