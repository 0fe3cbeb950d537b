package lifecycle

import (
	"fmt"
	"time"

	"github.com/barterchain/chainengine/internal/chainstore"
	"github.com/barterchain/chainengine/internal/cyclefind"
	"github.com/barterchain/chainengine/internal/domain"
	"github.com/barterchain/chainengine/internal/provider"
	"github.com/barterchain/chainengine/internal/reject"
	"github.com/barterchain/chainengine/internal/shipment"
)

func findParticipant(p *domain.ChainProposal, userID int64) (*domain.ChainParticipant, error) {
	for i := range p.Participants {
		if p.Participants[i].UserID == userID {
			return &p.Participants[i], nil
		}
	}
	return nil, ErrParticipantNotFound
}

func allAccepted(p *domain.ChainProposal) bool {
	for _, part := range p.Participants {
		if !part.HasAccepted {
			return false
		}
	}
	return true
}

func allFunded(p *domain.ChainProposal) bool {
	for _, part := range p.Participants {
		if !part.HasFunded {
			return false
		}
	}
	return true
}

func allShipped(p *domain.ChainProposal) bool {
	for _, part := range p.Participants {
		if !part.HasShipped {
			return false
		}
	}
	return true
}

func allReceived(p *domain.ChainProposal) bool {
	for _, part := range p.Participants {
		if !part.HasReceived {
			return false
		}
	}
	return true
}

// participantCycle reconstructs the cyclefind.Cycle view of a proposal's
// participants so the rejection fingerprint can be computed identically
// to the one discovery computed when it first found this cycle.
func participantCycle(p *domain.ChainProposal) cyclefind.Cycle {
	edges := make([]domain.Edge, len(p.Participants))
	for i, part := range p.Participants {
		edges[i] = domain.Edge{FromUserID: part.UserID, ItemID: part.GivesItemID}
	}
	return cyclefind.Cycle{Edges: edges}
}

// Accept records a participant's acceptance. Once every participant has
// accepted, the item-lock protocol runs: on success the chain moves to
// LOCKED; on any lock conflict, all successful locks for this chain are
// rolled back and the chain fails.
func (c *Coordinator) Accept(chainID string, userID int64) (*domain.ChainProposal, error) {
	lock := c.chainLock(chainID)
	lock.Lock()
	defer lock.Unlock()

	p, err := c.store.GetProposal(chainID)
	if err != nil {
		if err == chainstore.ErrProposalNotFound {
			return nil, ErrChainNotFound
		}
		return nil, err
	}
	if p.Status == domain.StatusFailed || p.Status == domain.StatusExpired {
		return nil, fmt.Errorf("%w: chain is %s", ErrIllegalTransition, p.Status)
	}

	participant, err := findParticipant(p, userID)
	if err != nil {
		return nil, err
	}
	if participant.HasAccepted {
		return nil, ErrAlreadyAccepted
	}

	participant.HasAccepted = true
	participant.AcceptedAt = time.Now()
	if err := c.store.UpdateParticipant(participant); err != nil {
		return nil, err
	}

	if !allAccepted(p) {
		if p.Status == domain.StatusProposed {
			if err := transitionTo(p.Status, domain.StatusPendingAcceptance); err != nil {
				return nil, err
			}
			if err := c.store.UpdateProposalStatus(chainID, domain.StatusPendingAcceptance, "", time.Time{}); err != nil {
				return nil, err
			}
			p.Status = domain.StatusPendingAcceptance
		}
		return p, nil
	}

	itemIDs := make([]int64, len(p.Participants))
	for i, part := range p.Participants {
		itemIDs[i] = part.GivesItemID
	}

	_, locked, err := c.lockAllOrRollback(itemIDs)
	if err != nil {
		return nil, err
	}
	if !locked {
		reason := "Race condition: item already locked"
		if err := transitionTo(p.Status, domain.StatusFailed); err != nil {
			return nil, err
		}
		if err := c.store.UpdateProposalStatus(chainID, domain.StatusFailed, reason, time.Time{}); err != nil {
			return nil, err
		}
		p.Status = domain.StatusFailed
		p.FailedReason = reason
		c.emitEvent(chainID, "race_lost", nil)
		return p, ErrRaceLost
	}

	if err := transitionTo(p.Status, domain.StatusLocked); err != nil {
		return nil, err
	}
	if err := c.store.UpdateProposalStatus(chainID, domain.StatusLocked, "", time.Time{}); err != nil {
		return nil, err
	}
	p.Status = domain.StatusLocked

	for _, part := range p.Participants {
		c.notify(part.UserID, provider.NotifyChainTradeLocked, "Trade cycle locked", "All participants accepted; items are now locked.")
	}
	c.emitEvent(chainID, "locked", nil)

	return p, nil
}

// Reject fails a chain, unlocks its items, unwinds any escrow holds, and
// records a rejection cooldown so the same cycle isn't immediately
// re-proposed.
func (c *Coordinator) Reject(chainID string, userID int64, reason string) (*domain.ChainProposal, error) {
	lock := c.chainLock(chainID)
	lock.Lock()
	defer lock.Unlock()

	p, err := c.store.GetProposal(chainID)
	if err != nil {
		if err == chainstore.ErrProposalNotFound {
			return nil, ErrChainNotFound
		}
		return nil, err
	}
	if _, err := findParticipant(p, userID); err != nil {
		return nil, err
	}
	if p.Status == domain.StatusCompleted {
		return nil, fmt.Errorf("%w: chain already completed", ErrIllegalTransition)
	}
	if p.Status == domain.StatusFailed {
		return p, nil // already failed: no-op, no extra rejection record or refunds
	}

	if reason == "" {
		reason = fmt.Sprintf("Rejected by user %d", userID)
	}

	if err := transitionTo(p.Status, domain.StatusFailed); err != nil {
		return nil, err
	}
	if err := c.store.UpdateProposalStatus(chainID, domain.StatusFailed, reason, time.Time{}); err != nil {
		return nil, err
	}
	p.Status = domain.StatusFailed
	p.FailedReason = reason

	fp := reject.Fingerprint(participantCycle(p))
	now := time.Now()
	cooldown := c.cfg.RejectionCooldown
	if cooldown <= 0 {
		cooldown = 30 * 24 * time.Hour
	}
	if err := c.store.RecordRejection(domain.RejectedCycle{
		CycleHash:        fp,
		RejectedByUserID: userID,
		OriginalChainID:  chainID,
		RejectedAt:       now,
		ExpiresAt:        now.Add(cooldown),
		Reason:           reason,
	}); err != nil {
		return nil, err
	}

	// Item unlock first, escrow refund second: items are user-visible and
	// refunds are asynchronous.
	for _, part := range p.Participants {
		if err := c.store.UnlockItem(part.GivesItemID); err != nil {
			c.log.Error("failed to unlock item on reject", "item", part.GivesItemID, "err", err)
		}
	}

	if c.escrow != nil {
		if err := c.escrow.CancelChain(chainID); err != nil {
			c.log.Error("escrow unwind failed", "chain", chainID, "err", err)
		}
	}

	for _, part := range p.Participants {
		if part.UserID == userID {
			continue
		}
		c.notify(part.UserID, provider.NotifyChainTradeCancelled, "Trade cycle cancelled", reason)
	}
	c.emitEvent(chainID, "rejected", reason)

	return p, nil
}

// Fund records a participant's escrow funding. If they owe a non-zero
// total (platform fee unless waived, plus any positive cash delta), a
// hold is created at the payment provider first.
func (c *Coordinator) Fund(chainID string, userID int64) (*domain.ChainProposal, error) {
	lock := c.chainLock(chainID)
	lock.Lock()
	defer lock.Unlock()

	p, err := c.store.GetProposal(chainID)
	if err != nil {
		if err == chainstore.ErrProposalNotFound {
			return nil, ErrChainNotFound
		}
		return nil, err
	}
	if p.Status != domain.StatusLocked {
		return nil, fmt.Errorf("%w: fund requires LOCKED, chain is %s", ErrIllegalTransition, p.Status)
	}

	participant, err := findParticipant(p, userID)
	if err != nil {
		return nil, err
	}
	if participant.HasFunded {
		return nil, ErrAlreadyFunded
	}

	isWaived, _, err := c.fees.CalculateTradeFee(userID)
	if err != nil {
		return nil, fmt.Errorf("fee policy lookup: %w", err)
	}

	feeComponent := c.cfg.PlatformFeeCents
	if isWaived {
		feeComponent = 0
	}
	cashComponent := participant.CashDelta
	if cashComponent < 0 {
		cashComponent = 0
	}

	if c.escrow != nil {
		metadata := map[string]any{"chainId": chainID, "userId": userID, "cashComponent": cashComponent, "feeComponent": feeComponent, "waived": isWaived}
		if _, err := c.escrow.CreateHold(chainID, userID, cashComponent, feeComponent, metadata); err != nil {
			return nil, fmt.Errorf("create escrow hold: %w", err)
		}
	}

	if isWaived {
		if err := c.fees.IncrementTradeCounter(userID); err != nil {
			c.log.Error("failed to increment trade counter", "user", userID, "err", err)
		}
	}

	participant.HasFunded = true
	participant.FundedAt = time.Now()
	if err := c.store.UpdateParticipant(participant); err != nil {
		return nil, err
	}

	if allFunded(p) {
		if c.escrow != nil {
			if err := c.escrow.MarkFunded(chainID); err != nil {
				return nil, err
			}
		}
		if err := transitionTo(p.Status, domain.StatusShipping); err != nil {
			return nil, err
		}
		if err := c.store.UpdateProposalStatus(chainID, domain.StatusShipping, "", time.Time{}); err != nil {
			return nil, err
		}
		p.Status = domain.StatusShipping
		for _, part := range p.Participants {
			c.notify(part.UserID, provider.NotifyChainTradeShipping, "Trade cycle funded", "All participants funded; ready to ship.")
		}
		c.emitEvent(chainID, "funded", nil)
	}

	return p, nil
}

// ShippingResult is the return value of SubmitShipping.
type ShippingResult struct {
	Proposal   *domain.ChainProposal
	GreenLight bool
}

// SubmitShipping records a participant's tracking number. If every
// participant has now shipped, the chain-wide "green light" fires;
// otherwise only the item's recipient is notified.
func (c *Coordinator) SubmitShipping(chainID string, userID int64, trackingNumber, carrier, photoURL string) (ShippingResult, error) {
	lock := c.chainLock(chainID)
	lock.Lock()
	defer lock.Unlock()

	p, err := c.store.GetProposal(chainID)
	if err != nil {
		if err == chainstore.ErrProposalNotFound {
			return ShippingResult{}, ErrChainNotFound
		}
		return ShippingResult{}, err
	}
	// ESCROW_FUNDED is treated as transient (see DESIGN.md): funding
	// collapses straight to SHIPPING, so SHIPPING is the only status this
	// ever actually observes, though both are accepted for forward
	// compatibility with a store that persists ESCROW_FUNDED explicitly.
	if p.Status != domain.StatusShipping && p.Status != domain.StatusEscrowFunded {
		return ShippingResult{}, fmt.Errorf("%w: submitShipping requires SHIPPING or ESCROW_FUNDED, chain is %s", ErrIllegalTransition, p.Status)
	}

	participant, err := findParticipant(p, userID)
	if err != nil {
		return ShippingResult{}, err
	}
	if participant.HasShipped {
		return ShippingResult{}, ErrAlreadyShipped
	}

	resolved := shipment.ResolveCarrier(carrier, trackingNumber)

	if c.shipping != nil {
		if err := c.shipping.CreateTrackingRecord(chainID, userID, trackingNumber); err != nil {
			c.log.Error("shipping provider tracking record failed", "chain", chainID, "user", userID, "err", err)
		}
	}
	if err := c.store.RecordTracking(chainID, userID, trackingNumber, string(resolved)); err != nil {
		return ShippingResult{}, err
	}

	participant.HasShipped = true
	participant.ShippedAt = time.Now()
	participant.TrackingNumber = trackingNumber
	participant.Carrier = string(resolved)
	participant.PhotoURL = photoURL
	if err := c.store.UpdateParticipant(participant); err != nil {
		return ShippingResult{}, err
	}

	greenLight := allShipped(p)
	if greenLight {
		if p.Status != domain.StatusShipping {
			if err := transitionTo(p.Status, domain.StatusShipping); err != nil {
				return ShippingResult{}, err
			}
			if err := c.store.UpdateProposalStatus(chainID, domain.StatusShipping, "", time.Time{}); err != nil {
				return ShippingResult{}, err
			}
			p.Status = domain.StatusShipping
		}
		for _, part := range p.Participants {
			c.notify(part.UserID, provider.NotifyChainTradeShipping, "Green light", "Every participant has shipped their item.")
		}
		c.emitEvent(chainID, "green_light", nil)
	} else {
		c.notify(participant.GivesToUserID, provider.NotifyTrackingAdded, "Item on the way", "Your trade partner has shipped your item.")
	}

	return ShippingResult{Proposal: p, GreenLight: greenLight}, nil
}

// VerifyReceipt records a participant's confirmation of receipt. Once
// every participant has confirmed, escrow is captured/paid out, item
// ownership transfers, and the chain completes.
func (c *Coordinator) VerifyReceipt(chainID string, userID int64) (*domain.ChainProposal, error) {
	lock := c.chainLock(chainID)
	lock.Lock()
	defer lock.Unlock()

	p, err := c.store.GetProposal(chainID)
	if err != nil {
		if err == chainstore.ErrProposalNotFound {
			return nil, ErrChainNotFound
		}
		return nil, err
	}
	if p.Status != domain.StatusShipping {
		return nil, fmt.Errorf("%w: verifyReceipt requires SHIPPING, chain is %s", ErrIllegalTransition, p.Status)
	}

	participant, err := findParticipant(p, userID)
	if err != nil {
		return nil, err
	}
	if participant.HasReceived {
		return nil, ErrAlreadyReceived
	}

	participant.HasReceived = true
	participant.ReceivedAt = time.Now()
	if err := c.store.UpdateParticipant(participant); err != nil {
		return nil, err
	}

	if !allReceived(p) {
		return p, nil
	}

	if c.escrow != nil {
		if err := c.escrow.CaptureChain(chainID); err != nil {
			c.log.Error("escrow capture failed", "chain", chainID, "err", err)
		}
		if err := c.escrow.PayoutNetReceivers(chainID, p.Participants, c.connectedAccount); err != nil {
			c.log.Error("payout failed", "chain", chainID, "err", err)
		}
	}

	for _, part := range p.Participants {
		if err := c.store.TransferItem(part.ReceivesItemID, part.UserID); err != nil {
			c.log.Error("item transfer failed", "item", part.ReceivesItemID, "user", part.UserID, "err", err)
		}
	}

	if err := transitionTo(p.Status, domain.StatusCompleted); err != nil {
		return nil, err
	}
	now := time.Now()
	if err := c.store.UpdateProposalStatus(chainID, domain.StatusCompleted, "", now); err != nil {
		return nil, err
	}
	p.Status = domain.StatusCompleted
	p.ExecutedAt = now

	for _, part := range p.Participants {
		c.notify(part.UserID, provider.NotifyTradeCompleted, "Trade complete", "Your barter chain has completed successfully.")
	}
	c.emitEvent(chainID, "completed", nil)

	return p, nil
}

// Expire transitions a single non-terminal chain past its expiry to
// EXPIRED, running the same unwind as Reject minus the rejection record.
// Called by the periodic sweeper, not by a user action.
func (c *Coordinator) Expire(chainID string) error {
	lock := c.chainLock(chainID)
	lock.Lock()
	defer lock.Unlock()

	p, err := c.store.GetProposal(chainID)
	if err != nil {
		return err
	}
	if p.Status.IsTerminal() {
		return nil
	}
	if time.Now().Before(p.ExpiresAt) {
		return nil
	}

	if err := transitionTo(p.Status, domain.StatusExpired); err != nil {
		return err
	}
	if err := c.store.UpdateProposalStatus(chainID, domain.StatusExpired, "", time.Time{}); err != nil {
		return err
	}

	for _, part := range p.Participants {
		if err := c.store.UnlockItem(part.GivesItemID); err != nil {
			c.log.Error("failed to unlock item on expire", "item", part.GivesItemID, "err", err)
		}
	}

	if c.escrow != nil {
		if err := c.escrow.CancelChain(chainID); err != nil {
			c.log.Error("escrow unwind failed on expire", "chain", chainID, "err", err)
		}
	}

	for _, part := range p.Participants {
		c.notify(part.UserID, provider.NotifyChainTradeCancelled, "Trade cycle expired", "This trade cycle expired before completing.")
	}
	c.emitEvent(chainID, "expired", nil)

	return nil
}
