package chainstore

import "time"

// PayoutStatus is the state of a post-completion transfer to a net
// receiver.
type PayoutStatus string

const (
	PayoutCompleted        PayoutStatus = "completed"
	PayoutPendingOnboarding PayoutStatus = "pending_onboarding"
)

// RecordPayout persists a payout row after a completion-time transfer
// attempt.
func (s *Store) RecordPayout(chainID string, recipientID int64, amountCents int64, status PayoutStatus, providerReference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO payouts (chain_id, recipient_id, amount_cents, status, provider_reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, chainID, recipientID, amountCents, string(status), providerReference, time.Now().Unix())
	return err
}
