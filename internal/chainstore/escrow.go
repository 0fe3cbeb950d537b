package chainstore

import (
	"database/sql"
	"errors"
	"time"

	"github.com/barterchain/chainengine/internal/domain"
)

// ErrHoldNotFound is returned when a hold id has no row.
var ErrHoldNotFound = errors.New("escrow hold not found")

// CreateHold persists a new escrow hold row.
func (s *Store) CreateHold(h domain.EscrowHold) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO escrow_holds (id, chain_id, payer_id, recipient_id, amount_cents, status, provider, provider_reference, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.ChainID, h.PayerID, h.RecipientID, h.AmountCents, string(h.Status), h.Provider, h.ProviderReference, now.Unix(), now.Unix())
	return err
}

// UpdateHoldStatus flips a hold's status.
func (s *Store) UpdateHoldStatus(id string, status domain.EscrowHoldStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE escrow_holds SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().Unix(), id)
	return err
}

// HoldsForChain returns every escrow hold row for a chain.
func (s *Store) HoldsForChain(chainID string) ([]domain.EscrowHold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, chain_id, payer_id, recipient_id, amount_cents, status, provider, provider_reference, created_at, updated_at
		FROM escrow_holds WHERE chain_id = ?
	`, chainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EscrowHold
	for rows.Next() {
		var h domain.EscrowHold
		var status string
		var providerReference sql.NullString
		var createdAt, updatedAt int64
		if err := rows.Scan(&h.ID, &h.ChainID, &h.PayerID, &h.RecipientID, &h.AmountCents,
			&status, &h.Provider, &providerReference, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		h.Status = domain.EscrowHoldStatus(status)
		h.ProviderReference = providerReference.String
		h.CreatedAt = time.Unix(createdAt, 0).UTC()
		h.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		out = append(out, h)
	}
	return out, rows.Err()
}
