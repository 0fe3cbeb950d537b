package chainstore

import (
	"database/sql"
	"errors"
	"time"

	"github.com/barterchain/chainengine/internal/domain"
)

// IsRejected satisfies reject.CooldownChecker: reports whether a
// fingerprint currently has a non-expired rejection record.
func (s *Store) IsRejected(fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expiresAt int64
	err := s.db.QueryRow(`SELECT expires_at FROM rejected_chains WHERE cycle_hash = ?`, fingerprint).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return time.Unix(expiresAt, 0).After(time.Now()), nil
}

// RecordRejection inserts or replaces a cooldown record for a cycle
// fingerprint.
func (s *Store) RecordRejection(r domain.RejectedCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO rejected_chains (cycle_hash, rejected_by_user_id, original_chain_id, rejected_at, expires_at, reason)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cycle_hash) DO UPDATE SET
			rejected_by_user_id = excluded.rejected_by_user_id,
			original_chain_id = excluded.original_chain_id,
			rejected_at = excluded.rejected_at,
			expires_at = excluded.expires_at,
			reason = excluded.reason
	`, r.CycleHash, r.RejectedByUserID, r.OriginalChainID, r.RejectedAt.Unix(), r.ExpiresAt.Unix(), r.Reason)
	return err
}
