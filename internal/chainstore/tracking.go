package chainstore

import "time"

// RecordTracking appends a shipment-tracking history row. This is
// independent of the denormalized tracking fields kept on
// chain_participants, which reflect only the latest submission.
func (s *Store) RecordTracking(chainID string, userID int64, trackingNumber, carrier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO shipment_tracking (chain_id, user_id, tracking_number, carrier, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, chainID, userID, trackingNumber, carrier, time.Now().Unix())
	return err
}
