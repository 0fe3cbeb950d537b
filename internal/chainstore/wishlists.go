package chainstore

import "github.com/barterchain/chainengine/internal/domain"

// AddWishlistEntry records that a user wants an item. Idempotent.
func (s *Store) AddWishlistEntry(entry domain.WishlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO wishlists (user_id, item_id) VALUES (?, ?)
		ON CONFLICT(user_id, item_id) DO NOTHING
	`, entry.UserID, entry.ItemID)
	return err
}

// RemoveWishlistEntry removes a single wishlist entry.
func (s *Store) RemoveWishlistEntry(userID, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM wishlists WHERE user_id = ? AND item_id = ?`, userID, itemID)
	return err
}

// AllWishlistEntries returns the full wishlist relation, for graph
// building ahead of a discovery pass.
func (s *Store) AllWishlistEntries() ([]domain.WishlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT user_id, item_id FROM wishlists`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.WishlistEntry
	for rows.Next() {
		var w domain.WishlistEntry
		if err := rows.Scan(&w.UserID, &w.ItemID); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
