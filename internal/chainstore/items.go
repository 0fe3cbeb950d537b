package chainstore

import (
	"database/sql"
	"errors"

	"github.com/barterchain/chainengine/internal/domain"
)

// ErrItemNotFound is returned when an item id has no row.
var ErrItemNotFound = errors.New("item not found")

// UpsertItem inserts or updates an item row. Used by the inventory
// snapshot loader ahead of a discovery pass.
func (s *Store) UpsertItem(it domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO items (id, owner_id, name, value_cents, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			name = excluded.name,
			value_cents = excluded.value_cents,
			status = excluded.status
	`, it.ID, it.OwnerID, it.Name, it.ValueCents, string(it.Status))
	return err
}

// GetItem returns a single item by id.
func (s *Store) GetItem(id int64) (domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var it domain.Item
	var status string
	err := s.db.QueryRow(`SELECT id, owner_id, name, value_cents, status FROM items WHERE id = ?`, id).
		Scan(&it.ID, &it.OwnerID, &it.Name, &it.ValueCents, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, ErrItemNotFound
	}
	if err != nil {
		return domain.Item{}, err
	}
	it.Status = domain.ItemStatus(status)
	return it, nil
}

// ActiveItems returns every item currently active, for graph building.
func (s *Store) ActiveItems() ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, owner_id, name, value_cents, status FROM items WHERE status = ?`, string(domain.ItemActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Item
	for rows.Next() {
		var it domain.Item
		var status string
		if err := rows.Scan(&it.ID, &it.OwnerID, &it.Name, &it.ValueCents, &status); err != nil {
			return nil, err
		}
		it.Status = domain.ItemStatus(status)
		out = append(out, it)
	}
	return out, rows.Err()
}

// TryLockItem atomically flips an item from active to locked. Acquired
// iff exactly one row changed.
func (s *Store) TryLockItem(itemID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`UPDATE items SET status = ? WHERE id = ? AND status = ?`,
		string(domain.ItemLocked), itemID, string(domain.ItemActive))
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// UnlockItem unconditionally sets an item back to active.
func (s *Store) UnlockItem(itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE items SET status = ? WHERE id = ?`, string(domain.ItemActive), itemID)
	return err
}

// TransferItem moves ownership to newOwnerID and sets status back to
// active (used on chain completion).
func (s *Store) TransferItem(itemID, newOwnerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE items SET owner_id = ?, status = ? WHERE id = ?`,
		newOwnerID, string(domain.ItemActive), itemID)
	return err
}
