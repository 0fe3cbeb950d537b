package chainstore

import (
	"database/sql"
	"errors"

	"github.com/barterchain/chainengine/internal/domain"
)

// ErrUserNotFound is returned when a user id has no row.
var ErrUserNotFound = errors.New("user not found")

// UpsertUser inserts or updates a user's profile row.
func (s *Store) UpsertUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO users (id, display_name, rating, region, completed_trades)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			rating = excluded.rating,
			region = excluded.region,
			completed_trades = excluded.completed_trades
	`, u.ID, u.DisplayName, u.Rating, u.Region, u.CompletedTrades)
	return err
}

// GetUser returns a single user by id.
func (s *Store) GetUser(id int64) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u domain.User
	err := s.db.QueryRow(`SELECT id, display_name, rating, region, completed_trades FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.DisplayName, &u.Rating, &u.Region, &u.CompletedTrades)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// AllUsers returns every known user, for graph building ahead of a
// discovery pass.
func (s *Store) AllUsers() ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, display_name, rating, region, completed_trades FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.Rating, &u.Region, &u.CompletedTrades); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
