package chainstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/barterchain/chainengine/internal/domain"
	"github.com/google/uuid"
)

// Proposal store errors.
var (
	ErrProposalNotFound   = errors.New("proposal not found")
	ErrParticipantNotFound = errors.New("participant not found")
)

// CreateProposal inserts a new proposal and its participants in one
// batch. The proposal id is generated here and returned.
func (s *Store) CreateProposal(p *domain.ChainProposal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.ExpiresAt.IsZero() {
		p.ExpiresAt = now.Add(24 * time.Hour)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO chain_proposals (
			id, status, total_value_cents, value_tolerance_percent,
			max_participants, created_at, updated_at, expires_at, executed_at, failed_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)
	`, p.ID, string(p.Status), p.TotalValueCents, p.ValueTolerancePercent,
		p.MaxParticipants, p.CreatedAt.Unix(), p.UpdatedAt.Unix(), p.ExpiresAt.Unix())
	if err != nil {
		return "", fmt.Errorf("insert proposal: %w", err)
	}

	for i := range p.Participants {
		participant := &p.Participants[i]
		participant.ChainID = p.ID
		participant.Seq = i
		if err := insertParticipant(tx, participant); err != nil {
			return "", fmt.Errorf("insert participant %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}

	return p.ID, nil
}

func insertParticipant(tx *sql.Tx, p *domain.ChainParticipant) error {
	_, err := tx.Exec(`
		INSERT INTO chain_participants (
			chain_id, seq, user_id, gives_item_id, receives_item_id,
			gives_to_user_id, receives_from_user_id, cash_delta, platform_fee_cents,
			has_accepted, has_funded, has_shipped, has_received,
			tracking_number, carrier, photo_url,
			accepted_at, funded_at, shipped_at, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ChainID, p.Seq, p.UserID, p.GivesItemID, p.ReceivesItemID,
		p.GivesToUserID, p.ReceivesFromUserID, p.CashDelta, p.PlatformFeeCents,
		boolToInt(p.HasAccepted), boolToInt(p.HasFunded), boolToInt(p.HasShipped), boolToInt(p.HasReceived),
		p.TrackingNumber, p.Carrier, p.PhotoURL,
		timeToUnixOrZero(p.AcceptedAt), timeToUnixOrZero(p.FundedAt), timeToUnixOrZero(p.ShippedAt), timeToUnixOrZero(p.ReceivedAt),
	)
	return err
}

// GetProposal returns the full aggregate for a chain id, with
// participants joined in stable insertion (seq) order.
func (s *Store) GetProposal(id string) (*domain.ChainProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getProposalLocked(id)
}

func (s *Store) getProposalLocked(id string) (*domain.ChainProposal, error) {
	row := s.db.QueryRow(`
		SELECT id, status, total_value_cents, value_tolerance_percent,
			max_participants, created_at, updated_at, expires_at, executed_at, failed_reason
		FROM chain_proposals WHERE id = ?
	`, id)

	p, err := scanProposal(row)
	if err != nil {
		return nil, err
	}

	participants, err := s.listParticipants(id)
	if err != nil {
		return nil, err
	}
	p.Participants = participants

	return p, nil
}

func scanProposal(row *sql.Row) (*domain.ChainProposal, error) {
	var (
		id, status                       string
		totalValue, maxParticipants      int64
		tolerance                        float64
		createdAt, updatedAt, expiresAt  int64
		executedAt                       sql.NullInt64
		failedReason                     sql.NullString
	)
	err := row.Scan(&id, &status, &totalValue, &tolerance, &maxParticipants,
		&createdAt, &updatedAt, &expiresAt, &executedAt, &failedReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProposalNotFound
	}
	if err != nil {
		return nil, err
	}

	return &domain.ChainProposal{
		ID:                    id,
		Status:                domain.ProposalStatus(status),
		TotalValueCents:       totalValue,
		ValueTolerancePercent: tolerance,
		MaxParticipants:       int(maxParticipants),
		CreatedAt:             time.Unix(createdAt, 0).UTC(),
		UpdatedAt:             time.Unix(updatedAt, 0).UTC(),
		ExpiresAt:             time.Unix(expiresAt, 0).UTC(),
		ExecutedAt:            unixToTime(executedAt),
		FailedReason:          failedReason.String,
	}, nil
}

func (s *Store) listParticipants(chainID string) ([]domain.ChainParticipant, error) {
	rows, err := s.db.Query(`
		SELECT chain_id, seq, user_id, gives_item_id, receives_item_id,
			gives_to_user_id, receives_from_user_id, cash_delta, platform_fee_cents,
			has_accepted, has_funded, has_shipped, has_received,
			tracking_number, carrier, photo_url,
			accepted_at, funded_at, shipped_at, received_at
		FROM chain_participants WHERE chain_id = ? ORDER BY seq ASC
	`, chainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ChainParticipant
	for rows.Next() {
		var (
			p                                                     domain.ChainParticipant
			hasAccepted, hasFunded, hasShipped, hasReceived       int64
			trackingNumber, carrier, photoURL                     sql.NullString
			acceptedAt, fundedAt, shippedAt, receivedAt            sql.NullInt64
		)
		if err := rows.Scan(&p.ChainID, &p.Seq, &p.UserID, &p.GivesItemID, &p.ReceivesItemID,
			&p.GivesToUserID, &p.ReceivesFromUserID, &p.CashDelta, &p.PlatformFeeCents,
			&hasAccepted, &hasFunded, &hasShipped, &hasReceived,
			&trackingNumber, &carrier, &photoURL,
			&acceptedAt, &fundedAt, &shippedAt, &receivedAt); err != nil {
			return nil, err
		}
		p.HasAccepted = intToBool(hasAccepted)
		p.HasFunded = intToBool(hasFunded)
		p.HasShipped = intToBool(hasShipped)
		p.HasReceived = intToBool(hasReceived)
		p.TrackingNumber = trackingNumber.String
		p.Carrier = carrier.String
		p.PhotoURL = photoURL.String
		p.AcceptedAt = unixToTime(acceptedAt)
		p.FundedAt = unixToTime(fundedAt)
		p.ShippedAt = unixToTime(shippedAt)
		p.ReceivedAt = unixToTime(receivedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListProposalsForUser returns every proposal a user participates in,
// excluding terminal-status chains by default.
func (s *Store) ListProposalsForUser(userID int64, excludeTerminal bool) ([]*domain.ChainProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT DISTINCT cp.id FROM chain_proposals cp
		JOIN chain_participants part ON part.chain_id = cp.id
		WHERE part.user_id = ?
	`
	if excludeTerminal {
		query += fmt.Sprintf(" AND cp.status NOT IN ('%s', '%s', '%s')",
			domain.StatusCompleted, domain.StatusFailed, domain.StatusExpired)
	}

	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*domain.ChainProposal, 0, len(ids))
	for _, id := range ids {
		p, err := s.getProposalLocked(id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// GetNonTerminalProposals returns every proposal not yet in a terminal
// status. The daemon uses it at startup and on its status ticker to set
// the active-chains gauge.
func (s *Store) GetNonTerminalProposals() ([]*domain.ChainProposal, error) {
	s.mu.RLock()
	ids, err := s.nonTerminalIDsLocked()
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	out := make([]*domain.ChainProposal, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetProposal(id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// GetProposalsPastExpiry returns non-terminal proposals whose expiresAt
// has already passed, for the periodic sweeper.
func (s *Store) GetProposalsPastExpiry(now time.Time) ([]*domain.ChainProposal, error) {
	s.mu.RLock()
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT id FROM chain_proposals
		WHERE status NOT IN ('%s', '%s', '%s') AND expires_at < ?
	`, domain.StatusCompleted, domain.StatusFailed, domain.StatusExpired), now.Unix())
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			s.mu.RUnlock()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	s.mu.RUnlock()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*domain.ChainProposal, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetProposal(id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) nonTerminalIDsLocked() ([]string, error) {
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT id FROM chain_proposals WHERE status NOT IN ('%s', '%s', '%s')
	`, domain.StatusCompleted, domain.StatusFailed, domain.StatusExpired))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateProposalStatus sets the proposal's status, updatedAt, and
// optionally failedReason/executedAt.
func (s *Store) UpdateProposalStatus(chainID string, status domain.ProposalStatus, failedReason string, executedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE chain_proposals SET status = ?, updated_at = ?, failed_reason = ?, executed_at = ?
		WHERE id = ?
	`, string(status), time.Now().Unix(), nullableString(failedReason), nullableUnix(executedAt), chainID)
	return err
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

// UpdateParticipant persists the mutable fields of a single participant
// row (accept/fund/ship/receive all go through this).
func (s *Store) UpdateParticipant(p *domain.ChainParticipant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE chain_participants SET
			has_accepted = ?, has_funded = ?, has_shipped = ?, has_received = ?,
			tracking_number = ?, carrier = ?, photo_url = ?,
			accepted_at = ?, funded_at = ?, shipped_at = ?, received_at = ?
		WHERE chain_id = ? AND user_id = ?
	`,
		boolToInt(p.HasAccepted), boolToInt(p.HasFunded), boolToInt(p.HasShipped), boolToInt(p.HasReceived),
		p.TrackingNumber, p.Carrier, p.PhotoURL,
		timeToUnixOrZero(p.AcceptedAt), timeToUnixOrZero(p.FundedAt), timeToUnixOrZero(p.ShippedAt), timeToUnixOrZero(p.ReceivedAt),
		p.ChainID, p.UserID,
	)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrParticipantNotFound
	}
	return nil
}
