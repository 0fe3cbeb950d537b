// Package domain holds the shared data types read and written by the
// discovery and lifecycle subsystems: users, items, wishlist entries, and
// the in-memory trade graph artifacts derived from them.
package domain

import "time"

// ItemStatus is the lifecycle status of an item.
type ItemStatus string

const (
	ItemActive   ItemStatus = "active"
	ItemLocked   ItemStatus = "locked"
	ItemInactive ItemStatus = "inactive"
)

// User is a participant in the barter network.
type User struct {
	ID              int64
	DisplayName     string
	Rating          float64
	Region          string
	CompletedTrades int
}

// Item is a tradeable good owned by a user.
type Item struct {
	ID         int64
	OwnerID    int64
	Name       string
	ValueCents int64
	Status     ItemStatus
}

// WishlistEntry records that a user wants an item they don't own.
type WishlistEntry struct {
	UserID int64
	ItemID int64
}

// Edge is a directed trade-graph edge: the owner of Item can give it to
// ToUserID, who wishlisted it.
type Edge struct {
	FromUserID int64
	ToUserID   int64
	ItemID     int64
	ItemName   string
	ValueCents int64
}

// UserMeta carries the per-user metadata the validator needs, attached to
// graph nodes without duplicating the User record itself.
type UserMeta struct {
	Name            string
	Rating          float64
	Region          string
	CompletedTrades int
}

// ProposalStatus is the lifecycle status of a chain proposal.
type ProposalStatus string

const (
	StatusProposed           ProposalStatus = "PROPOSED"
	StatusPendingAcceptance  ProposalStatus = "PENDING_ACCEPTANCE"
	StatusLocked             ProposalStatus = "LOCKED"
	StatusEscrowFunded       ProposalStatus = "ESCROW_FUNDED"
	StatusShipping           ProposalStatus = "SHIPPING"
	StatusCompleted          ProposalStatus = "COMPLETED"
	StatusFailed             ProposalStatus = "FAILED"
	StatusExpired            ProposalStatus = "EXPIRED"
)

// IsTerminal reports whether status is a terminal state.
func (s ProposalStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}

// ChainProposal is the persistent aggregate root for a proposed trade
// cycle.
type ChainProposal struct {
	ID                    string
	Status                ProposalStatus
	TotalValueCents       int64
	ValueTolerancePercent float64
	MaxParticipants       int
	CreatedAt             time.Time
	UpdatedAt             time.Time
	ExpiresAt             time.Time
	ExecutedAt            time.Time
	FailedReason          string
	Participants          []ChainParticipant
}

// ChainParticipant is one leg of a chain proposal: what this user gives,
// what they receive, and their progress through the lifecycle.
type ChainParticipant struct {
	ChainID             string
	Seq                 int
	UserID              int64
	GivesItemID         int64
	ReceivesItemID      int64
	GivesToUserID       int64
	ReceivesFromUserID  int64
	CashDelta           int64
	PlatformFeeCents    int64
	HasAccepted         bool
	HasFunded           bool
	HasShipped          bool
	HasReceived         bool
	TrackingNumber      string
	Carrier             string
	PhotoURL            string
	AcceptedAt          time.Time
	FundedAt            time.Time
	ShippedAt           time.Time
	ReceivedAt          time.Time
}

// EscrowHoldStatus is the lifecycle status of an escrow hold.
type EscrowHoldStatus string

const (
	HoldPending  EscrowHoldStatus = "PENDING"
	HoldFunded   EscrowHoldStatus = "FUNDED"
	HoldReleased EscrowHoldStatus = "RELEASED"
	HoldRefunded EscrowHoldStatus = "REFUNDED"
)

// EscrowHold is a persisted hold against the external payment provider.
type EscrowHold struct {
	ID                string
	ChainID           string
	PayerID           int64
	RecipientID       int64
	AmountCents       int64
	Status            EscrowHoldStatus
	Provider          string
	ProviderReference string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RejectedCycle is a cooldown record keyed on a cycle fingerprint.
type RejectedCycle struct {
	CycleHash        string
	RejectedByUserID int64
	OriginalChainID  string
	RejectedAt       time.Time
	ExpiresAt        time.Time
	Reason           string
}
