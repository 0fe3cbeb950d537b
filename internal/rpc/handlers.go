package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/barterchain/chainengine/internal/domain"
	"github.com/barterchain/chainengine/internal/metrics"
)

// chainGetParams identifies a single chain proposal.
type chainGetParams struct {
	ChainID string `json:"chainId"`
}

func (s *Server) chainGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req chainGetParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if req.ChainID == "" {
		return nil, fmt.Errorf("chainId is required")
	}

	p, err := s.store.GetProposal(req.ChainID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// chainListForUserParams scopes a listing to one user's chains.
// ExcludeTerminal defaults to true when the caller omits it.
type chainListForUserParams struct {
	UserID          int64 `json:"userId"`
	ExcludeTerminal bool  `json:"excludeTerminal"`
}

func (s *Server) chainListForUser(ctx context.Context, params json.RawMessage) (interface{}, error) {
	req := chainListForUserParams{ExcludeTerminal: true}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if req.UserID == 0 {
		return nil, fmt.Errorf("userId is required")
	}

	chains, err := s.store.ListProposalsForUser(req.UserID, req.ExcludeTerminal)
	if err != nil {
		return nil, err
	}
	return chains, nil
}

// chainActionParams is the common shape for every user-initiated
// transition: which chain, and which participant is acting.
type chainActionParams struct {
	ChainID string `json:"chainId"`
	UserID  int64  `json:"userId"`
}

func (s *Server) chainAccept(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req chainActionParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	p, err := s.coordinator.Accept(req.ChainID, req.UserID)
	if p != nil {
		s.broadcastChainEvent(p)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

type chainRejectParams struct {
	ChainID string `json:"chainId"`
	UserID  int64  `json:"userId"`
	Reason  string `json:"reason"`
}

func (s *Server) chainReject(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req chainRejectParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	p, err := s.coordinator.Reject(req.ChainID, req.UserID, req.Reason)
	if err != nil {
		return nil, err
	}
	s.broadcastChainEvent(p)
	return p, nil
}

func (s *Server) chainFund(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req chainActionParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	p, err := s.coordinator.Fund(req.ChainID, req.UserID)
	if err != nil {
		return nil, err
	}
	s.broadcastChainEvent(p)
	return p, nil
}

type chainSubmitShippingParams struct {
	ChainID        string `json:"chainId"`
	UserID         int64  `json:"userId"`
	TrackingNumber string `json:"trackingNumber"`
	Carrier        string `json:"carrier"`
	PhotoURL       string `json:"photoUrl"`
}

func (s *Server) chainSubmitShipping(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req chainSubmitShippingParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	result, err := s.coordinator.SubmitShipping(req.ChainID, req.UserID, req.TrackingNumber, req.Carrier, req.PhotoURL)
	if err != nil {
		return nil, err
	}
	s.broadcastChainEvent(result.Proposal)
	return result, nil
}

func (s *Server) chainVerifyReceipt(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req chainActionParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	p, err := s.coordinator.VerifyReceipt(req.ChainID, req.UserID)
	if err != nil {
		return nil, err
	}
	s.broadcastChainEvent(p)
	return p, nil
}

func (s *Server) discoveryRun(ctx context.Context, params json.RawMessage) (interface{}, error) {
	start := time.Now()
	result, err := s.discoverer.Run()
	if err != nil {
		return nil, err
	}
	metrics.RecordDiscovery(time.Since(start), result.CyclesFound, len(result.ProposalsCreated))
	for _, chainID := range result.ProposalsCreated {
		p, err := s.store.GetProposal(chainID)
		if err != nil {
			s.log.Error("failed to load newly discovered proposal for broadcast", "chain", chainID, "err", err)
			continue
		}
		s.broadcastChainEvent(p)
	}
	return result, nil
}

func (s *Server) itemUpsert(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var item domain.Item
	if err := json.Unmarshal(params, &item); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if item.Status == "" {
		item.Status = domain.ItemActive
	}
	if err := s.store.UpsertItem(item); err != nil {
		return nil, err
	}
	return item, nil
}

type itemGetParams struct {
	ItemID int64 `json:"itemId"`
}

func (s *Server) itemGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req itemGetParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	it, err := s.store.GetItem(req.ItemID)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// broadcastChainEvent pushes a chain's current state to every WebSocket
// client watching one of its participants. It is a best-effort mirror
// of the store, not the lifecycle event stream itself — the
// coordinator's own OnEvent hook (wired in cmd/chaind) is the source of
// truth for event kinds; this covers handlers that call the coordinator
// directly without a registered hook in tests.
func (s *Server) broadcastChainEvent(p *domain.ChainProposal) {
	if s.wsHub == nil || p == nil {
		return
	}
	s.wsHub.Broadcast(p, p.ID, statusEventType(p.Status), p)
}

func statusEventType(status domain.ProposalStatus) EventType {
	switch status {
	case domain.StatusLocked:
		return EventChainLocked
	case domain.StatusFailed:
		return EventChainRejected
	case domain.StatusShipping:
		return EventChainFunded
	case domain.StatusCompleted:
		return EventChainCompleted
	case domain.StatusExpired:
		return EventChainExpired
	default:
		return EventChainProposed
	}
}
