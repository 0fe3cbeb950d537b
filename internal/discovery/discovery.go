// Package discovery wires the graph builder, cycle enumerator, rejection
// filter, and validator into a single pass that turns the current
// inventory snapshot into newly proposed chains.
package discovery

import (
	"fmt"

	"github.com/barterchain/chainengine/internal/chainstore"
	"github.com/barterchain/chainengine/internal/config"
	"github.com/barterchain/chainengine/internal/cyclefind"
	"github.com/barterchain/chainengine/internal/domain"
	"github.com/barterchain/chainengine/internal/lifecycle"
	"github.com/barterchain/chainengine/internal/mockprovider"
	"github.com/barterchain/chainengine/internal/provider"
	"github.com/barterchain/chainengine/internal/reject"
	"github.com/barterchain/chainengine/internal/tradegraph"
	"github.com/barterchain/chainengine/internal/validate"
	"github.com/barterchain/chainengine/pkg/logging"
)

// Engine runs a single discovery pass: snapshot inventory, build the
// trade graph, enumerate candidate cycles, drop any under cooldown,
// validate the rest, and propose whatever survives.
type Engine struct {
	store *chainstore.Store
	coord *lifecycle.Coordinator
	cfg   config.EngineConfig
	dist  provider.DistanceService
	log   *logging.Logger
}

// New constructs a discovery Engine. dist is the geographic-distance
// collaborator consulted by the validator's region warning; a nil dist
// falls back to mockprovider's plain same-string comparison, since no
// real distance provider exists in this repo (see spec §6).
func New(store *chainstore.Store, coord *lifecycle.Coordinator, cfg config.EngineConfig, dist provider.DistanceService) *Engine {
	if dist == nil {
		dist = mockprovider.NewDistance()
	}
	return &Engine{store: store, coord: coord, cfg: cfg, dist: dist, log: logging.GetDefault().Component("discovery")}
}

// Result summarizes a single discovery pass.
type Result struct {
	CyclesFound     int
	CyclesAfterCooldown int
	ProposalsCreated []string
}

// Run executes one discovery pass against the current store contents.
func (e *Engine) Run() (Result, error) {
	users, err := e.store.AllUsers()
	if err != nil {
		return Result{}, fmt.Errorf("load users: %w", err)
	}
	items, err := e.store.ActiveItems()
	if err != nil {
		return Result{}, fmt.Errorf("load items: %w", err)
	}
	wishlists, err := e.store.AllWishlistEntries()
	if err != nil {
		return Result{}, fmt.Errorf("load wishlists: %w", err)
	}

	graph := tradegraph.Build(tradegraph.Snapshot{Users: users, Items: items, Wishlists: wishlists})

	cycles := cyclefind.Find(graph, e.cfg.MaxChainDepth)
	result := Result{CyclesFound: len(cycles)}

	kept, err := reject.Filter(cycles, e.store)
	if err != nil {
		return result, fmt.Errorf("filter cooldowns: %w", err)
	}
	result.CyclesAfterCooldown = len(kept)

	for _, c := range kept {
		v := validate.Validate(graph, c, e.cfg, e.dist, func(msg string) { e.log.Warn(msg) })
		if !v.Accepted {
			e.log.Debug("cycle rejected by validator", "participants", v.Balance.ParticipantIDs, "reason", v.Reason)
			continue
		}

		proposal := buildProposal(c, v.Balance, e.cfg)
		id, err := e.coord.CreateProposal(proposal)
		if err != nil {
			e.log.Error("failed to persist discovered proposal", "err", err)
			continue
		}
		result.ProposalsCreated = append(result.ProposalsCreated, id)
	}

	return result, nil
}

// buildProposal turns a validated cycle into the persistent aggregate the
// coordinator will propose. ChainParticipant.CashDelta is the amount this
// participant owes (positive) or is owed (negative) — the opposite sign
// convention from validate.Balance.CashBalances, which measures value
// given minus value received for tolerance checking. A participant who
// received more value than they gave must pay the difference, so their
// CashDelta is the negation of their balance entry.
func buildProposal(c cyclefind.Cycle, bal validate.Balance, cfg config.EngineConfig) *domain.ChainProposal {
	n := len(c.Edges)
	participants := make([]domain.ChainParticipant, n)
	for i, e := range c.Edges {
		prev := c.Edges[(i-1+n)%n]
		participants[i] = domain.ChainParticipant{
			UserID:             e.FromUserID,
			GivesItemID:        e.ItemID,
			GivesToUserID:      e.ToUserID,
			ReceivesItemID:     prev.ItemID,
			ReceivesFromUserID: prev.FromUserID,
			CashDelta:          -bal.CashBalances[e.FromUserID],
			PlatformFeeCents:   cfg.PlatformFeeCents,
		}
	}

	return &domain.ChainProposal{
		TotalValueCents: bal.TotalValue,
		MaxParticipants: n,
		Participants:    participants,
	}
}
