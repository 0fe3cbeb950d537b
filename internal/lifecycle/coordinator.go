// Package lifecycle implements the chain lifecycle coordinator: the
// state machine that drives a discovered trade cycle from proposal
// through acceptance, item locking, escrow funding, shipping, and
// receipt, with rollback-on-failure at every step.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/barterchain/chainengine/internal/chainstore"
	"github.com/barterchain/chainengine/internal/config"
	"github.com/barterchain/chainengine/internal/domain"
	"github.com/barterchain/chainengine/internal/escrow"
	"github.com/barterchain/chainengine/internal/provider"
	"github.com/barterchain/chainengine/pkg/logging"
)

// Event is emitted on every lifecycle transition so callers (the RPC
// WebSocket hub, metrics, tests) can react without polling storage.
type Event struct {
	ChainID   string
	Kind      string
	Data      any
	Timestamp time.Time
}

// EventHandler receives lifecycle events. Handlers run in their own
// goroutine and must not block the coordinator.
type EventHandler func(Event)

// Coordinator is the chain lifecycle state machine. It serializes
// transitions per chain id via a per-chain mutex, so operations on
// different chains proceed independently while two transitions on the
// same chain never commit concurrently.
type Coordinator struct {
	store    *chainstore.Store
	cfg      config.EngineConfig
	escrow   *escrow.Orchestrator
	shipping provider.ShippingProvider
	notifier provider.Notifier
	fees     provider.FeePolicy
	// connectedAccount resolves a provider account reference for a net
	// cash receiver at payout time. Returns ok=false when the user has no
	// connected account yet, in which case the payout is recorded as
	// pending onboarding instead of transferred.
	connectedAccount func(userID int64) (account string, ok bool)

	chainMu       sync.Map // chainID -> *sync.Mutex
	eventHandlers []EventHandler
	handlersMu    sync.RWMutex

	log    *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// Deps bundles the Coordinator's external collaborators.
type Deps struct {
	Store            *chainstore.Store
	Config           config.EngineConfig
	Escrow           *escrow.Orchestrator
	Shipping         provider.ShippingProvider
	Notifier         provider.Notifier
	Fees             provider.FeePolicy
	ConnectedAccount func(userID int64) (account string, ok bool)
}

// NewCoordinator constructs a Coordinator over the given store and
// external collaborators.
func NewCoordinator(deps Deps) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	connectedAccount := deps.ConnectedAccount
	if connectedAccount == nil {
		connectedAccount = func(int64) (string, bool) { return "", false }
	}
	return &Coordinator{
		store:            deps.Store,
		cfg:              deps.Config,
		escrow:           deps.Escrow,
		shipping:         deps.Shipping,
		notifier:         deps.Notifier,
		fees:             deps.Fees,
		connectedAccount: connectedAccount,
		log:              logging.GetDefault().Component("lifecycle"),
		ctx:              ctx,
		cancel:           cancel,
	}
}

// OnEvent registers an event handler.
func (c *Coordinator) OnEvent(h EventHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.eventHandlers = append(c.eventHandlers, h)
}

// emitEvent dispatches an event to every registered handler
// asynchronously, mirroring the fire-and-forget notification contract:
// a slow or failing handler must never block a transition.
func (c *Coordinator) emitEvent(chainID, kind string, data any) {
	event := Event{ChainID: chainID, Kind: kind, Data: data, Timestamp: time.Now()}

	c.handlersMu.RLock()
	handlers := make([]EventHandler, len(c.eventHandlers))
	copy(handlers, c.eventHandlers)
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		go h(event)
	}
}

// notify calls the external Notifier and logs, but never returns an
// error to the caller: notification failures must never abort a
// transition.
func (c *Coordinator) notify(userID int64, kind provider.NotificationKind, title, body string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(userID, kind, title, body); err != nil {
		c.log.Warn("notification failed", "user", userID, "kind", kind, "err", err)
	}
}

// chainLock returns the per-chain mutex, creating it on first use.
func (c *Coordinator) chainLock(chainID string) *sync.Mutex {
	v, _ := c.chainMu.LoadOrStore(chainID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Close shuts down the coordinator's background context.
func (c *Coordinator) Close() error {
	c.cancel()
	return nil
}

// CreateProposal persists a freshly validated cycle as a new chain
// proposal in status PROPOSED. Participants are built by the caller
// (internal/discovery) from the cycle + balance computation.
func (c *Coordinator) CreateProposal(p *domain.ChainProposal) (string, error) {
	p.Status = domain.StatusProposed
	p.ValueTolerancePercent = c.cfg.ValueTolerancePercent
	if p.MaxParticipants == 0 {
		p.MaxParticipants = c.cfg.MaxChainDepth
	}
	if p.ExpiresAt.IsZero() && c.cfg.ProposalTTL > 0 {
		p.ExpiresAt = time.Now().Add(c.cfg.ProposalTTL)
	}
	id, err := c.store.CreateProposal(p)
	if err != nil {
		return "", err
	}

	for _, participant := range p.Participants {
		c.notify(participant.UserID, provider.NotifyChainTradeOpportunity,
			"New trade cycle found", "A barter cycle involving your items is ready to review.")
	}
	c.emitEvent(id, "proposed", nil)
	return id, nil
}
