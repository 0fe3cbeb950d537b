package sweeper

import (
	"os"
	"testing"
	"time"

	"github.com/barterchain/chainengine/internal/chainstore"
	"github.com/barterchain/chainengine/internal/config"
	"github.com/barterchain/chainengine/internal/domain"
	"github.com/barterchain/chainengine/internal/escrow"
	"github.com/barterchain/chainengine/internal/lifecycle"
	"github.com/barterchain/chainengine/internal/mockprovider"
)

func newTestStoreAndCoord(t *testing.T) (*chainstore.Store, *lifecycle.Coordinator) {
	t.Helper()
	dir, err := os.MkdirTemp("", "sweeper-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := chainstore.New(chainstore.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("chainstore.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	coord := lifecycle.NewCoordinator(lifecycle.Deps{
		Store:    store,
		Config:   config.DefaultEngineConfig(),
		Escrow:   escrow.New(store, mockprovider.NewPayments()),
		Shipping: mockprovider.NewShipping(),
		Notifier: mockprovider.NewNotifications(),
		Fees:     mockprovider.NewFeePolicy(nil),
	})
	t.Cleanup(func() { coord.Close() })

	return store, coord
}

func TestSweepOnceExpiresPastDeadlineAndUnlocksItems(t *testing.T) {
	store, coord := newTestStoreAndCoord(t)

	if err := store.UpsertItem(domain.Item{ID: 1, OwnerID: 10, Name: "Watch", ValueCents: 1000, Status: domain.ItemLocked}); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}

	proposal := &domain.ChainProposal{
		TotalValueCents: 1000,
		MaxParticipants: 1,
		Participants: []domain.ChainParticipant{
			{UserID: 10, GivesItemID: 1, ReceivesItemID: 1, GivesToUserID: 10, ReceivesFromUserID: 10},
		},
	}
	id, err := store.CreateProposal(proposal)
	if err != nil {
		t.Fatalf("CreateProposal: %v", err)
	}
	if err := store.UpdateProposalStatus(id, domain.StatusLocked, "", time.Time{}); err != nil {
		t.Fatalf("UpdateProposalStatus: %v", err)
	}

	past := time.Now().Add(-time.Hour)
	if _, err := store.DB().Exec(`UPDATE chain_proposals SET expires_at = ? WHERE id = ?`, past.Unix(), id); err != nil {
		t.Fatalf("force expiry: %v", err)
	}

	sw := New(store, coord, time.Minute)
	sw.sweepOnce()

	p, err := store.GetProposal(id)
	if err != nil {
		t.Fatalf("GetProposal: %v", err)
	}
	if p.Status != domain.StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", p.Status)
	}

	item, err := store.GetItem(1)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if item.Status != domain.ItemActive {
		t.Fatalf("expected item unlocked back to active, got %s", item.Status)
	}
}

func TestSweepOnceLeavesFreshProposalsAlone(t *testing.T) {
	store, coord := newTestStoreAndCoord(t)

	if err := store.UpsertItem(domain.Item{ID: 1, OwnerID: 10, Name: "Watch", ValueCents: 1000, Status: domain.ItemActive}); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	proposal := &domain.ChainProposal{
		TotalValueCents: 1000,
		MaxParticipants: 1,
		Participants: []domain.ChainParticipant{
			{UserID: 10, GivesItemID: 1, ReceivesItemID: 1, GivesToUserID: 10, ReceivesFromUserID: 10},
		},
	}
	id, err := store.CreateProposal(proposal)
	if err != nil {
		t.Fatalf("CreateProposal: %v", err)
	}

	sw := New(store, coord, time.Minute)
	sw.sweepOnce()

	p, err := store.GetProposal(id)
	if err != nil {
		t.Fatalf("GetProposal: %v", err)
	}
	if p.Status != domain.StatusProposed {
		t.Fatalf("expected unchanged PROPOSED, got %s", p.Status)
	}
}
