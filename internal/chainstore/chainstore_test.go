package chainstore

import (
	"os"
	"testing"
	"time"

	"github.com/barterchain/chainengine/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "chainengine-store-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := New(Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testProposal() *domain.ChainProposal {
	return &domain.ChainProposal{
		Status:                domain.StatusProposed,
		TotalValueCents:       33000,
		ValueTolerancePercent: 15,
		MaxParticipants:       3,
		Participants: []domain.ChainParticipant{
			{UserID: 1, GivesItemID: 1, ReceivesItemID: 3, GivesToUserID: 2, ReceivesFromUserID: 3, CashDelta: -1000},
			{UserID: 2, GivesItemID: 2, ReceivesItemID: 1, GivesToUserID: 3, ReceivesFromUserID: 1, CashDelta: 1000},
			{UserID: 3, GivesItemID: 3, ReceivesItemID: 2, GivesToUserID: 1, ReceivesFromUserID: 2, CashDelta: 0},
		},
	}
}

func TestProposalCRUD(t *testing.T) {
	store := newTestStore(t)

	p := testProposal()
	id, err := store.CreateProposal(p)
	if err != nil {
		t.Fatalf("CreateProposal: %v", err)
	}

	got, err := store.GetProposal(id)
	if err != nil {
		t.Fatalf("GetProposal: %v", err)
	}
	if got.Status != domain.StatusProposed {
		t.Errorf("expected PROPOSED, got %s", got.Status)
	}
	if len(got.Participants) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(got.Participants))
	}
	for i, p := range got.Participants {
		if p.Seq != i {
			t.Errorf("expected participants in seq order, got seq=%d at index %d", p.Seq, i)
		}
	}
}

func TestItemLockCAS(t *testing.T) {
	store := newTestStore(t)
	item := domain.Item{ID: 1, OwnerID: 1, Name: "Widget", ValueCents: 500, Status: domain.ItemActive}
	if err := store.UpsertItem(item); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}

	locked, err := store.TryLockItem(1)
	if err != nil {
		t.Fatalf("TryLockItem: %v", err)
	}
	if !locked {
		t.Fatal("expected first lock to succeed")
	}

	lockedAgain, err := store.TryLockItem(1)
	if err != nil {
		t.Fatalf("TryLockItem: %v", err)
	}
	if lockedAgain {
		t.Fatal("expected second lock attempt on an already-locked item to fail")
	}

	if err := store.UnlockItem(1); err != nil {
		t.Fatalf("UnlockItem: %v", err)
	}
	relocked, err := store.TryLockItem(1)
	if err != nil {
		t.Fatalf("TryLockItem: %v", err)
	}
	if !relocked {
		t.Fatal("expected lock to succeed again after unlock")
	}
}

func TestRejectionCooldown(t *testing.T) {
	store := newTestStore(t)

	rec := domain.RejectedCycle{
		CycleHash:        "cycle_abc123",
		RejectedByUserID: 2,
		OriginalChainID:  "chain-1",
		RejectedAt:       time.Now(),
		ExpiresAt:        time.Now().Add(30 * 24 * time.Hour),
		Reason:           "no longer interested",
	}
	if err := store.RecordRejection(rec); err != nil {
		t.Fatalf("RecordRejection: %v", err)
	}

	rejected, err := store.IsRejected("cycle_abc123")
	if err != nil {
		t.Fatalf("IsRejected: %v", err)
	}
	if !rejected {
		t.Fatal("expected cycle to be on cooldown")
	}

	rejected, err = store.IsRejected("cycle_never_seen")
	if err != nil {
		t.Fatalf("IsRejected: %v", err)
	}
	if rejected {
		t.Fatal("expected unknown fingerprint to not be rejected")
	}
}

func TestGetProposalsPastExpiry(t *testing.T) {
	store := newTestStore(t)

	p := testProposal()
	id, err := store.CreateProposal(p)
	if err != nil {
		t.Fatalf("CreateProposal: %v", err)
	}

	past, err := store.GetProposalsPastExpiry(time.Now())
	if err != nil {
		t.Fatalf("GetProposalsPastExpiry: %v", err)
	}
	if len(past) != 0 {
		t.Fatalf("expected no expired proposals yet, got %d", len(past))
	}

	past, err = store.GetProposalsPastExpiry(time.Now().Add(25 * time.Hour))
	if err != nil {
		t.Fatalf("GetProposalsPastExpiry: %v", err)
	}
	if len(past) != 1 || past[0].ID != id {
		t.Fatalf("expected the one proposal to be past expiry, got %+v", past)
	}
}
