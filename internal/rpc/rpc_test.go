package rpc

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/barterchain/chainengine/internal/chainstore"
	"github.com/barterchain/chainengine/internal/config"
	"github.com/barterchain/chainengine/internal/discovery"
	"github.com/barterchain/chainengine/internal/domain"
	"github.com/barterchain/chainengine/internal/escrow"
	"github.com/barterchain/chainengine/internal/lifecycle"
	"github.com/barterchain/chainengine/internal/mockprovider"
)

func newTestServer(t *testing.T) (*Server, *chainstore.Store) {
	t.Helper()
	dir, err := os.MkdirTemp("", "rpc-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := chainstore.New(chainstore.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("chainstore.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.DefaultEngineConfig()
	coord := lifecycle.NewCoordinator(lifecycle.Deps{
		Store:    store,
		Config:   cfg,
		Escrow:   escrow.New(store, mockprovider.NewPayments()),
		Shipping: mockprovider.NewShipping(),
		Notifier: mockprovider.NewNotifications(),
		Fees:     mockprovider.NewFeePolicy(nil),
	})
	disc := discovery.New(store, coord, cfg, mockprovider.NewDistance())

	s := NewServer(store, coord, disc)
	s.wsHub = NewWSHub()
	go s.wsHub.Run()
	t.Cleanup(func() { coord.Close() })

	return s, store
}

func call(t *testing.T, s *Server, method string, params interface{}) Response {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}

	body, err := json.Marshal(Request{JSONRPC: "2.0", Method: method, Params: raw, ID: 1})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest("POST", "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleRPC(rec, req)

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func TestItemUpsertAndGetRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)

	resp := call(t, s, "item_upsert", domain.Item{ID: 1, OwnerID: 7, Name: "Trumpet", ValueCents: 5000, Status: domain.ItemActive})
	if resp.Error != nil {
		t.Fatalf("item_upsert error: %+v", resp.Error)
	}

	resp = call(t, s, "item_get", itemGetParams{ItemID: 1})
	if resp.Error != nil {
		t.Fatalf("item_get error: %+v", resp.Error)
	}

	raw, _ := json.Marshal(resp.Result)
	var got domain.Item
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal item: %v", err)
	}
	if got.Name != "Trumpet" || got.ValueCents != 5000 {
		t.Fatalf("unexpected item: %+v", got)
	}
}

func TestChainGetUnknownChainReturnsError(t *testing.T) {
	s, _ := newTestServer(t)

	resp := call(t, s, "chain_get", chainGetParams{ChainID: "does-not-exist"})
	if resp.Error == nil {
		t.Fatalf("expected error for unknown chain, got result %+v", resp.Result)
	}
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	resp := call(t, s, "not_a_real_method", struct{}{})
	if resp.Error == nil || resp.Error.Code != MethodNotFound {
		t.Fatalf("expected MethodNotFound, got %+v", resp.Error)
	}
}

func TestDiscoveryRunThenChainListForUser(t *testing.T) {
	s, store := newTestServer(t)

	users := []domain.User{
		{ID: 1, DisplayName: "Ada", Rating: 4.8, Region: "NA", CompletedTrades: 5},
		{ID: 2, DisplayName: "Bo", Rating: 4.5, Region: "NA", CompletedTrades: 3},
		{ID: 3, DisplayName: "Cy", Rating: 4.9, Region: "NA", CompletedTrades: 10},
	}
	for _, u := range users {
		if err := store.UpsertUser(u); err != nil {
			t.Fatalf("UpsertUser: %v", err)
		}
	}
	items := []domain.Item{
		{ID: 10, OwnerID: 1, Name: "Guitar", ValueCents: 10000, Status: domain.ItemActive},
		{ID: 20, OwnerID: 2, Name: "Bike", ValueCents: 10000, Status: domain.ItemActive},
		{ID: 30, OwnerID: 3, Name: "Camera", ValueCents: 10000, Status: domain.ItemActive},
	}
	for _, it := range items {
		if err := store.UpsertItem(it); err != nil {
			t.Fatalf("UpsertItem: %v", err)
		}
	}
	wishlists := []domain.WishlistEntry{
		{UserID: 2, ItemID: 10},
		{UserID: 3, ItemID: 20},
		{UserID: 1, ItemID: 30},
	}
	for _, w := range wishlists {
		if err := store.AddWishlistEntry(w); err != nil {
			t.Fatalf("AddWishlistEntry: %v", err)
		}
	}

	resp := call(t, s, "discovery_run", struct{}{})
	if resp.Error != nil {
		t.Fatalf("discovery_run error: %+v", resp.Error)
	}

	resp = call(t, s, "chain_listForUser", chainListForUserParams{UserID: 1, ExcludeTerminal: true})
	if resp.Error != nil {
		t.Fatalf("chain_listForUser error: %+v", resp.Error)
	}

	raw, _ := json.Marshal(resp.Result)
	var chains []*domain.ChainProposal
	if err := json.Unmarshal(raw, &chains); err != nil {
		t.Fatalf("unmarshal chains: %v", err)
	}
	if len(chains) != 1 {
		t.Fatalf("expected 1 chain for user 1, got %d", len(chains))
	}
	if chains[0].Status != domain.StatusProposed {
		t.Fatalf("expected PROPOSED, got %s", chains[0].Status)
	}
}

func TestChainAcceptInvalidParamsReturnsError(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(Request{JSONRPC: "2.0", Method: "chain_accept", Params: json.RawMessage(`not json`), ID: 1})
	req := httptest.NewRequest("POST", "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleRPC(rec, req)

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error == nil {
		t.Fatalf("expected error for malformed params")
	}
}
