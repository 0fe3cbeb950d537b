// Package mockprovider implements the external collaborator contracts
// from internal/provider in memory, for tests and local runs where no
// real payment rail, carrier integration, or notification backend is
// wired up.
package mockprovider

import (
	"fmt"
	"sync"

	"github.com/barterchain/chainengine/internal/provider"
	"github.com/google/uuid"
)

// Payments is an in-memory PaymentProvider.
type Payments struct {
	mu      sync.Mutex
	intents map[string]string // providerReference -> status
}

// NewPayments creates an empty in-memory payment provider.
func NewPayments() *Payments {
	return &Payments{intents: make(map[string]string)}
}

func (p *Payments) CreatePaymentIntent(amountCents int64, currency string, chainID string, userID int64, metadata map[string]any, feeCents int64) (provider.PaymentIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ref := "pi_" + uuid.NewString()
	p.intents[ref] = "requires_capture"
	return provider.PaymentIntent{
		ID:                ref,
		Status:            "requires_capture",
		ProviderReference: ref,
	}, nil
}

func (p *Payments) CapturePayment(providerReference string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.intents[providerReference]; !ok {
		return fmt.Errorf("unknown payment intent %s", providerReference)
	}
	p.intents[providerReference] = "captured"
	return nil
}

func (p *Payments) RefundPayment(providerReference string, amountCents *int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.intents[providerReference]; !ok {
		return fmt.Errorf("unknown payment intent %s", providerReference)
	}
	p.intents[providerReference] = "refunded"
	return nil
}

func (p *Payments) Transfer(destinationAccount string, amountCents int64, currency string, metadata map[string]any) (provider.TransferResult, error) {
	return provider.TransferResult{ID: "tr_" + uuid.NewString()}, nil
}

// Shipping is an in-memory ShippingProvider.
type Shipping struct {
	mu      sync.Mutex
	records []trackingRecord
}

type trackingRecord struct {
	ChainID        string
	UserID         int64
	TrackingNumber string
}

// NewShipping creates an empty in-memory shipping provider.
func NewShipping() *Shipping {
	return &Shipping{}
}

func (s *Shipping) CreateTrackingRecord(chainID string, userID int64, trackingNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, trackingRecord{ChainID: chainID, UserID: userID, TrackingNumber: trackingNumber})
	return nil
}

// Notifications is an in-memory Notifier that just keeps a log.
type Notifications struct {
	mu  sync.Mutex
	log []string
}

// NewNotifications creates an empty in-memory notifier.
func NewNotifications() *Notifications {
	return &Notifications{}
}

func (n *Notifications) Notify(userID int64, kind provider.NotificationKind, title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.log = append(n.log, fmt.Sprintf("user=%d kind=%s title=%q body=%q", userID, kind, title, body))
	return nil
}

// Log returns a copy of every notification recorded so far, for test
// assertions.
func (n *Notifications) Log() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.log))
	copy(out, n.log)
	return out
}

// FeePolicy is an in-memory FeePolicy where waivers are configured per
// user up front.
type FeePolicy struct {
	mu      sync.Mutex
	waived  map[int64]string
	counter map[int64]int
}

// NewFeePolicy creates a fee policy with the given waived users (userID
// -> reason).
func NewFeePolicy(waived map[int64]string) *FeePolicy {
	if waived == nil {
		waived = make(map[int64]string)
	}
	return &FeePolicy{waived: waived, counter: make(map[int64]int)}
}

func (f *FeePolicy) CalculateTradeFee(userID int64) (bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if reason, ok := f.waived[userID]; ok {
		return true, reason, nil
	}
	return false, "", nil
}

func (f *FeePolicy) IncrementTradeCounter(userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter[userID]++
	return nil
}

// TradeCount returns how many times a user's counter was incremented.
func (f *FeePolicy) TradeCount(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[userID]
}

// Distance is an in-memory DistanceService that treats regions as the
// same iff their strings are equal.
type Distance struct{}

// NewDistance creates a trivial same-string distance service.
func NewDistance() Distance { return Distance{} }

func (Distance) SameRegion(a, b string) bool { return a == b }
