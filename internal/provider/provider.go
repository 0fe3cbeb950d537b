// Package provider declares the external collaborator contracts the
// lifecycle coordinator depends on but never implements: payment,
// shipping, notification, fee policy, and distance lookups. Concrete
// implementations live outside this repository except for the in-memory
// stand-ins in internal/mockprovider used by tests and local runs.
package provider

// PaymentIntent is the result of creating a payment intent with manual
// capture.
type PaymentIntent struct {
	ID                string
	ClientSecret      string
	Status            string
	ProviderReference string
}

// TransferResult is the result of a provider payout transfer.
type TransferResult struct {
	ID string
}

// PaymentProvider is the escrow payment rail. Implementations must
// support manual-capture intents.
type PaymentProvider interface {
	CreatePaymentIntent(amountCents int64, currency string, chainID string, userID int64, metadata map[string]any, feeCents int64) (PaymentIntent, error)
	CapturePayment(providerReference string) error
	RefundPayment(providerReference string, amountCents *int64) error
	Transfer(destinationAccount string, amountCents int64, currency string, metadata map[string]any) (TransferResult, error)
}

// Carrier is a detected or declared shipping carrier.
type Carrier string

const (
	CarrierUSPS    Carrier = "USPS"
	CarrierUPS     Carrier = "UPS"
	CarrierFedEx   Carrier = "FEDEX"
	CarrierDHL     Carrier = "DHL"
	CarrierUnknown Carrier = "UNKNOWN"
)

// ShippingProvider records tracking numbers with the external carrier
// integration.
type ShippingProvider interface {
	CreateTrackingRecord(chainID string, userID int64, trackingNumber string) error
}

// NotificationKind enumerates the notification kinds the coordinator
// fires.
type NotificationKind string

const (
	NotifyChainTradeOpportunity NotificationKind = "CHAIN_TRADE_OPPORTUNITY"
	NotifyChainTradeLocked      NotificationKind = "CHAIN_TRADE_LOCKED"
	NotifyChainTradeShipping    NotificationKind = "CHAIN_TRADE_SHIPPING"
	NotifyChainTradeCancelled   NotificationKind = "CHAIN_TRADE_CANCELLED"
	NotifyTrackingAdded         NotificationKind = "TRACKING_ADDED"
	NotifyTradeCompleted        NotificationKind = "TRADE_COMPLETED"
)

// Notifier is a fire-and-forget notification sink. Failures must be
// logged by the caller and must never abort a transition.
type Notifier interface {
	Notify(userID int64, kind NotificationKind, title, body string) error
}

// FeePolicy decides whether a user's platform fee is waived, and tracks
// their completed-trade counter.
type FeePolicy interface {
	CalculateTradeFee(userID int64) (isWaived bool, reason string, err error)
	IncrementTradeCounter(userID int64) error
}

// DistanceService resolves geographic distance information between
// participant regions. The validator consults it only to decide whether
// to log a warning when regions are unknown or mismatched (see
// DESIGN.md open question resolutions) — it never causes a rejection.
type DistanceService interface {
	SameRegion(regionA, regionB string) bool
}
