// Package shipment detects shipping carriers from tracking numbers and
// resolves a declared carrier against the detected one. Tracking rows
// are stored by internal/chainstore, and the chain-wide green light is
// decided by the lifecycle coordinator.
package shipment

import (
	"regexp"

	"github.com/barterchain/chainengine/internal/provider"
)

var (
	uspsPattern  = regexp.MustCompile(`^9[0-9]{19,21}$`)
	uspsPrefix   = regexp.MustCompile(`^9[1-4][0-9]{18,20}$`)
	upsPattern   = regexp.MustCompile(`^1Z[A-Z0-9]{16}$`)
	fedexLong    = regexp.MustCompile(`^[0-9]{12,15}$`)
	fedexXLong   = regexp.MustCompile(`^[0-9]{22}$`)
	dhlShort     = regexp.MustCompile(`^[0-9]{10}$`)
	dhlJD        = regexp.MustCompile(`^JD[0-9]{18}$`)
)

// DetectCarrier infers a carrier from a tracking number's shape. Returns
// CarrierUnknown if nothing matches.
func DetectCarrier(trackingNumber string) provider.Carrier {
	switch {
	case uspsPattern.MatchString(trackingNumber), uspsPrefix.MatchString(trackingNumber):
		return provider.CarrierUSPS
	case upsPattern.MatchString(trackingNumber):
		return provider.CarrierUPS
	case fedexLong.MatchString(trackingNumber), fedexXLong.MatchString(trackingNumber):
		return provider.CarrierFedEx
	case dhlShort.MatchString(trackingNumber), dhlJD.MatchString(trackingNumber):
		return provider.CarrierDHL
	default:
		return provider.CarrierUnknown
	}
}

// ResolveCarrier returns the declared carrier if supplied, otherwise the
// one detected from the tracking number's shape.
func ResolveCarrier(declared string, trackingNumber string) provider.Carrier {
	if declared != "" {
		return provider.Carrier(declared)
	}
	return DetectCarrier(trackingNumber)
}
