package shipment

import (
	"testing"

	"github.com/barterchain/chainengine/internal/provider"
)

func TestDetectCarrier(t *testing.T) {
	cases := []struct {
		tracking string
		want     provider.Carrier
	}{
		{"1Z999AA10123456784", provider.CarrierUPS},
		{"9205590164917312345678", provider.CarrierUSPS},
		{"123456789012", provider.CarrierFedEx},
		{"1234567890", provider.CarrierDHL},
		{"JD000000000000000001", provider.CarrierDHL},
		{"not-a-tracking-number", provider.CarrierUnknown},
	}

	for _, c := range cases {
		got := DetectCarrier(c.tracking)
		if got != c.want {
			t.Errorf("DetectCarrier(%q) = %s, want %s", c.tracking, got, c.want)
		}
	}
}

func TestResolveCarrierPrefersDeclared(t *testing.T) {
	got := ResolveCarrier("UPS", "1234567890")
	if got != provider.CarrierUPS {
		t.Errorf("expected declared carrier to win, got %s", got)
	}
}
