// Package validate computes cash-balance accounting for a discovered
// cycle and applies the business-rule gates that decide whether it may
// be proposed.
package validate

import (
	"fmt"
	"math"

	"github.com/barterchain/chainengine/internal/config"
	"github.com/barterchain/chainengine/internal/cyclefind"
	"github.com/barterchain/chainengine/internal/provider"
	"github.com/barterchain/chainengine/internal/tradegraph"
)

// Balance holds the computed accounting for a cycle.
type Balance struct {
	ParticipantIDs []int64
	TotalValue     int64
	CashBalances   map[int64]int64 // userID -> gives - receives
}

// ComputeBalance derives participant ids, total value, and per-participant
// cash balance from an ordered cycle. bal(e_i.from) = e_i.value -
// e_(i-1 mod n).value.
func ComputeBalance(c cyclefind.Cycle) Balance {
	n := len(c.Edges)
	bal := make(map[int64]int64, n)
	total := int64(0)

	for i, e := range c.Edges {
		prev := c.Edges[(i-1+n)%n]
		bal[e.FromUserID] = e.ValueCents - prev.ValueCents
		total += e.ValueCents
	}

	return Balance{
		ParticipantIDs: c.ParticipantIDs(),
		TotalValue:     total,
		CashBalances:   bal,
	}
}

// Result is the outcome of validating a cycle: either accepted, or
// rejected with a human-readable reason.
type Result struct {
	Accepted bool
	Reason   string
	Balance  Balance
}

// Validate applies, in order, the minimum-reputation, minimum-trade-
// history, positive-value, and value-tolerance gates. The geographic
// constraint is checked through dist but never causes rejection (see
// spec design notes: left as a logged warning, enforcement is a
// product-policy decision not made here). dist may be nil, in which case
// the region check falls back to plain string equality.
func Validate(g *tradegraph.Graph, c cyclefind.Cycle, cfg config.EngineConfig, dist provider.DistanceService, warn func(string)) Result {
	bal := ComputeBalance(c)

	for _, uid := range bal.ParticipantIDs {
		meta, ok := g.Meta[uid]
		if !ok {
			return reject(bal, fmt.Sprintf("unknown participant %d", uid))
		}
		if meta.Rating < cfg.MinReputation {
			return reject(bal, fmt.Sprintf("participant %d rating %.1f below floor %.1f", uid, meta.Rating, cfg.MinReputation))
		}
		if meta.CompletedTrades < cfg.MinTradesCompleted {
			return reject(bal, fmt.Sprintf("participant %d has %d completed trades, below floor %d", uid, meta.CompletedTrades, cfg.MinTradesCompleted))
		}
	}

	for _, e := range c.Edges {
		if e.ValueCents <= 0 {
			return reject(bal, fmt.Sprintf("item %d has non-positive value", e.ItemID))
		}
	}

	n := int64(len(c.Edges))
	if n == 0 {
		return reject(bal, "empty cycle")
	}
	avg := float64(bal.TotalValue) / float64(n)
	maxDelta := 0.0
	for _, d := range bal.CashBalances {
		if ad := math.Abs(float64(d)); ad > maxDelta {
			maxDelta = ad
		}
	}
	if avg > 0 {
		pct := maxDelta / avg * 100
		if pct > cfg.ValueTolerancePercent {
			return reject(bal, fmt.Sprintf("cash imbalance %.1f%% exceeds tolerance %.1f%%", pct, cfg.ValueTolerancePercent))
		}
	}

	if warn != nil {
		sameRegion := func(a, b string) bool {
			if dist != nil {
				return dist.SameRegion(a, b)
			}
			return a == b
		}

		ids := bal.ParticipantIDs
		unknown := false
		mismatched := false
		for i := 0; i < len(ids); i++ {
			regionI := g.Meta[ids[i]].Region
			if regionI == "" {
				unknown = true
				continue
			}
			for j := i + 1; j < len(ids); j++ {
				regionJ := g.Meta[ids[j]].Region
				if regionJ == "" {
					continue
				}
				if !sameRegion(regionI, regionJ) {
					mismatched = true
				}
			}
		}
		if unknown || mismatched {
			warn(fmt.Sprintf("cycle %v spans mismatched or unknown regions (not enforced)", ids))
		}
	}

	return Result{Accepted: true, Balance: bal}
}

func reject(bal Balance, reason string) Result {
	return Result{Accepted: false, Reason: reason, Balance: bal}
}
