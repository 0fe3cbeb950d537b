// Package reject implements the cycle fingerprint used to suppress
// re-proposal of a cycle a participant has already turned down, and the
// cooldown lookup against the rejection store.
package reject

import (
	"fmt"
	"sort"
	"strings"

	"github.com/barterchain/chainengine/internal/cyclefind"
)

// Fingerprint computes the order-independent fingerprint for a cycle.
// The algorithm is prescribed bit-for-bit because two independent
// callers — the discovery filter and the lifecycle coordinator's
// rejection writer — must agree on the same string for the same cycle.
//
//	participant_data = sort_ascending({ "userId:givesItemId" }).join("|")
//	h = 0; for each byte c of participant_data: h = int32(h<<5 - h + int32(c))
//	fingerprint = "cycle_" + hex(abs(h))
func Fingerprint(c cyclefind.Cycle) string {
	parts := make([]string, len(c.Edges))
	for i, e := range c.Edges {
		parts[i] = fmt.Sprintf("%d:%d", e.FromUserID, e.ItemID)
	}
	sort.Strings(parts)
	joined := strings.Join(parts, "|")

	var h int32
	for i := 0; i < len(joined); i++ {
		h = int32(uint32(h)<<5) - h + int32(joined[i])
	}

	abs := h
	if abs < 0 {
		abs = -abs
	}

	return fmt.Sprintf("cycle_%x", uint32(abs))
}

// CooldownChecker reports whether a fingerprint is currently suppressed.
// Satisfied by the chain store.
type CooldownChecker interface {
	IsRejected(fingerprint string) (bool, error)
}

// Filter drops any cycle whose fingerprint is on an active cooldown.
func Filter(cycles []cyclefind.Cycle, store CooldownChecker) ([]cyclefind.Cycle, error) {
	var kept []cyclefind.Cycle
	for _, c := range cycles {
		fp := Fingerprint(c)
		rejected, err := store.IsRejected(fp)
		if err != nil {
			return nil, fmt.Errorf("checking cooldown for %s: %w", fp, err)
		}
		if rejected {
			continue
		}
		kept = append(kept, c)
	}
	return kept, nil
}
