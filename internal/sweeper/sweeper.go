// Package sweeper runs the periodic background loop that expires chain
// proposals past their deadline, mirroring the status-ticker pattern
// the daemon uses for its periodic active-chains log.
package sweeper

import (
	"context"
	"time"

	"github.com/barterchain/chainengine/internal/chainstore"
	"github.com/barterchain/chainengine/internal/lifecycle"
	"github.com/barterchain/chainengine/pkg/logging"
)

// Sweeper periodically scans for non-terminal proposals past their
// expiry and drives them through Coordinator.Expire.
type Sweeper struct {
	store    *chainstore.Store
	coord    *lifecycle.Coordinator
	interval time.Duration
	log      *logging.Logger
}

// New constructs a Sweeper. interval is how often a sweep runs.
func New(store *chainstore.Store, coord *lifecycle.Coordinator, interval time.Duration) *Sweeper {
	return &Sweeper{store: store, coord: coord, interval: interval, log: logging.GetDefault().Component("sweeper")}
}

// Run blocks, sweeping on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Sweeper) sweepOnce() {
	proposals, err := s.store.GetProposalsPastExpiry(time.Now())
	if err != nil {
		s.log.Error("failed to load expired proposals", "err", err)
		return
	}
	for _, p := range proposals {
		if err := s.coord.Expire(p.ID); err != nil {
			s.log.Error("failed to expire proposal", "chain", p.ID, "err", err)
		}
	}
	if len(proposals) > 0 {
		s.log.Info("swept expired proposals", "count", len(proposals))
	}
}
