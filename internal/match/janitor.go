package match

import (
	"context"
	"log"
	"time"

	"github.com/mingle/matchd/internal/metrics"
	"github.com/mingle/matchd/internal/store"
)

const janitorInterval = 5 * time.Second

// StartJanitor runs a background loop that prunes queue entries whose
// seeking state has expired and keeps the queue-size gauge current. The
// orchestrator prunes stale entries it encounters during scans; the
// janitor covers quiet periods with no scans at all.
func StartJanitor(ctx context.Context, st *store.Store) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[janitor] stopped")
			return
		case <-ticker.C:
			sweep(ctx, st)
		}
	}
}

func sweep(ctx context.Context, st *store.Store) {
	members, err := st.QueueMembers(ctx)
	if err != nil {
		log.Printf("[janitor] read queue: %v", err)
		return
	}

	var stale []int64
	for _, id := range members {
		ok, err := st.IsSeeking(ctx, id)
		if err != nil {
			continue
		}
		if !ok {
			stale = append(stale, id)
		}
	}

	if len(stale) > 0 {
		if err := st.DequeueMany(ctx, stale); err != nil {
			log.Printf("[janitor] prune: %v", err)
		} else {
			log.Printf("[janitor] pruned %d stale queue entries", len(stale))
		}
	}

	metrics.QueueSize.Set(float64(len(members) - len(stale)))
}
