package scheduler

import (
	"context"
	"time"

	"github.com/smallnest/dagrag/commands"
)

// pollInterval is how often queueResolver re-drains the command queue while
// awaiting a specific decision. Short enough to keep the <10ms injection
// latency budget from spec §4.2 from compounding into visible lag.
const pollInterval = 20 * time.Millisecond

// queueResolver implements decisions.Resolver on top of a commands.Queue.
// Draining is the queue's only consumption mechanism (spec §4.2 "FIFO,
// many-producer, single-consumer"), so Await drains repeatedly, holds onto
// any command it wasn't looking for, and re-enqueues it before returning so
// the next drain point (or the next Await) still observes it in order.
type queueResolver struct {
	queue *commands.Queue
}

func newQueueResolver(queue *commands.Queue) *queueResolver {
	return &queueResolver{queue: queue}
}

func (r *queueResolver) Await(ctx context.Context, decisionID string, timeout time.Duration) (commands.Command, bool) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var found *commands.Command
		for _, cmd := range r.queue.Drain() {
			if found == nil && cmd.Kind == commands.KindResolveDecision && cmd.DecisionID == decisionID {
				matched := cmd
				found = &matched
				continue
			}
			// Not the decision we're waiting on (or not a decision at all):
			// put it back so it's still visible at the next drain point.
			_ = r.queue.Enqueue(cmd)
		}
		if found != nil {
			return *found, true
		}

		if time.Now().After(deadline) {
			return commands.Command{}, false
		}

		select {
		case <-ctx.Done():
			return commands.Command{}, false
		case <-ticker.C:
		}
	}
}
