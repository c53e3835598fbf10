package decisions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/dagrag/commands"
	"github.com/smallnest/dagrag/dag"
	"github.com/smallnest/dagrag/events"
)

// scriptedResolver resolves each decision id according to a preset map,
// defaulting to timeout for anything unlisted. When ready is set, Await
// blocks until it is closed, so a test can fill in responses after it has
// seen every escalation's decision_required event.
type scriptedResolver struct {
	mu        sync.Mutex
	responses map[string]commands.Command
	awaitOrder []string
	ready     chan struct{}
}

func (s *scriptedResolver) Await(ctx context.Context, decisionID string, timeout time.Duration) (commands.Command, bool) {
	s.mu.Lock()
	s.awaitOrder = append(s.awaitOrder, decisionID)
	s.mu.Unlock()
	if s.ready != nil {
		<-s.ready
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.responses[decisionID]
	return cmd, ok
}

func TestRunEscalationsPublishesAllBeforeAwaitingAny(t *testing.T) {
	stream := events.NewStream()
	ch, unsub := stream.Subscribe()
	defer unsub()

	resolver := &scriptedResolver{responses: map[string]commands.Command{}, ready: make(chan struct{})}
	g := &Gates{Stream: stream, Resolver: resolver, HILTimeout: time.Second}

	pending := []Escalation{
		{TaskID: "task_A", RequestedOperation: "net"},
		{TaskID: "task_B", RequestedOperation: "write"},
	}

	done := make(chan []EscalationResult, 1)
	go func() {
		done <- g.RunEscalations(context.Background(), "w1", 0, pending)
	}()

	var decisionIDs []string
	for i := 0; i < 2; i++ {
		e := <-ch
		require.Equal(t, events.KindDecisionRequired, e.Kind)
		decisionIDs = append(decisionIDs, e.DecisionID)
	}

	resolver.mu.Lock()
	resolver.responses[decisionIDs[0]] = commands.Command{Resolution: "approve"}
	resolver.responses[decisionIDs[1]] = commands.Command{Resolution: "reject"}
	resolver.mu.Unlock()
	close(resolver.ready)

	results := <-done
	require.Len(t, results, 2)
	assert.True(t, results[0].Approved)
	assert.False(t, results[1].Approved)
}

func TestRunEscalationsEmptyReturnsNil(t *testing.T) {
	g := &Gates{Stream: events.NewStream()}
	results := g.RunEscalations(context.Background(), "w1", 0, nil)
	assert.Nil(t, results)
}

func TestClassifySuggestsAlternativeByOperation(t *testing.T) {
	esc := Classify("task_A", &dag.SandboxError{
		Code:               dag.SandboxErrPermissionDenied,
		RequestedOperation: "net",
		CurrentSet:         []string{"read"},
		RequestedSet:       []string{"read", "net"},
	})
	assert.Equal(t, "task_A", esc.TaskID)
	assert.Contains(t, esc.SuggestedAlt, "allow-listed host")
}
