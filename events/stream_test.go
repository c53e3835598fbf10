package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInOrder(t *testing.T) {
	s := NewStream()
	ch, unsub := s.Subscribe()
	defer unsub()

	go func() {
		s.Publish(Event{Kind: KindWorkflowStarted, WorkflowID: "w1"})
		s.Publish(Event{Kind: KindLayerStarted, WorkflowID: "w1", LayerIndex: 0})
		s.Publish(Event{Kind: KindLayerCompleted, WorkflowID: "w1", LayerIndex: 0})
	}()

	var got []Kind
	for i := 0; i < 3; i++ {
		select {
		case e := <-ch:
			got = append(got, e.Kind)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	assert.Equal(t, []Kind{KindWorkflowStarted, KindLayerStarted, KindLayerCompleted}, got)
}

func TestPublishAssignsMonotonicSequence(t *testing.T) {
	s := NewStream()
	ch, unsub := s.Subscribe()
	defer unsub()

	go func() {
		s.Publish(Event{Kind: KindTaskStarted})
		s.Publish(Event{Kind: KindTaskCompleted})
	}()

	e1 := <-ch
	e2 := <-ch
	assert.Less(t, e1.Sequence, e2.Sequence)
}

func TestMultipleSubscribersEachReceiveEveryEvent(t *testing.T) {
	s := NewStream()
	chA, unsubA := s.Subscribe()
	chB, unsubB := s.Subscribe()
	defer unsubA()
	defer unsubB()

	go s.Publish(Event{Kind: KindWorkflowCompleted})

	for _, ch := range []<-chan Event{chA, chB} {
		select {
		case e := <-ch:
			assert.Equal(t, KindWorkflowCompleted, e.Kind)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestCloseClosesAllSubscriberChannels(t *testing.T) {
	s := NewStream()
	ch, _ := s.Subscribe()
	s.Close()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	s := NewStream()
	s.Close()
	ch, _ := s.Subscribe()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestPublishAfterClosePanics(t *testing.T) {
	s := NewStream()
	s.Close()
	assert.Panics(t, func() { s.Publish(Event{Kind: KindTaskStarted}) })
}

func TestCloseTwicePanics(t *testing.T) {
	s := NewStream()
	s.Close()
	assert.Panics(t, func() { s.Close() })
}

func TestUnsubscribeStopsDeliveryWithoutBlockingPublish(t *testing.T) {
	s := NewStream()
	ch, unsub := s.Subscribe()
	unsub()

	done := make(chan struct{})
	go func() {
		s.Publish(Event{Kind: KindTaskStarted})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked after unsubscribe")
	}

	_, ok := <-ch
	assert.False(t, ok)
}

func TestNewStreamHasNoSubscribersByDefault(t *testing.T) {
	s := NewStream()
	require.NotNil(t, s)
	// Publishing with zero subscribers must not block or panic.
	s.Publish(Event{Kind: KindWorkflowStarted})
}
