package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBroker(nil)
	ch1, cancel1 := b.Subscribe("s1")
	ch2, cancel2 := b.Subscribe("s1")
	defer cancel1()
	defer cancel2()

	b.Publish("s1", EventTypeStatus, "reasoning")

	for _, ch := range []<-chan Event{ch1, ch2} {
		ev := <-ch
		assert.Equal(t, EventTypeStatus, ev.Type)
		assert.Equal(t, "s1", ev.SessionID)
		assert.Equal(t, "reasoning", ev.Data)
	}
}

func TestPublishIsolatedPerSession(t *testing.T) {
	b := NewBroker(nil)
	ch, cancel := b.Subscribe("s1")
	defer cancel()

	b.Publish("s2", EventTypeToken, "x")
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestCancelClosesChannelAndIsIdempotent(t *testing.T) {
	b := NewBroker(nil)
	ch, cancel := b.Subscribe("s1")
	require.Equal(t, 1, b.SubscriberCount("s1"))

	cancel()
	cancel()
	assert.Equal(t, 0, b.SubscriberCount("s1"))
	_, open := <-ch
	assert.False(t, open)

	// Publishing to a session with no subscribers is a no-op.
	b.Publish("s1", EventTypeDone, nil)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroker(nil)
	ch, cancel := b.Subscribe("s1")
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish("s1", EventTypeToken, i)
	}
	assert.Len(t, ch, subscriberBuffer)
}
