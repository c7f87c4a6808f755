package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLastEventIDReplaysOnlyNewer covers spec scenario S6: publish events
// 1..5, a subscriber connects with Last-Event-ID 3 and must receive 4 and
// 5 from the backlog, then 6 live.
func TestLastEventIDReplaysOnlyNewer(t *testing.T) {
	bus := NewBus(t.TempDir())
	sessionID := "sess-1"

	for i := 0; i < 5; i++ {
		_, err := bus.Publish(sessionID, EventTypeNodeStatus, map[string]any{"n": i})
		require.NoError(t, err)
	}

	backlog, live, unsubscribe, err := bus.Subscribe(sessionID, 3)
	require.NoError(t, err)
	defer unsubscribe()

	require.Len(t, backlog, 2)
	assert.Equal(t, uint64(4), backlog[0].ID)
	assert.Equal(t, uint64(5), backlog[1].ID)

	_, err = bus.Publish(sessionID, EventTypeNodeStatus, map[string]any{"n": 5})
	require.NoError(t, err)

	select {
	case e := <-live:
		assert.Equal(t, uint64(6), e.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestPublishAssignsMonotonicIDsPerSession(t *testing.T) {
	bus := NewBus(t.TempDir())
	a1, err := bus.Publish("a", EventTypeSessionStatus, nil)
	require.NoError(t, err)
	a2, err := bus.Publish("a", EventTypeSessionStatus, nil)
	require.NoError(t, err)
	b1, err := bus.Publish("b", EventTypeSessionStatus, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), a1.ID)
	assert.Equal(t, uint64(2), a2.ID)
	assert.Equal(t, uint64(1), b1.ID, "each session has its own ID sequence")
}

func TestReplayFallsBackToLogWhenRingTruncated(t *testing.T) {
	bus := NewBus(t.TempDir())
	sessionID := "sess-2"
	for i := 0; i < ringCapacity+10; i++ {
		_, err := bus.Publish(sessionID, EventTypeNodeStatus, nil)
		require.NoError(t, err)
	}

	events, err := bus.Replay(sessionID, 0)
	require.NoError(t, err)
	require.Len(t, events, ringCapacity+10, "log fallback must cover everything the ring already evicted")
	assert.Equal(t, uint64(1), events[0].ID)
}

func TestCloseSessionClosesLiveSubscribers(t *testing.T) {
	bus := NewBus(t.TempDir())
	_, err := bus.Publish("sess-3", EventTypeSessionStatus, nil)
	require.NoError(t, err)

	_, live, _, err := bus.Subscribe("sess-3", 0)
	require.NoError(t, err)

	require.NoError(t, bus.CloseSession("sess-3"))

	select {
	case _, ok := <-live:
		assert.False(t, ok, "channel must be closed, not just empty")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestRingSinceReportsTruncation(t *testing.T) {
	r := newRing()
	for i := 1; i <= ringCapacity+5; i++ {
		r.push(Event{ID: uint64(i)})
	}
	events, truncated := r.since(0)
	assert.True(t, truncated)
	assert.Len(t, events, ringCapacity)
	assert.Equal(t, uint64(6), events[0].ID)
}
