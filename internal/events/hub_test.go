package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscriber(t *testing.T) {
	h := NewHub(4)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(ChainStarted, ChainPayload{RunID: "r1", Entry: "source"})

	select {
	case ev := <-ch:
		assert.Equal(t, ChainStarted, ev.Type)
		var p ChainPayload
		require.NoError(t, ev.Decode(&p))
		assert.Equal(t, "source", p.Entry)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestRingBufferKeepsNewest(t *testing.T) {
	h := NewHub(2)
	h.Publish("a", nil)
	h.Publish("b", nil)
	h.Publish("c", nil)

	all := h.SnapshotSince(0)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].Type)
	assert.Equal(t, "c", all[1].Type)

	since := h.SnapshotSince(all[0].ID)
	require.Len(t, since, 1)
	assert.Equal(t, "c", since[0].Type)
	assert.JSONEq(t, `{}`, string(since[0].Data))
}

func TestCancelClosesChannel(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	h.Publish("after", nil)
}

func TestSubscribeFiltersByPrefix(t *testing.T) {
	h := NewHub(8)
	ch, cancel := h.Subscribe("chain.")
	defer cancel()

	h.Publish(RunStarted, RunPayload{RunID: "r1"})
	h.Publish(ChainStarted, ChainPayload{RunID: "r1", Entry: "source"})

	ev := <-ch
	assert.Equal(t, ChainStarted, ev.Type)
	assert.Len(t, ch, 0)
	assert.True(t, ev.Matches(nil))
	assert.False(t, ev.Matches([]string{"run."}))
}

func TestFullSubscriberCountsDrops(t *testing.T) {
	h := NewHub(4)
	_, cancel := h.Subscribe()
	defer cancel()

	for i := 0; i < 130; i++ {
		h.Publish(ChainCompleted, nil)
	}
	assert.Equal(t, int64(2), h.Dropped())
	assert.Len(t, h.SnapshotSince(0), 4)
}

func TestNilHubDropsEvents(t *testing.T) {
	var h *Hub
	h.Publish(RunStarted, RunPayload{RunID: "x"})
}
