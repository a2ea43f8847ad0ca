package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBroadcasterWriteBroadcastsAndDropsForSlowSubscribers(t *testing.T) {
	b := newBroadcaster(4)
	fast := make(chan string, 1)
	blocked := make(chan string, 1)
	blocked <- "already-full"
	b.subscribers["fast"] = fast
	b.subscribers["blocked"] = blocked

	n, err := b.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, len("hello"), n)

	assert.Equal(t, "hello", <-fast)
	assert.Equal(t, "already-full", <-blocked)
	assert.Equal(t, 1, b.dropped["blocked"])
	assert.Contains(t, b.GetHistory(), "hello")
}

func TestLogBroadcasterSubscribeReturnsHistory(t *testing.T) {
	b := newBroadcaster(2)
	_, _ = b.Write([]byte("one"))
	_, _ = b.Write([]byte("two"))
	_, _ = b.Write([]byte("three"))

	id, ch, history := b.Subscribe()
	assert.Equal(t, []string{"two", "three"}, history)

	_, _ = b.Write([]byte("four"))
	assert.Equal(t, "four", <-ch)

	assert.Equal(t, 0, b.Unsubscribe(id))
	_, open := <-ch
	assert.False(t, open)
}

func TestLogBroadcasterShutdownClosesSubscribers(t *testing.T) {
	b := newBroadcaster(2)
	_, ch, _ := b.Subscribe()

	b.Shutdown()
	_, open := <-ch
	assert.False(t, open)

	_, late, history := b.Subscribe()
	_, open = <-late
	assert.False(t, open)
	assert.Nil(t, history)
}
