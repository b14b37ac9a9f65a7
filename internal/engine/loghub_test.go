package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(msg string) LogLine {
	return LogLine{Level: "INFO", Message: msg, Timestamp: time.Now().UTC()}
}

func drain(t *testing.T, ch <-chan LogLine, n int) []LogLine {
	t.Helper()
	out := make([]LogLine, 0, n)
	for i := 0; i < n; i++ {
		select {
		case l, ok := <-ch:
			require.True(t, ok, "channel closed after %d lines", i)
			out = append(out, l)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for line %d", i)
		}
	}
	return out
}

func TestLogHub_BacklogThenLive(t *testing.T) {
	hub := NewLogHub(time.Minute)
	defer hub.Close()

	hub.Append("WE_1", line("first"))
	hub.Append("WE_1", line("second"))

	ch, cancel := hub.Subscribe("WE_1")
	defer cancel()

	// Backlog is replayed in order before live lines.
	got := drain(t, ch, 2)
	assert.Equal(t, "first", got[0].Message)
	assert.Equal(t, "second", got[1].Message)

	hub.Append("WE_1", line("third"))
	got = drain(t, ch, 1)
	assert.Equal(t, "third", got[0].Message)
}

func TestLogHub_CompleteClosesSubscribers(t *testing.T) {
	hub := NewLogHub(time.Minute)
	defer hub.Close()

	hub.Append("WE_1", line("only"))
	ch, cancel := hub.Subscribe("WE_1")
	defer cancel()

	hub.Complete("WE_1")

	got := drain(t, ch, 1)
	assert.Equal(t, "only", got[0].Message)
	_, open := <-ch
	assert.False(t, open)
}

func TestLogHub_SubscribeAfterComplete(t *testing.T) {
	hub := NewLogHub(time.Minute)
	defer hub.Close()

	hub.Append("WE_1", line("a"))
	hub.Append("WE_1", line("b"))
	hub.Complete("WE_1")

	// A late subscriber still gets the retained backlog, then a closed
	// channel.
	ch, cancel := hub.Subscribe("WE_1")
	defer cancel()
	got := drain(t, ch, 2)
	assert.Equal(t, "a", got[0].Message)
	assert.Equal(t, "b", got[1].Message)
	_, open := <-ch
	assert.False(t, open)
}

func TestLogHub_AppendAfterCompleteDropped(t *testing.T) {
	hub := NewLogHub(time.Minute)
	defer hub.Close()

	hub.Append("WE_1", line("kept"))
	hub.Complete("WE_1")
	hub.Append("WE_1", line("dropped"))

	assert.Len(t, hub.Backlog("WE_1"), 1)
}

func TestLogHub_EvictionAfterRetention(t *testing.T) {
	hub := NewLogHub(20 * time.Millisecond)
	defer hub.Close()

	hub.Append("WE_1", line("gone soon"))
	hub.Complete("WE_1")

	require.Eventually(t, func() bool {
		return hub.Backlog("WE_1") == nil
	}, time.Second, 5*time.Millisecond)
}

func TestLogHub_CancelDetaches(t *testing.T) {
	hub := NewLogHub(time.Minute)
	defer hub.Close()

	ch, cancel := hub.Subscribe("WE_1")
	cancel()

	hub.Append("WE_1", line("after cancel"))
	select {
	case _, ok := <-ch:
		// The channel may deliver nothing; it must not deliver the line.
		assert.False(t, ok)
	default:
	}
}

func TestLogHub_IndependentStreams(t *testing.T) {
	hub := NewLogHub(time.Minute)
	defer hub.Close()

	hub.Append("WE_1", line("one"))
	hub.Append("WE_2", line("two"))

	assert.Len(t, hub.Backlog("WE_1"), 1)
	assert.Len(t, hub.Backlog("WE_2"), 1)
	assert.Equal(t, "one", hub.Backlog("WE_1")[0].Message)
}
