package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	SessionID string `json:"session_id"`
	Count     int    `json:"count"`
}

func TestMessageRoundTrip(t *testing.T) {
	msg, err := NewMessage(TypeCheckin, payload{SessionID: "s1", Count: 2})
	require.NoError(t, err)
	assert.Equal(t, TypeCheckin, msg.Type)

	var got payload
	require.NoError(t, msg.Decode(&got))
	assert.Equal(t, payload{SessionID: "s1", Count: 2}, got)

	assert.Error(t, Message{Type: TypeCheckin}.Decode(&got))
}

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	out, err := q.Consume(ctx)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		msg, err := NewMessage(TypeCheckin, payload{Count: i})
		require.NoError(t, err)
		require.NoError(t, q.Publish(ctx, msg))
	}
	for i := 0; i < 3; i++ {
		select {
		case msg := <-out:
			var p payload
			require.NoError(t, msg.Decode(&p))
			assert.Equal(t, i, p.Count)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}

	cancel()
	select {
	case _, ok := <-out:
		assert.False(t, ok, "channel closes after cancel")
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "b"}), context.DeadlineExceeded)
}

func TestNewFallsBackToMemory(t *testing.T) {
	_, ok := New("redis", nil).(*InMemory)
	assert.True(t, ok)
	_, ok = New("memory", nil).(*InMemory)
	assert.True(t, ok)
}
