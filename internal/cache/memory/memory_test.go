package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPatternSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewBus(0)

	all, err := b.Subscribe(ctx, "ev:*")
	require.NoError(t, err)
	one, err := b.Subscribe(ctx, "ev:order_filled")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "ev:project_created", []byte("p")))
	require.NoError(t, b.Publish(ctx, "ev:order_filled", []byte("f")))
	require.NoError(t, b.Publish(ctx, "other", []byte("x")))

	assert.Equal(t, []byte("p"), <-all)
	assert.Equal(t, []byte("f"), <-all)
	assert.Equal(t, []byte("f"), <-one)
	assert.Empty(t, all)

	cancel()
	select {
	case _, open := <-one:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestBusStreamTrimAndRead(t *testing.T) {
	ctx := context.Background()
	b := NewBus(2)
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, b.StreamAppend(ctx, "events", []byte(p)))
	}

	msgs, err := b.StreamRead(ctx, "events", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", string(msgs[0].Payload))
	assert.Equal(t, "c", string(msgs[1].Payload))

	rest, err := b.StreamRead(ctx, "events", msgs[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", string(rest[0].Payload))

	_, err = b.StreamRead(ctx, "events", "bogus", 1)
	require.Error(t, err)
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	rl := NewRateLimiter()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "1.2.3.4", 3, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "1.2.3.4", 3, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	// Keys are independent.
	ok, err = rl.Allow(ctx, "5.6.7.8", 3, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rl.Allow(ctx, "any", 0, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReplayGuard(t *testing.T) {
	ctx := context.Background()
	g := NewReplayGuard()

	ok, err := g.Claim(ctx, "sig-a", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = g.Claim(ctx, "sig-a", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = g.Claim(ctx, "sig-b", 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)
	time.Sleep(50 * time.Millisecond)
	ok, err = g.Claim(ctx, "sig-b", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "expired keys can be claimed again")
}
