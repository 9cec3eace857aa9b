package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func TestSubjectSubscribeReceivesCurrentValue(t *testing.T) {
	s := NewSubject(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	assert.Equal(t, 1, receive(t, ch))

	s.Publish(2)
	assert.Equal(t, 2, receive(t, ch))
	assert.Equal(t, 2, s.Value())
}

func TestSubjectLatestWins(t *testing.T) {
	s := NewSubject(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	for i := 1; i <= 10; i++ {
		s.Publish(i)
	}

	assert.Equal(t, 10, receive(t, ch))
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}

func TestSubjectClosesOnCancel(t *testing.T) {
	s := NewSubject("a")
	ctx, cancel := context.WithCancel(context.Background())

	ch := s.Subscribe(ctx)
	_ = receive(t, ch)
	require.Equal(t, 1, s.Subscribers())

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, s.Subscribers())

	// publishing after teardown must not panic
	s.Publish("b")
}
