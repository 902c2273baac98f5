package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryChallengeStoreRoundTrip(t *testing.T) {
	s := NewMemoryChallengeStore()
	ctx := context.Background()

	ch := Challenge{Phone: "+971521234567", Code: "123456"}
	require.NoError(t, s.Put(ctx, "c1", ch, time.Minute))

	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, ch, got)

	require.NoError(t, s.Delete(ctx, "c1"))
	_, err = s.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestMemoryChallengeStoreExpiry(t *testing.T) {
	s := NewMemoryChallengeStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "c1", Challenge{Phone: "+971521234567", Code: "123456"}, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, err := s.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestMemoryChallengeStoreUnknownID(t *testing.T) {
	s := NewMemoryChallengeStore()
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}
