package playback

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingPushPopOrder(t *testing.T) {
	r := newRing(4)
	require.True(t, r.push(1))
	require.True(t, r.push(2))

	v, ok := r.pop()
	require.True(t, ok)
	require.Equal(t, float32(1), v)

	v, ok = r.pop()
	require.True(t, ok)
	require.Equal(t, float32(2), v)
}

func TestRingUnderrunReturnsFalse(t *testing.T) {
	r := newRing(4)
	_, ok := r.pop()
	require.False(t, ok)
}

func TestRingOverrunDropsNewest(t *testing.T) {
	r := newRing(2)
	require.True(t, r.push(1))
	require.True(t, r.push(2))
	require.False(t, r.push(3)) // dropped: ring is full

	v, ok := r.pop()
	require.True(t, ok)
	require.Equal(t, float32(1), v)
}
