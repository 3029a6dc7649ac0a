package capture

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hearme/internal/format"
)

func TestReblockerEmitsCompleteFramesOnly(t *testing.T) {
	r := newReblocker()

	half := make([]float32, format.SamplesPerFrame/2)
	for i := range half {
		half[i] = float32(i)
	}

	frames := r.feed(half)
	require.Empty(t, frames, "half a frame should not emit yet")

	frames = r.feed(half)
	require.Len(t, frames, 1)
	require.Len(t, frames[0], format.SamplesPerFrame)
}

func TestReblockerCarriesRemainderAcrossFeeds(t *testing.T) {
	r := newReblocker()

	oneAndAHalf := make([]float32, format.SamplesPerFrame+format.SamplesPerFrame/2)
	frames := r.feed(oneAndAHalf)
	require.Len(t, frames, 1)

	frames = r.feed(make([]float32, format.SamplesPerFrame/2))
	require.Len(t, frames, 1)
}

func TestNormalizeSourcesDropsEmptyNames(t *testing.T) {
	out := normalizeSources([]Source{
		{ID: "1", Name: "Firefox"},
		{ID: "2", Name: ""},
	})
	require.Len(t, out, 1)
	require.Equal(t, "Firefox", out[0].Name)
}

func TestNormalizeSourcesDedupesCaseInsensitively(t *testing.T) {
	out := normalizeSources([]Source{
		{ID: "1", Name: "Spotify"},
		{ID: "2", Name: "spotify"},
	})
	require.Len(t, out, 1)
	require.Equal(t, "1", out[0].ID, "first occurrence wins")
}

func TestNormalizeSourcesSortsCaseInsensitively(t *testing.T) {
	out := normalizeSources([]Source{
		{ID: "1", Name: "zoom"},
		{ID: "2", Name: "Discord"},
		{ID: "3", Name: "audacity"},
	})
	require.Len(t, out, 3)
	require.Equal(t, []string{"audacity", "Discord", "zoom"}, []string{out[0].Name, out[1].Name, out[2].Name})
}
