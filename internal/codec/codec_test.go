package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"hearme/internal/format"
)

func TestEncodeDecodeRoundTripSilence(t *testing.T) {
	enc, err := NewEncoder()
	require.NoError(t, err)
	dec, err := NewDecoder()
	require.NoError(t, err)

	pcm := make([]float32, format.SamplesPerFrame)

	packet, err := enc.Encode(pcm)
	require.NoError(t, err)
	require.NotEmpty(t, packet)
	require.Less(t, len(packet), format.SamplesPerFrame*4)

	out, err := dec.Decode(packet)
	require.NoError(t, err)
	for _, s := range out {
		require.Less(t, math.Abs(float64(s)), 0.01)
	}
}

func TestEncodeDecodeRoundTripSine(t *testing.T) {
	enc, err := NewEncoder()
	require.NoError(t, err)
	dec, err := NewDecoder()
	require.NoError(t, err)

	pcm := make([]float32, format.SamplesPerFrame)
	const freq = 440.0
	for i := 0; i < format.FrameSize; i++ {
		v := float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(format.SampleRate)))
		pcm[i*format.Channels] = v
		pcm[i*format.Channels+1] = v
	}

	packet, err := enc.Encode(pcm)
	require.NoError(t, err)

	out, err := dec.Decode(packet)
	require.NoError(t, err)

	var energy float64
	for _, s := range out {
		energy += float64(s) * float64(s)
	}
	require.Greater(t, energy, 1.0)
}

func TestEncodeRejectsWrongFrameSize(t *testing.T) {
	enc, err := NewEncoder()
	require.NoError(t, err)

	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic on wrong frame size")
	}()
	_, _ = enc.Encode(make([]float32, format.SamplesPerFrame-1))
}

func TestMultipleFramesEncodeDecode(t *testing.T) {
	enc, err := NewEncoder()
	require.NoError(t, err)
	dec, err := NewDecoder()
	require.NoError(t, err)

	pcm := make([]float32, format.SamplesPerFrame)
	for i := 0; i < 10; i++ {
		packet, err := enc.Encode(pcm)
		require.NoError(t, err)
		_, err = dec.Decode(packet)
		require.NoError(t, err)
	}
}
