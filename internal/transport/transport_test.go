package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestALPNIsHearmeAudio1(t *testing.T) {
	require.Equal(t, "/hearme/audio/1", ALPN)
}

func TestWriteReadFramedRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	packet := []byte{1, 2, 3, 4, 5}

	require.NoError(t, writeFramed(&buf, packet))

	got, err := readFramed(&buf)
	require.NoError(t, err)
	require.Equal(t, packet, got)
}

func TestReadFramedRejectsZeroLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0})

	_, err := readFramed(&buf)
	require.Error(t, err)
}

func TestWriteFramedRejectsOversizePacket(t *testing.T) {
	var buf bytes.Buffer
	err := writeFramed(&buf, make([]byte, 0x10000))
	require.Error(t, err)
}
