// Package codec wraps the Opus encoder/decoder behind the PCM frame
// contract defined in internal/format.
package codec

import (
	"fmt"
	"log"

	"github.com/hraban/opus"

	"hearme/internal/format"
)

// Encoder turns one canonical PCM frame into an Opus packet.
type Encoder struct {
	inner *opus.Encoder
	buf   []byte
}

func NewEncoder() (*Encoder, error) {
	enc, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	if err := enc.SetBitrate(64000); err != nil {
		return nil, fmt.Errorf("opus set bitrate: %w", err)
	}
	return &Encoder{inner: enc, buf: make([]byte, format.MaxPacketSize)}, nil
}

// Encode panics if pcm is not exactly one canonical frame — a frame-length
// mismatch here is a programmer error, not a runtime condition.
func (e *Encoder) Encode(pcm []float32) ([]byte, error) {
	format.ValidateFrame(pcm)

	n, err := e.inner.EncodeFloat32(pcm, e.buf)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}

	out := make([]byte, n)
	copy(out, e.buf[:n])
	return out, nil
}

// Decoder turns Opus packets back into canonical PCM frames. Decode errors
// are recoverable: the caller should log and skip rather than reset the
// decoder's internal state.
type Decoder struct {
	inner *opus.Decoder
	buf   []float32
}

func NewDecoder() (*Decoder, error) {
	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("opus decoder: %w", err)
	}
	return &Decoder{inner: dec, buf: make([]float32, format.SamplesPerFrame)}, nil
}

func (d *Decoder) Decode(packet []byte) ([]float32, error) {
	n, err := d.inner.DecodeFloat32(packet, d.buf)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}

	samples := n * format.Channels
	if samples != format.SamplesPerFrame {
		log.Printf("codec: decoded %d samples, expected %d; padding/truncating", samples, format.SamplesPerFrame)
	}

	out := make([]float32, format.SamplesPerFrame)
	copy(out, d.buf[:samples])
	return out, nil
}
