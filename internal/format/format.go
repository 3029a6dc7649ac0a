// Package format defines the canonical PCM frame contract shared by
// capture, codec, transport and playback.
package format

import (
	"fmt"
	"time"
)

const (
	SampleRate      = 48000
	Channels        = 2
	FrameDuration   = 20 * time.Millisecond
	FrameSize       = SampleRate * int(FrameDuration/time.Millisecond) / 1000 // 960 samples/channel
	SamplesPerFrame = FrameSize * Channels                                   // 1920 interleaved samples
	MaxPacketSize   = 4000
)

// ValidateFrame panics if pcm is not exactly one canonical frame. Callers
// that receive frames from anywhere other than the reblocker (programmer
// error, not a runtime condition) must call this before encoding.
func ValidateFrame(pcm []float32) {
	if len(pcm) != SamplesPerFrame {
		panic(fmt.Sprintf("format: expected %d samples per frame, got %d", SamplesPerFrame, len(pcm)))
	}
}
