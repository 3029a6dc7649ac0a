// Package capture enumerates per-application audio sources and captures
// one application's output as canonical PCM frames, dispatching to a
// platform-specific backend.
package capture

import (
	"sort"
	"strings"

	"hearme/internal/format"
)

// FrameChannelCapacity is the depth of the channel a Capturer delivers
// frames on — 64 frames (~1.3s at 20ms/frame) of backlog before a slow
// consumer starts losing frames.
const FrameChannelCapacity = 64

// Source identifies one capturable application audio stream.
type Source struct {
	ID   string
	Name string
}

// normalizeSources drops entries with an empty name, de-duplicates by
// name (first ID seen for a name wins), and sorts case-insensitively —
// the public list_audio_sources contract every backend must honor.
func normalizeSources(sources []Source) []Source {
	seen := make(map[string]bool, len(sources))
	out := make([]Source, 0, len(sources))

	for _, s := range sources {
		if s.Name == "" {
			continue
		}
		key := strings.ToLower(s.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Frame is one canonical 20ms PCM frame, ready for the encoder.
type Frame struct {
	PCM []float32
}

// Capturer streams canonical frames from one application's audio output.
// Run returns once stop is closed, or early if the backend fails to start;
// Close releases the backend's OS resources.
type Capturer interface {
	// Run delivers frames on frames until stop is closed. Sends are
	// non-blocking: a full channel drops the frame rather than stalling
	// the backend's OS-level callback or read loop.
	Run(frames chan<- Frame, stop <-chan struct{})
	Close()
}

// reblocker accumulates arbitrarily-sized PCM deliveries from an OS audio
// API into fixed SamplesPerFrame chunks. Not safe for concurrent use by
// more than one producer — each capture stream owns its own reblocker.
type reblocker struct {
	acc []float32
}

func newReblocker() *reblocker {
	return &reblocker{acc: make([]float32, 0, format.SamplesPerFrame*2)}
}

// feed appends newly captured samples and returns every complete canonical
// frame that can now be drained, leaving any remainder buffered.
func (r *reblocker) feed(samples []float32) [][]float32 {
	r.acc = append(r.acc, samples...)

	var frames [][]float32
	for len(r.acc) >= format.SamplesPerFrame {
		frame := make([]float32, format.SamplesPerFrame)
		copy(frame, r.acc[:format.SamplesPerFrame])
		frames = append(frames, frame)
		r.acc = r.acc[format.SamplesPerFrame:]
	}
	return frames
}
