// Package playback drives the system's default output device with decoded
// PCM handed to it by the Listener's decode task, via a lock-free ring
// buffer bridging the async decode task and the OS audio callback.
package playback

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"hearme/internal/format"
)

const ringCapacity = format.SampleRate * format.Channels / 5 // ~200ms

// Stream owns the output device and the ring buffer feeding it. Producer
// access is handed out exactly once via TakeProducer.
type Stream struct {
	paStream *portaudio.Stream
	ring     *ring

	mu     sync.Mutex
	taken  bool
}

// Start opens the default output device at the canonical sample rate and
// channel count and begins playback immediately; silence plays until the
// producer starts feeding samples.
func Start() (*Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("playback: portaudio init: %w", err)
	}

	s := &Stream{ring: newRing(ringCapacity)}

	host, err := portaudio.DefaultHostApi()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("playback: default host api: %w", err)
	}
	if host.DefaultOutputDevice == nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("playback: no default output device")
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   host.DefaultOutputDevice,
			Channels: format.Channels,
			Latency:  host.DefaultOutputDevice.DefaultLowOutputLatency,
		},
		SampleRate:      float64(format.SampleRate),
		FramesPerBuffer: portaudio.FramesPerBufferUseDefault,
	}

	stream, err := portaudio.OpenStream(params, s.callback)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("playback: open stream: %w", err)
	}
	s.paStream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("playback: start stream: %w", err)
	}

	return s, nil
}

// callback runs on the OS audio thread: it must never block or allocate.
// Underrun substitutes equilibrium (silence) for missing samples.
func (s *Stream) callback(out []float32) {
	for i := range out {
		if v, ok := s.ring.pop(); ok {
			out[i] = v
		} else {
			out[i] = 0 // equilibrium
		}
	}
}

// TakeProducer hands out the sole Producer for this stream. Calling it a
// second time is a contract violation — there is exactly one decode task
// per listen session.
func (s *Stream) TakeProducer() *Producer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taken {
		panic("playback: producer already taken")
	}
	s.taken = true
	return &Producer{ring: s.ring}
}

// Close stops playback and releases the device.
func (s *Stream) Close() {
	if s.paStream != nil {
		s.paStream.Stop()
		s.paStream.Close()
	}
	portaudio.Terminate()
}

// Producer is the decode task's handle for pushing decoded samples onto
// the ring buffer. Pushes never block; a full ring drops the newest
// sample, matching the canonical overrun policy.
type Producer struct {
	ring *ring
}

// Push enqueues one frame's worth of samples, sample by sample, each
// individually subject to the ring's drop-on-overrun policy.
func (p *Producer) Push(pcm []float32) {
	for _, v := range pcm {
		p.ring.push(v)
	}
}
