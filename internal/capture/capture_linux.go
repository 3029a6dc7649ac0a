//go:build linux

package capture

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"hearme/internal/format"
	"hearme/internal/herr"
)

// ListSources enumerates applications currently producing audio, by
// walking PulseAudio's sink-input list over the native protocol — the
// same jfreymuth/pulse/proto package the teacher already imports for its
// format constants, extended here to its sibling "what's playing" query.
func ListSources() ([]Source, error) {
	client, _, err := proto.Connect("")
	if err != nil {
		return nil, herr.New(herr.Backend, "pulse connect", err)
	}
	defer client.Close()

	var reply proto.GetSinkInputInfoListReply
	if err := client.Request(&proto.GetSinkInputInfoList{}, &reply); err != nil {
		return nil, herr.New(herr.Backend, "pulse list sink inputs", err)
	}

	sources := make([]Source, 0, len(reply))
	for _, info := range reply {
		name := info.Properties.GetString("application.name")
		if name == "" {
			name = info.SinkInputName
		}
		// A sink-input with no application.name and no stream name is
		// dropped from the list rather than reported as "Unknown".
		sources = append(sources, Source{
			ID:   fmt.Sprintf("%d", info.SinkInputIndex),
			Name: name,
		})
	}
	return normalizeSources(sources), nil
}

// pcmCollector implements pulse.Writer, receiving raw S16LE PCM from the
// monitor record stream and converting it to float32 as it arrives.
type pcmCollector struct {
	mu  sync.Mutex
	buf []float32
}

func (p *pcmCollector) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(data) / 2
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
		p.buf = append(p.buf, float32(s)/32768.0)
	}
	return len(data), nil
}

func (p *pcmCollector) Format() byte { return proto.FormatInt16LE }

func (p *pcmCollector) drain() []float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) == 0 {
		return nil
	}
	out := p.buf
	p.buf = nil
	return out
}

// linuxCapture records the monitor of the default sink — the same
// DefaultSink+RecordMonitor approach the teacher's own capture takes. The
// source ID passed to NewCapturer is not used: every stream playing to the
// default sink is captured, not only the selected sink-input. See
// DESIGN.md.
type linuxCapture struct {
	client *pulse.Client
	stream *pulse.RecordStream
}

func NewCapturer(sourceID string) (Capturer, error) {
	client, err := pulse.NewClient(pulse.ClientApplicationName("hearme"))
	if err != nil {
		return nil, herr.New(herr.Backend, "pulse connect", err)
	}
	return &linuxCapture{client: client}, nil
}

func (c *linuxCapture) Run(frames chan<- Frame, stop <-chan struct{}) {
	collector := &pcmCollector{}

	sink, err := c.client.DefaultSink()
	if err != nil {
		log.Printf("capture: pulse default sink: %v", err)
		return
	}

	stream, err := c.client.NewRecord(
		collector,
		pulse.RecordMonitor(sink),
		pulse.RecordStereo,
		pulse.RecordSampleRate(format.SampleRate),
		pulse.RecordBufferFragmentSize(uint32(format.SamplesPerFrame*2)),
	)
	if err != nil {
		log.Printf("capture: pulse record stream: %v", err)
		return
	}
	c.stream = stream
	stream.Start()

	rb := newReblocker()
	ticker := time.NewTicker(format.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			samples := collector.drain()
			if samples == nil {
				continue
			}

			for _, pcm := range rb.feed(samples) {
				select {
				case frames <- Frame{PCM: pcm}:
				default:
				}
			}
		}
	}
}

func (c *linuxCapture) Close() {
	if c.stream != nil {
		c.stream.Stop()
	}
	c.client.Close()
}
