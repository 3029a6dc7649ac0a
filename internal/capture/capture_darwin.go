//go:build darwin

package capture

/*
#cgo CFLAGS: -mmacosx-version-min=13.0 -fobjc-arc
#cgo LDFLAGS: -framework ScreenCaptureKit -framework CoreMedia -framework CoreAudio -framework Foundation

#include <stdint.h>
#include <stdlib.h>

typedef struct {
	void *stream;
	void *delegate;
	void *filter;
} HearmeAudioHandle;

typedef struct {
	uint32_t app_pid;
	char     bundle_id[256];
	char     name[256];
} HearmeAppSource;

int hearme_audio_list_sources(HearmeAppSource *out, int max, int *count);
int hearme_audio_start(uint32_t app_pid, HearmeAudioHandle *out);
int hearme_audio_read_frame(HearmeAudioHandle *h, float *dst, int samples_per_channel);
void hearme_audio_stop(HearmeAudioHandle *h);
*/
import "C"

import (
	"fmt"
	"log"
	"time"
	"unsafe"

	"hearme/internal/format"
	"hearme/internal/herr"
)

// ListSources enumerates applications with an active ScreenCaptureKit
// shareable-content entry (any running app is a candidate; SCStream only
// reports audio from apps that are actually producing it once capture
// starts). Mirrors original_source's SCShareableContent-based enumeration.
func ListSources() ([]Source, error) {
	const max = 64
	buf := make([]C.HearmeAppSource, max)
	var count C.int

	if ret := C.hearme_audio_list_sources(&buf[0], C.int(max), &count); ret != 0 {
		return nil, herr.New(herr.Backend, "screencapturekit list sources", fmt.Errorf("error %d", ret))
	}

	sources := make([]Source, 0, int(count))
	for i := 0; i < int(count); i++ {
		s := buf[i]
		// An entry with no resolvable app name is dropped from the list
		// rather than reported under a placeholder name.
		sources = append(sources, Source{
			ID:   fmt.Sprintf("%d", uint32(s.app_pid)),
			Name: C.GoString(&s.name[0]),
		})
	}
	return normalizeSources(sources), nil
}

type darwinCapture struct {
	handle C.HearmeAudioHandle
	pid    uint32
}

func NewCapturer(sourceID string) (Capturer, error) {
	var pid uint32
	if _, err := fmt.Sscanf(sourceID, "%d", &pid); err != nil {
		return nil, herr.New(herr.NoDevice, "parse source id", err)
	}
	return &darwinCapture{pid: pid}, nil
}

func (c *darwinCapture) Run(frames chan<- Frame, stop <-chan struct{}) {
	if ret := C.hearme_audio_start(C.uint32_t(c.pid), &c.handle); ret != 0 {
		log.Printf("capture: screencapturekit start failed for pid %d (err %d)", c.pid, int(ret))
		return
	}

	pcmBuf := make([]float32, format.SamplesPerFrame)
	ticker := time.NewTicker(format.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ret := C.hearme_audio_read_frame(&c.handle, (*C.float)(unsafe.Pointer(&pcmBuf[0])), C.int(format.FrameSize))
			if ret != 0 {
				continue // no frame ready yet
			}

			frame := make([]float32, format.SamplesPerFrame)
			copy(frame, pcmBuf)

			select {
			case frames <- Frame{PCM: frame}:
			default:
			}
		}
	}
}

func (c *darwinCapture) Close() {
	C.hearme_audio_stop(&c.handle)
}
