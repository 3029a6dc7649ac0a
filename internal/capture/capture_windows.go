//go:build windows

package capture

import (
	"fmt"
	"log"
	"runtime"
	"strings"
	"time"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"github.com/moutend/go-wca/pkg/wca"
	"github.com/shirou/gopsutil/v4/process"

	"hearme/internal/format"
	"hearme/internal/herr"
)

// ListSources enumerates processes that own an audio session on the
// default render device, via IAudioSessionManager2/IAudioSessionEnumerator —
// the session-enumeration variant (see DESIGN.md's Open Question
// resolution), not a raw process table walk. Sessions are not filtered by
// state, so a process whose session is currently inactive is listed too.
// PID 0 (the system sounds session) is excluded.
func ListSources() ([]Source, error) {
	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		return nil, herr.New(herr.Backend, "com init", err)
	}
	defer ole.CoUninitialize()

	var enumerator *wca.IMMDeviceEnumerator
	if err := wca.CoCreateInstance(
		wca.CLSID_MMDeviceEnumerator, 0, wca.CLSCTX_ALL,
		wca.IID_IMMDeviceEnumerator, &enumerator,
	); err != nil {
		return nil, herr.New(herr.Backend, "create device enumerator", err)
	}
	defer enumerator.Release()

	var device *wca.IMMDevice
	if err := enumerator.GetDefaultAudioEndpoint(wca.ERender, wca.EConsole, &device); err != nil {
		return nil, herr.New(herr.NoDevice, "default render endpoint", err)
	}
	defer device.Release()

	var sessionManager *wca.IAudioSessionManager2
	if err := device.Activate(wca.IID_IAudioSessionManager2, wca.CLSCTX_ALL, nil, &sessionManager); err != nil {
		return nil, herr.New(herr.Backend, "activate session manager", err)
	}
	defer sessionManager.Release()

	var sessionEnum *wca.IAudioSessionEnumerator
	if err := sessionManager.GetSessionEnumerator(&sessionEnum); err != nil {
		return nil, herr.New(herr.Backend, "get session enumerator", err)
	}
	defer sessionEnum.Release()

	var count int
	if err := sessionEnum.GetCount(&count); err != nil {
		return nil, herr.New(herr.Backend, "session count", err)
	}

	var sources []Source
	seen := make(map[uint32]bool)

	for i := 0; i < count; i++ {
		var ctl *wca.IAudioSessionControl
		if err := sessionEnum.GetSession(i, &ctl); err != nil {
			continue
		}

		var ctl2 *wca.IAudioSessionControl2
		if err := ctl.QueryInterface(wca.IID_IAudioSessionControl2, &ctl2); err == nil {
			var pid uint32
			if err := ctl2.GetProcessId(&pid); err == nil && pid != 0 && !seen[pid] {
				seen[pid] = true
				name := processName(pid)
				if name != "" && !strings.EqualFold(name, "idle") {
					sources = append(sources, Source{ID: fmt.Sprintf("%d", pid), Name: name})
				}
			}
			ctl2.Release()
		}
		ctl.Release()
	}

	return normalizeSources(sources), nil
}

func processName(pid uint32) string {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return ""
	}
	name, err := p.Name()
	if err != nil {
		return ""
	}
	return name
}

// windowsCapture captures one process's audio via WASAPI process-loopback
// capture, running entirely on a dedicated OS thread in event-driven
// shared mode — the async runtime never touches this thread directly.
type windowsCapture struct {
	pid uint32
}

func NewCapturer(sourceID string) (Capturer, error) {
	var pid uint32
	if _, err := fmt.Sscanf(sourceID, "%d", &pid); err != nil {
		return nil, herr.New(herr.NoDevice, "parse source id", err)
	}
	return &windowsCapture{pid: pid}, nil
}

func (c *windowsCapture) Run(frames chan<- Frame, stop <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		c.captureLoop(frames, stop)
	}()
	<-done
}

// captureLoop must run on the OS thread Run locks for it: COM is
// initialized per thread, the WASAPI objects created here stay on that
// thread, and the event handle wait must not move to another thread.
func (c *windowsCapture) captureLoop(frames chan<- Frame, stop <-chan struct{}) {
	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		log.Printf("capture: com init: %v", err)
		return
	}
	defer ole.CoUninitialize()

	client, err := wca.NewAudioClientForProcessLoopback(c.pid, true)
	if err != nil {
		log.Printf("capture: process loopback client: %v", err)
		return
	}
	defer client.Release()

	waveFmt := &wca.WAVEFORMATEXTENSIBLE{}
	waveFmt.WFX.WFormatTag = wca.WAVE_FORMAT_EXTENSIBLE
	waveFmt.WFX.NChannels = format.Channels
	waveFmt.WFX.NSamplesPerSec = format.SampleRate
	waveFmt.WFX.WBitsPerSample = 32
	waveFmt.WFX.NBlockAlign = waveFmt.WFX.NChannels * waveFmt.WFX.WBitsPerSample / 8
	waveFmt.WFX.NAvgBytesPerSec = waveFmt.WFX.NSamplesPerSec * uint32(waveFmt.WFX.NBlockAlign)

	if err := client.Initialize(
		wca.AUDCLNT_SHAREMODE_SHARED,
		wca.AUDCLNT_STREAMFLAGS_EVENTCALLBACK|wca.AUDCLNT_STREAMFLAGS_LOOPBACK,
		200*time.Millisecond.Nanoseconds()/100,
		0,
		&waveFmt.WFX,
		nil,
	); err != nil {
		log.Printf("capture: audio client init: %v", err)
		return
	}

	eventHandle, err := client.SetEventHandle()
	if err != nil {
		log.Printf("capture: set event handle: %v", err)
		return
	}

	var captureClient *wca.IAudioCaptureClient
	if err := client.GetService(wca.IID_IAudioCaptureClient, &captureClient); err != nil {
		log.Printf("capture: get capture client: %v", err)
		return
	}
	defer captureClient.Release()

	if err := client.Start(); err != nil {
		log.Printf("capture: start: %v", err)
		return
	}
	defer client.Stop()

	rb := newReblocker()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if !eventHandle.Wait(100 * time.Millisecond) {
			continue
		}

		var packetLength uint32
		if err := captureClient.GetNextPacketSize(&packetLength); err != nil {
			continue
		}

		for packetLength != 0 {
			var data *byte
			var numFrames uint32
			var flags uint32
			if err := captureClient.GetBuffer(&data, &numFrames, &flags, nil, nil); err != nil {
				break
			}

			if numFrames > 0 && data != nil {
				samples := unsafe.Slice((*float32)(unsafe.Pointer(data)), int(numFrames)*format.Channels)
				for _, pcm := range rb.feed(samples) {
					select {
					case frames <- Frame{PCM: pcm}:
					default:
					}
				}
			}

			captureClient.ReleaseBuffer(numFrames)
			if err := captureClient.GetNextPacketSize(&packetLength); err != nil {
				break
			}
		}
	}
}

func (c *windowsCapture) Close() {}
