// Package session orchestrates a shared or listened-to audio session:
// at most one active share and one active listen at a time, held in two
// cells that are guarded by a single shared mutex.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"hearme/internal/capture"
	"hearme/internal/codec"
	"hearme/internal/herr"
	"hearme/internal/playback"
	"hearme/internal/ticket"
	"hearme/internal/transport"
)

// shareSession holds everything a running share needs to tear down
// cleanly: capture stops before the encoder forwarding goroutine is
// joined, matching the teacher's capture-before-encoder-close ordering.
type shareSession struct {
	id       string
	sharer   *transport.Sharer
	capturer capture.Capturer
	stop     chan struct{}
	wg       sync.WaitGroup
}

type listenSession struct {
	id       string
	listener *transport.Listener
	stream   *playback.Stream
	stop     chan struct{}
	wg       sync.WaitGroup
}

// AppState holds the two independent session cells. Zero value is ready
// to use.
type AppState struct {
	mu     sync.Mutex
	share  *shareSession
	listen *listenSession

	// OnShareEnded/OnListenEnded are invoked, each from its own session's
	// goroutine, once the respective session ends on its own, e.g. because
	// capture hit EOF or the connection dropped. The two may run
	// concurrently with each other. Either may be nil.
	OnShareEnded  func(id string)
	OnListenEnded func(id string)
}

// ListAudioSources enumerates applications currently producing audio on
// this machine.
func ListAudioSources() ([]capture.Source, error) {
	return capture.ListSources()
}

// StartSharing begins capturing and broadcasting sourceID's audio. It
// fails with AlreadyRunning if a share is already active.
func (a *AppState) StartSharing(sourceID string) (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.share != nil {
		return "", "", herr.New(herr.AlreadyRunning, "start sharing", nil)
	}

	cap, err := capture.NewCapturer(sourceID)
	if err != nil {
		return "", "", fmt.Errorf("start sharing: %w", err)
	}

	sharer, err := transport.NewSharer()
	if err != nil {
		cap.Close()
		return "", "", fmt.Errorf("start sharing: %w", err)
	}

	host, port, fingerprint, err := sharer.Addr()
	if err != nil {
		sharer.Close()
		cap.Close()
		return "", "", fmt.Errorf("start sharing: %w", err)
	}

	enc, err := codec.NewEncoder()
	if err != nil {
		sharer.Close()
		cap.Close()
		return "", "", fmt.Errorf("start sharing: %w", err)
	}

	id := uuid.New().String()
	sess := &shareSession{
		id:       id,
		sharer:   sharer,
		capturer: cap,
		stop:     make(chan struct{}),
	}

	frames := make(chan capture.Frame, capture.FrameChannelCapacity)
	sess.wg.Add(2)
	go func() {
		defer sess.wg.Done()
		defer close(frames) // EOF for encodeLoop once the capturer stops
		cap.Run(frames, sess.stop)
	}()
	go func() {
		defer sess.wg.Done()
		a.encodeLoop(sess, enc, frames)
	}()

	a.share = sess

	tk := ticket.Ticket{Addr: ticket.EndpointAddress{Host: host, Port: port, Fingerprint: fingerprint}}
	return id, tk.Encode(), nil
}

// encodeLoop reads captured frames, encodes them, and publishes packets
// until the capturer stops delivering frames (EOF) or stop is closed.
func (a *AppState) encodeLoop(sess *shareSession, enc *codec.Encoder, frames <-chan capture.Frame) {
	for {
		select {
		case <-sess.stop:
			return
		case frame, ok := <-frames:
			if !ok {
				a.handleShareEnded(sess)
				return
			}
			packet, err := enc.Encode(frame.PCM)
			if err != nil {
				log.Printf("session: encode error: %v", err)
				continue
			}
			sess.sharer.Publish(packet)
		}
	}
}

func (a *AppState) handleShareEnded(sess *shareSession) {
	a.mu.Lock()
	ended := a.share == sess
	if ended {
		a.share = nil
	}
	a.mu.Unlock()

	if ended {
		sess.capturer.Close()
		sess.sharer.Close()
		if a.OnShareEnded != nil {
			a.OnShareEnded(sess.id)
		}
	}
}

// StopSharing tears down the active share, if any. Idempotent: calling it
// with no active share is a no-op.
func (a *AppState) StopSharing() {
	a.mu.Lock()
	sess := a.share
	a.share = nil
	a.mu.Unlock()

	if sess == nil {
		return
	}

	close(sess.stop)
	sess.capturer.Close() // capture stops before the encoder goroutine is joined
	sess.wg.Wait()
	sess.sharer.Close()
}

// StartListening connects to the Sharer described by encodedTicket and
// begins playback. It fails with AlreadyRunning if a listen is already
// active, and with BadTicket if the ticket doesn't parse.
func (a *AppState) StartListening(encodedTicket string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listen != nil {
		return "", herr.New(herr.AlreadyRunning, "start listening", nil)
	}

	tk, err := ticket.Decode(encodedTicket)
	if err != nil {
		return "", fmt.Errorf("start listening: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	listener, err := transport.Dial(ctx, tk.Addr.Host, tk.Addr.Port, tk.Addr.Fingerprint)
	if err != nil {
		return "", fmt.Errorf("start listening: %w", err)
	}

	stream, err := playback.Start()
	if err != nil {
		listener.Close()
		return "", fmt.Errorf("start listening: %w", err)
	}

	dec, err := codec.NewDecoder()
	if err != nil {
		stream.Close()
		listener.Close()
		return "", fmt.Errorf("start listening: %w", err)
	}

	id := uuid.New().String()
	sess := &listenSession{
		id:       id,
		listener: listener,
		stream:   stream,
		stop:     make(chan struct{}),
	}

	producer := stream.TakeProducer()
	packets := listener.Receive(sess.stop)

	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		a.decodeLoop(sess, dec, producer, packets)
	}()

	a.listen = sess
	return id, nil
}

func (a *AppState) decodeLoop(sess *listenSession, dec *codec.Decoder, producer *playback.Producer, packets <-chan []byte) {
	for {
		select {
		case <-sess.stop:
			return
		case packet, ok := <-packets:
			if !ok {
				a.handleListenEnded(sess)
				return
			}
			pcm, err := dec.Decode(packet)
			if err != nil {
				log.Printf("session: decode error: %v", err)
				continue
			}
			producer.Push(pcm)
		}
	}
}

func (a *AppState) handleListenEnded(sess *listenSession) {
	a.mu.Lock()
	ended := a.listen == sess
	if ended {
		a.listen = nil
	}
	a.mu.Unlock()

	if ended {
		sess.stream.Close()
		sess.listener.Close()
		if a.OnListenEnded != nil {
			a.OnListenEnded(sess.id)
		}
	}
}

// StopListening tears down the active listen, if any. Idempotent.
func (a *AppState) StopListening() {
	a.mu.Lock()
	sess := a.listen
	a.listen = nil
	a.mu.Unlock()

	if sess == nil {
		return
	}

	close(sess.stop)
	sess.wg.Wait()
	// Decoder stopped before the playback stream is released.
	sess.stream.Close()
	sess.listener.Close()
}
