// Package transport moves Opus packets from a Sharer to any number of
// Listeners over a single QUIC endpoint, identified by an ALPN string and
// dialed directly using the address embedded in a Ticket — no signaling
// server, no STUN/TURN, no offer/answer exchange.
package transport

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"sync"

	"github.com/quic-go/quic-go"

	hearmetls "hearme/internal/tls"
)

// ALPN identifies the hearme audio protocol on the wire.
const ALPN = "/hearme/audio/1"

const (
	broadcastCapacity = 50
	receiveCapacity    = 64
)

// Sharer accepts listener connections on one QUIC endpoint and fans out
// every packet handed to Publish to all of them.
type Sharer struct {
	listener *quic.Listener
	identity *hearmetls.Identity

	mu          sync.Mutex
	subscribers map[chan []byte]struct{}

	broadcast chan []byte
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewSharer binds a QUIC listener on a random UDP port and starts accepting
// listener connections in the background.
func NewSharer() (*Sharer, error) {
	identity, err := hearmetls.SelfSigned(ALPN)
	if err != nil {
		return nil, fmt.Errorf("transport: self-signed identity: %w", err)
	}

	ln, err := quic.ListenAddr("0.0.0.0:0", identity.Config, &quic.Config{})
	if err != nil {
		return nil, fmt.Errorf("transport: listen: %w", err)
	}

	s := &Sharer{
		listener:    ln,
		identity:    identity,
		subscribers: make(map[chan []byte]struct{}),
		broadcast:   make(chan []byte, broadcastCapacity),
		stop:        make(chan struct{}),
	}

	s.wg.Add(2)
	go s.acceptLoop()
	go s.fanOutLoop()

	return s, nil
}

// Addr returns the endpoint address a Ticket should embed.
func (s *Sharer) Addr() (host string, port int, fingerprint string, err error) {
	addr, ok := s.listener.Addr().(*net.UDPAddr)
	if !ok {
		return "", 0, "", fmt.Errorf("transport: unexpected listener address type")
	}

	host, err = outboundIP()
	if err != nil {
		return "", 0, "", err
	}
	return host, addr.Port, s.identity.Fingerprint, nil
}

// Publish hands one encoded packet to every currently connected listener.
// Packets are dropped, never blocked on, if the broadcast buffer is full —
// a slow or stalled listener falls behind, it never stalls the Sharer.
func (s *Sharer) Publish(packet []byte) {
	select {
	case s.broadcast <- packet:
	default:
		log.Printf("transport: broadcast buffer full, dropping packet")
	}
}

// Close stops accepting connections and tears down every listener session.
func (s *Sharer) Close() error {
	close(s.stop)
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

func (s *Sharer) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept(context.Background())
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
				log.Printf("transport: accept error: %v", err)
				return
			}
		}

		s.wg.Add(1)
		go s.serveListener(conn)
	}
}

// fanOutLoop copies every published packet to each subscriber's channel.
// A subscriber whose channel is full has its whole queued backlog
// discarded and the newest packet put in its place, so a lagging listener
// resumes at the newest packet rather than slowly draining a stale backlog.
func (s *Sharer) fanOutLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stop:
			return
		case packet := <-s.broadcast:
			s.mu.Lock()
			for sub := range s.subscribers {
				select {
				case sub <- packet:
				default:
					// Subscriber's buffer is full: drop every queued packet
					// and push the newest one in its place, so a lagging
					// listener resumes at the newest packet instead of
					// draining a backlog of stale ones.
					skipped := 0
				drain:
					for {
						select {
						case <-sub:
							skipped++
						default:
							break drain
						}
					}
					select {
					case sub <- packet:
					default:
					}
					log.Printf("transport: listener lagged by %d packets, skipping to newest", skipped)
				}
			}
			s.mu.Unlock()
		}
	}
}

// serveListener waits for one bidi stream (the listener's readiness
// signal), then writes every broadcast packet to it, length-prefixed.
func (s *Sharer) serveListener(conn *quic.Conn) {
	defer s.wg.Done()
	defer conn.CloseWithError(0, "")

	stream, err := conn.AcceptStream(context.Background())
	if err != nil {
		log.Printf("transport: accept stream error: %v", err)
		return
	}
	defer stream.Close()

	sub := s.subscribe()
	defer s.unsubscribe(sub)

	for {
		select {
		case <-s.stop:
			return
		case <-conn.Context().Done():
			return
		case packet := <-sub:
			if err := writeFramed(stream, packet); err != nil {
				return
			}
		}
	}
}

func (s *Sharer) subscribe() chan []byte {
	ch := make(chan []byte, broadcastCapacity)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Sharer) unsubscribe(ch chan []byte) {
	s.mu.Lock()
	delete(s.subscribers, ch)
	s.mu.Unlock()
}

// writeFramed writes a u16-LE length prefix followed by the packet bytes.
func writeFramed(w io.Writer, packet []byte) error {
	if len(packet) > 0xFFFF {
		return fmt.Errorf("transport: packet too large: %d bytes", len(packet))
	}
	var hdr [2]byte
	binary.LittleEndian.PutUint16(hdr[:], uint16(len(packet)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(packet)
	return err
}

// readFramed reads one u16-LE length prefix then exactly that many bytes.
// A zero length is invalid framing.
func readFramed(r io.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint16(hdr[:])
	if n == 0 {
		return nil, fmt.Errorf("transport: invalid zero-length frame")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Listener dials a Sharer directly using the address from a Ticket and
// delivers received packets on a bounded channel.
type Listener struct {
	conn   *quic.Conn
	stream *quic.Stream
}

// Dial connects to the given host:port, pinning the Sharer's self-signed
// certificate by its SHA-256 fingerprint (InsecureSkipVerify plus manual
// verification, since the cert is never CA-issued by a root the OS trusts).
func Dial(ctx context.Context, host string, port int, fingerprint string) (*Listener, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPN},
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			return verifyFingerprint(rawCerts, fingerprint)
		},
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := quic.DialAddr(ctx, addr, tlsCfg, &quic.Config{})
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "")
		return nil, fmt.Errorf("transport: open stream: %w", err)
	}

	return &Listener{conn: conn, stream: stream}, nil
}

func verifyFingerprint(rawCerts [][]byte, want string) error {
	if len(rawCerts) == 0 {
		return fmt.Errorf("transport: no peer certificate presented")
	}
	sum := sha256.Sum256(rawCerts[0])
	got := hex.EncodeToString(sum[:])
	if got != want {
		return fmt.Errorf("transport: certificate fingerprint mismatch: got %s want %s", got, want)
	}
	return nil
}

// Receive starts the receive loop and delivers packets on the returned
// channel until stop is closed or the connection drops.
func (l *Listener) Receive(stop <-chan struct{}) <-chan []byte {
	out := make(chan []byte, receiveCapacity)

	go func() {
		defer close(out)
		for {
			packet, err := readFramed(l.stream)
			if err != nil {
				if err != io.EOF {
					log.Printf("transport: receive error: %v", err)
				}
				return
			}

			select {
			case out <- packet:
			case <-stop:
				return
			}
		}
	}()

	return out
}

func (l *Listener) Close() error {
	l.stream.Close()
	return l.conn.CloseWithError(0, "")
}

// outboundIP picks the local address used to reach the default route,
// a reasonable best-effort LAN-reachable address for the ticket — the
// same "LAN only" simplification the teacher's own session code notes.
func outboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("transport: determine outbound address: %w", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
