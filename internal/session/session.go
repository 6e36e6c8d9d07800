// Package session owns one physical device link. It serializes outbound
// frames, demultiplexes inbound frames by command id, routes push frames to
// registered callbacks, and exposes the typed request surface the rest of
// the bridge consumes. A session is bound to exactly one transport; on
// reconnect the paired device discards it and binds a fresh one.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"flipper-bridge/internal/proto"
	"flipper-bridge/pkg/log"
	"flipper-bridge/pkg/metrics"
)

var (
	// ErrNotConnected is returned by every operation on a torn-down or
	// never-connected session.
	ErrNotConnected = errors.New("session: not connected")

	// ErrStreamEnded is returned when a streamed exchange terminates with
	// an unexpected payload kind.
	ErrStreamEnded = errors.New("session: stream ended unexpectedly")
)

// DeviceError is a non-ok command status reported by the device. It is a
// data error, distinct from transport failures.
type DeviceError struct {
	Status proto.CommandStatus
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device: %s", e.Status.Text())
}

// Transport is the raw byte link to the device.
type Transport = io.ReadWriteCloser

// IO is the typed request surface of a device link. Session implements it
// for a live link; Closed implements it for the absent-device state, failing
// every operation with ErrNotConnected.
type IO interface {
	Ping(ctx context.Context, data []byte) ([]byte, error)
	Property(ctx context.Context, key string) (PropertyIterator, error)
	GetDateTime(ctx context.Context) (time.Time, error)
	SetDateTime(ctx context.Context, t time.Time) error
	RunUpdate(ctx context.Context, manifestPath string) (proto.UpdateResult, error)
	StorageInfo(ctx context.Context, path string) (proto.StorageInfo, error)
	ListDirectory(ctx context.Context, path string) ([]proto.FileInfo, error)
	Stat(ctx context.Context, path string) (proto.FileInfo, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte, progress func(float64)) error
	MoveFile(ctx context.Context, oldPath, newPath string) error
	DeleteFile(ctx context.Context, path string) error
	CreateDirectory(ctx context.Context, path string) error
	FileHash(ctx context.Context, path string) (string, error)
	Close() error
}

const (
	// writeChunkSize is the payload size of one WriteRequest frame. The
	// device-side storage link works on small buffers; larger chunks are
	// rejected with a decode error.
	writeChunkSize = 512

	// defaultAwaitTimeout bounds the wait for any single reply frame so a
	// device that stops responding mid-stream cannot strand a caller.
	defaultAwaitTimeout = 30 * time.Second
)

// Session is one live device link.
type Session struct {
	tr Transport
	br *bufio.Reader

	writeMu sync.Mutex // serializes physical frame writes

	mu      sync.Mutex
	nextID  uint32
	pending map[uint32]*pendingCall

	callbacks *Callbacks

	awaitTimeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

type pendingCall struct {
	ch chan proto.Envelope
}

var _ IO = (*Session)(nil)

// New binds a session to the transport and adopts the given callback set for
// push frames. The read loop starts immediately.
func New(tr Transport, callbacks *Callbacks) *Session {
	if callbacks == nil {
		callbacks = NewCallbacks()
	}
	s := &Session{
		tr:           tr,
		br:           bufio.NewReader(tr),
		nextID:       1,
		pending:      make(map[uint32]*pendingCall),
		callbacks:    callbacks,
		awaitTimeout: defaultAwaitTimeout,
		done:         make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// Callbacks returns the push-frame callback set this session dispatches to.
func (s *Session) Callbacks() *Callbacks { return s.callbacks }

// Close tears the session down. All pending requests fail promptly with
// ErrNotConnected; further operations fail the same way.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.tr.Close()
		s.mu.Lock()
		s.pending = make(map[uint32]*pendingCall)
		s.mu.Unlock()
	})
	return nil
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// readLoop demultiplexes inbound frames. Correlated frames go to the pending
// call that produced them; frames with command id zero are spontaneous push
// traffic and go to the callback slots. Unrelated interleaved traffic never
// disturbs an in-flight request.
func (s *Session) readLoop() {
	for {
		env, err := proto.ReadFrame(s.br)
		if err != nil {
			if errors.Is(err, proto.ErrMalformed) || errors.Is(err, proto.ErrUnknownMessage) {
				log.Warn("session: dropping undecodable frame", "error", err)
				continue
			}
			if !s.closed() {
				log.Warn("session: read loop terminated", "error", err)
			}
			s.Close()
			return
		}
		metrics.FramesReceived.Inc()

		if env.CommandID == 0 {
			s.callbacks.dispatch(env.Body)
			continue
		}

		s.mu.Lock()
		pc := s.pending[env.CommandID]
		s.mu.Unlock()
		if pc == nil {
			log.Debug("session: reply for unknown command", "commandId", env.CommandID)
			continue
		}
		select {
		case pc.ch <- env:
		case <-s.done:
			return
		}
	}
}

// register allocates a command id and a reply slot for one exchange.
func (s *Session) register() (uint32, *pendingCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	if s.nextID == 0 {
		s.nextID = 1
	}
	pc := &pendingCall{ch: make(chan proto.Envelope, 16)}
	s.pending[id] = pc
	return id, pc
}

func (s *Session) unregister(id uint32) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// writeEnvelope writes one frame under the write lock. Any send on a
// torn-down session fails immediately.
func (s *Session) writeEnvelope(env proto.Envelope) error {
	if s.closed() {
		return ErrNotConnected
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed() {
		return ErrNotConnected
	}
	if err := proto.WriteFrame(s.tr, env); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	metrics.FramesSent.Inc()
	return nil
}

// await blocks until the next reply frame for the exchange arrives, the
// context is cancelled, the bounded wait elapses, or the session is torn
// down. A request awaiting a reply when the transport disconnects fails
// here rather than hanging.
func (s *Session) await(ctx context.Context, pc *pendingCall) (proto.Envelope, error) {
	timer := time.NewTimer(s.awaitTimeout)
	defer timer.Stop()
	select {
	case env := <-pc.ch:
		return env, nil
	case <-ctx.Done():
		return proto.Envelope{}, ctx.Err()
	case <-timer.C:
		return proto.Envelope{}, fmt.Errorf("%w: reply wait timed out", ErrNotConnected)
	case <-s.done:
		return proto.Envelope{}, ErrNotConnected
	}
}

// SendRequest performs one single-reply exchange and decodes the outcome.
func (s *Session) SendRequest(ctx context.Context, req proto.Request) (proto.Response, error) {
	id, pc := s.register()
	defer s.unregister(id)
	if err := s.writeEnvelope(proto.Envelope{CommandID: id, Body: req}); err != nil {
		return nil, err
	}
	env, err := s.await(ctx, pc)
	if err != nil {
		return nil, err
	}
	return env.Response()
}

// expectOK runs a single-reply exchange whose only success outcome is an
// empty ok reply.
func (s *Session) expectOK(ctx context.Context, req proto.Request) error {
	resp, err := s.SendRequest(ctx, req)
	if err != nil {
		return err
	}
	switch r := resp.(type) {
	case proto.OK:
		return nil
	case proto.CommandFailed:
		return &DeviceError{Status: r.Status}
	default:
		return fmt.Errorf("%w: unexpected %T", proto.ErrUnknownMessage, resp)
	}
}
