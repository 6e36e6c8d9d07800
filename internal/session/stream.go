package session

import (
	"context"
	"fmt"
	"io"

	"flipper-bridge/internal/proto"
)

// PropertyIterator yields the entries of one property query. Next returns
// io.EOF once the device has signalled end-of-stream.
type PropertyIterator interface {
	Next(ctx context.Context) (proto.Property, error)
}

// PropertyStream is one in-flight property query: a lazy, finite sequence of
// key/value entries terminated by end-of-stream. Each Property call starts a
// fresh stream; streams are not reusable.
type PropertyStream struct {
	s        *Session
	id       uint32
	pc       *pendingCall
	finished bool
}

// Property starts a property query under the given key.
func (s *Session) Property(ctx context.Context, key string) (PropertyIterator, error) {
	id, pc := s.register()
	if err := s.writeEnvelope(proto.Envelope{CommandID: id, Body: proto.PropertyRequest{Key: key}}); err != nil {
		s.unregister(id)
		return nil, err
	}
	return &PropertyStream{s: s, id: id, pc: pc}, nil
}

// Next returns the next entry of the stream, or io.EOF once the device has
// signalled end-of-stream. Any other error terminates the stream.
func (ps *PropertyStream) Next(ctx context.Context) (proto.Property, error) {
	if ps.finished {
		return proto.Property{}, io.EOF
	}
	env, err := ps.s.await(ctx, ps.pc)
	if err != nil {
		ps.close()
		return proto.Property{}, err
	}
	if !env.HasNext {
		ps.close()
	}
	resp, err := env.Response()
	if err != nil {
		ps.close()
		return proto.Property{}, err
	}
	switch r := resp.(type) {
	case proto.Property:
		return r, nil
	case proto.OK:
		// empty terminator for a zero-entry stream
		ps.close()
		return proto.Property{}, io.EOF
	case proto.CommandFailed:
		ps.close()
		return proto.Property{}, &DeviceError{Status: r.Status}
	default:
		ps.close()
		return proto.Property{}, fmt.Errorf("%w: unexpected %T", proto.ErrUnknownMessage, resp)
	}
}

// Collect drains a property iterator into a slice.
func Collect(ctx context.Context, it PropertyIterator) ([]proto.Property, error) {
	var out []proto.Property
	for {
		p, err := it.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
}

func (ps *PropertyStream) close() {
	if !ps.finished {
		ps.finished = true
		ps.s.unregister(ps.id)
	}
}
