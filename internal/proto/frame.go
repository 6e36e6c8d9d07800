package proto

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameBytes bounds decode memory use. The device never produces frames
// anywhere near this size; anything larger is a corrupt length prefix.
const MaxFrameBytes = 1 << 20

var ErrFrameTooLarge = errors.New("proto: frame too large")

// WriteFrame serializes the envelope and writes it as one length-delimited
// frame: a uvarint byte count followed by the envelope bytes.
func WriteFrame(w io.Writer, env Envelope) error {
	body, err := Encode(env)
	if err != nil {
		return err
	}
	if len(body) > MaxFrameBytes {
		return ErrFrameTooLarge
	}
	frame := binary.AppendUvarint(make([]byte, 0, len(body)+binary.MaxVarintLen32), uint64(len(body)))
	frame = append(frame, body...)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("proto: write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-delimited frame and decodes its envelope.
func ReadFrame(r *bufio.Reader) (Envelope, error) {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return Envelope{}, err
	}
	if size > MaxFrameBytes {
		return Envelope{}, ErrFrameTooLarge
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return Envelope{}, err
	}
	return Decode(body)
}
