package proto

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	// ErrMalformed reports a frame whose bytes do not parse as an envelope.
	// This is a data error: the frame is dropped and the link keeps going.
	ErrMalformed = errors.New("proto: malformed envelope")

	// ErrUnknownMessage reports a body kind this build has no parser for.
	// This is protocol drift, a programming error, and is kept distinct
	// from data errors so it is never silently swallowed.
	ErrUnknownMessage = errors.New("proto: unknown message kind")
)

// Decode parses one envelope from its wire form (without the frame length
// prefix).
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Envelope{}, fmt.Errorf("%w: bad tag", ErrMalformed)
		}
		data = data[n:]

		switch {
		case num == fieldCommandID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("%w: command id", ErrMalformed)
			}
			env.CommandID = uint32(v)
			data = data[n:]
		case num == fieldStatus && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("%w: status", ErrMalformed)
			}
			env.Status = CommandStatus(v)
			data = data[n:]
		case num == fieldHasNext && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("%w: has next", ErrMalformed)
			}
			env.HasNext = v != 0
			data = data[n:]
		case typ == protowire.BytesType:
			body, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("%w: body", ErrMalformed)
			}
			msg, err := parseBody(uint32(num), body)
			if err != nil {
				return Envelope{}, err
			}
			env.Body = msg
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("%w: field %d", ErrMalformed, num)
			}
			data = data[n:]
		}
	}
	return env, nil
}

func parseBody(kind uint32, body []byte) (Message, error) {
	f, err := newFieldReader(body)
	if err != nil {
		return nil, err
	}
	switch kind {
	case bodyPingRequest:
		return PingRequest{Data: f.bytes(1)}, nil
	case bodyPropertyRequest:
		return PropertyRequest{Key: f.str(1)}, nil
	case bodyGetDateTimeRequest:
		return GetDateTimeRequest{}, nil
	case bodySetDateTimeRequest:
		return SetDateTimeRequest{Time: time.Unix(int64(f.varint(1)), 0).UTC()}, nil
	case bodyUpdateRequest:
		return UpdateRequest{ManifestPath: f.str(1)}, nil
	case bodyInfoRequest:
		return InfoRequest{Path: f.str(1)}, nil
	case bodyListRequest:
		return ListRequest{Path: f.str(1)}, nil
	case bodyStatRequest:
		return StatRequest{Path: f.str(1)}, nil
	case bodyReadRequest:
		return ReadRequest{Path: f.str(1)}, nil
	case bodyWriteRequest:
		return WriteRequest{Path: f.str(1), Data: f.bytes(2)}, nil
	case bodyDeleteRequest:
		return DeleteRequest{Path: f.str(1), Recursive: f.varint(2) != 0}, nil
	case bodyMkdirRequest:
		return MkdirRequest{Path: f.str(1)}, nil
	case bodyRenameRequest:
		return RenameRequest{OldPath: f.str(1), NewPath: f.str(2)}, nil
	case bodyHashRequest:
		return HashRequest{Path: f.str(1)}, nil
	case bodyPong:
		return Pong{Data: f.bytes(1)}, nil
	case bodyProperty:
		return Property{Key: f.str(1), Value: f.str(2)}, nil
	case bodyDateTime:
		return DateTime{Time: time.Unix(int64(f.varint(1)), 0).UTC()}, nil
	case bodyUpdateStatus:
		return UpdateStatus{Result: UpdateResult(f.varint(1))}, nil
	case bodyStorageInfo:
		return StorageInfo{TotalSpace: f.varint(1), FreeSpace: f.varint(2)}, nil
	case bodyDirListing:
		var listing DirListing
		for _, raw := range f.bytesAll(1) {
			fi, err := parseFileInfo(raw)
			if err != nil {
				return nil, err
			}
			listing.Entries = append(listing.Entries, fi)
		}
		return listing, nil
	case bodyFileStat:
		fi, err := parseFileInfo(f.bytes(1))
		if err != nil {
			return nil, err
		}
		return FileStat{File: fi}, nil
	case bodyFileData:
		return FileData{Data: f.bytes(1)}, nil
	case bodyFileHash:
		return FileHash{MD5: f.str(1)}, nil
	case bodyScreenFrame:
		return ScreenFrame{Data: f.bytes(1), Orientation: uint32(f.varint(2))}, nil
	case bodyAppStateChanged:
		return AppStateChanged{State: uint32(f.varint(1))}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, kind)
	}
}

func parseFileInfo(raw []byte) (FileInfo, error) {
	f, err := newFieldReader(raw)
	if err != nil {
		return FileInfo{}, err
	}
	fi := FileInfo{
		Name: f.str(1),
		Dir:  f.varint(2) != 0,
		Size: f.varint(3),
	}
	return fi, nil
}

// fieldReader indexes a message's fields once so parsers can pull them out
// by number. Unknown fields are skipped for forward compatibility.
type fieldReader struct {
	varints map[protowire.Number]uint64
	blobs   map[protowire.Number][][]byte
}

func newFieldReader(data []byte) (*fieldReader, error) {
	f := &fieldReader{
		varints: make(map[protowire.Number]uint64),
		blobs:   make(map[protowire.Number][][]byte),
	}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad field tag", ErrMalformed)
		}
		data = data[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d", ErrMalformed, num)
			}
			f.varints[num] = v
			data = data[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d", ErrMalformed, num)
			}
			f.blobs[num] = append(f.blobs[num], v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d", ErrMalformed, num)
			}
			data = data[n:]
		}
	}
	return f, nil
}

func (f *fieldReader) varint(num protowire.Number) uint64 { return f.varints[num] }

func (f *fieldReader) bytes(num protowire.Number) []byte {
	if vs := f.blobs[num]; len(vs) > 0 {
		out := make([]byte, len(vs[0]))
		copy(out, vs[0])
		return out
	}
	return nil
}

func (f *fieldReader) bytesAll(num protowire.Number) [][]byte { return f.blobs[num] }

func (f *fieldReader) str(num protowire.Number) string {
	if vs := f.blobs[num]; len(vs) > 0 {
		return string(vs[0])
	}
	return ""
}

// Response interprets a decoded envelope as a request/response outcome.
// Decoding is total over the known command-status outcomes: a non-ok status
// yields CommandFailed regardless of payload, an ok status with no body
// yields OK, and an ok status with a body dispatches on the payload kind.
// A body that is not a Response variant here means the envelope reached the
// wrong routing path, which is protocol drift, not a data error.
func (e Envelope) Response() (Response, error) {
	if e.Status != StatusOK {
		return CommandFailed{Status: e.Status}, nil
	}
	if e.Body == nil {
		return OK{}, nil
	}
	if r, ok := e.Body.(Response); ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: %T in response slot", ErrUnknownMessage, e.Body)
}
