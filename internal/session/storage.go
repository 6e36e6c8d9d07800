package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flipper-bridge/internal/proto"
	"flipper-bridge/pkg/metrics"
)

// Ping sends an echo probe and returns the echoed payload.
func (s *Session) Ping(ctx context.Context, data []byte) ([]byte, error) {
	resp, err := s.SendRequest(ctx, proto.PingRequest{Data: data})
	if err != nil {
		return nil, err
	}
	switch r := resp.(type) {
	case proto.Pong:
		return r.Data, nil
	case proto.CommandFailed:
		return nil, &DeviceError{Status: r.Status}
	default:
		return nil, fmt.Errorf("%w: unexpected %T", proto.ErrUnknownMessage, resp)
	}
}

// GetDateTime reads the device clock.
func (s *Session) GetDateTime(ctx context.Context) (time.Time, error) {
	resp, err := s.SendRequest(ctx, proto.GetDateTimeRequest{})
	if err != nil {
		return time.Time{}, err
	}
	switch r := resp.(type) {
	case proto.DateTime:
		return r.Time, nil
	case proto.CommandFailed:
		return time.Time{}, &DeviceError{Status: r.Status}
	default:
		return time.Time{}, fmt.Errorf("%w: unexpected %T", proto.ErrUnknownMessage, resp)
	}
}

// SetDateTime sets the device clock.
func (s *Session) SetDateTime(ctx context.Context, t time.Time) error {
	return s.expectOK(ctx, proto.SetDateTimeRequest{Time: t})
}

// RunUpdate asks the device to validate a staged update manifest. The
// device-reported sub-code is returned verbatim even when this build does
// not recognize it.
func (s *Session) RunUpdate(ctx context.Context, manifestPath string) (proto.UpdateResult, error) {
	resp, err := s.SendRequest(ctx, proto.UpdateRequest{ManifestPath: manifestPath})
	if err != nil {
		return 0, err
	}
	switch r := resp.(type) {
	case proto.UpdateStatus:
		return r.Result, nil
	case proto.CommandFailed:
		return 0, &DeviceError{Status: r.Status}
	default:
		return 0, fmt.Errorf("%w: unexpected %T", proto.ErrUnknownMessage, resp)
	}
}

// StorageInfo reports total and free space of the filesystem containing path.
func (s *Session) StorageInfo(ctx context.Context, path string) (proto.StorageInfo, error) {
	resp, err := s.SendRequest(ctx, proto.InfoRequest{Path: path})
	if err != nil {
		return proto.StorageInfo{}, err
	}
	switch r := resp.(type) {
	case proto.StorageInfo:
		return r, nil
	case proto.CommandFailed:
		return proto.StorageInfo{}, &DeviceError{Status: r.Status}
	default:
		return proto.StorageInfo{}, fmt.Errorf("%w: unexpected %T", proto.ErrUnknownMessage, resp)
	}
}

// ListDirectory returns the full listing of a directory. Listings stream in
// slices; entries are accumulated until the device signals end-of-stream.
func (s *Session) ListDirectory(ctx context.Context, path string) ([]proto.FileInfo, error) {
	id, pc := s.register()
	defer s.unregister(id)
	if err := s.writeEnvelope(proto.Envelope{CommandID: id, Body: proto.ListRequest{Path: path}}); err != nil {
		return nil, err
	}

	var entries []proto.FileInfo
	for {
		env, err := s.await(ctx, pc)
		if err != nil {
			return nil, err
		}
		resp, err := env.Response()
		if err != nil {
			return nil, err
		}
		switch r := resp.(type) {
		case proto.DirListing:
			entries = append(entries, r.Entries...)
		case proto.OK:
			// empty directory slice
		case proto.CommandFailed:
			return nil, &DeviceError{Status: r.Status}
		default:
			return nil, fmt.Errorf("%w: unexpected %T", proto.ErrUnknownMessage, resp)
		}
		if !env.HasNext {
			return entries, nil
		}
	}
}

// Stat returns the metadata of a single path.
func (s *Session) Stat(ctx context.Context, path string) (proto.FileInfo, error) {
	resp, err := s.SendRequest(ctx, proto.StatRequest{Path: path})
	if err != nil {
		return proto.FileInfo{}, err
	}
	switch r := resp.(type) {
	case proto.FileStat:
		return r.File, nil
	case proto.CommandFailed:
		return proto.FileInfo{}, &DeviceError{Status: r.Status}
	default:
		return proto.FileInfo{}, fmt.Errorf("%w: unexpected %T", proto.ErrUnknownMessage, resp)
	}
}

// ReadFile streams a file's contents and returns them assembled.
func (s *Session) ReadFile(ctx context.Context, path string) ([]byte, error) {
	id, pc := s.register()
	defer s.unregister(id)
	if err := s.writeEnvelope(proto.Envelope{CommandID: id, Body: proto.ReadRequest{Path: path}}); err != nil {
		return nil, err
	}

	var data []byte
	for {
		env, err := s.await(ctx, pc)
		if err != nil {
			return nil, err
		}
		resp, err := env.Response()
		if err != nil {
			return nil, err
		}
		switch r := resp.(type) {
		case proto.FileData:
			data = append(data, r.Data...)
			metrics.TransferBytes.WithLabelValues("read").Add(float64(len(r.Data)))
		case proto.OK:
			// empty file
		case proto.CommandFailed:
			return nil, &DeviceError{Status: r.Status}
		default:
			return nil, fmt.Errorf("%w: unexpected %T", proto.ErrUnknownMessage, resp)
		}
		if !env.HasNext {
			return data, nil
		}
	}
}

// WriteFile streams data to a device path in fixed-size chunks. After each
// chunk is on the wire, progress is invoked with the 0..1 fraction written.
// The device acknowledges once, after the final chunk.
func (s *Session) WriteFile(ctx context.Context, path string, data []byte, progress func(float64)) error {
	id, pc := s.register()
	defer s.unregister(id)

	total := len(data)
	sent := 0
	for {
		chunk := data[sent:min(sent+writeChunkSize, total)]
		sent += len(chunk)
		last := sent >= total
		env := proto.Envelope{
			CommandID: id,
			HasNext:   !last,
			Body:      proto.WriteRequest{Path: path, Data: chunk},
		}
		if err := s.writeEnvelope(env); err != nil {
			return err
		}
		metrics.TransferBytes.WithLabelValues("write").Add(float64(len(chunk)))
		if progress != nil && total > 0 {
			progress(float64(sent) / float64(total))
		}
		if last {
			break
		}
	}
	if progress != nil && total == 0 {
		progress(1)
	}

	env, err := s.await(ctx, pc)
	if err != nil {
		return err
	}
	resp, err := env.Response()
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

// MoveFile renames a path on device storage. The rename is atomic on the
// device filesystem, which the install pipeline relies on when promoting
// staged artifacts.
func (s *Session) MoveFile(ctx context.Context, oldPath, newPath string) error {
	return s.expectOK(ctx, proto.RenameRequest{OldPath: oldPath, NewPath: newPath})
}

// DeleteFile removes a single file.
func (s *Session) DeleteFile(ctx context.Context, path string) error {
	return s.expectOK(ctx, proto.DeleteRequest{Path: path})
}

// CreateDirectory creates a directory if absent. A directory that already
// exists is not an error; the operation is idempotent.
func (s *Session) CreateDirectory(ctx context.Context, path string) error {
	err := s.expectOK(ctx, proto.MkdirRequest{Path: path})
	var de *DeviceError
	if errors.As(err, &de) && de.Status == proto.StatusErrorStorageExist {
		return nil
	}
	return err
}

// FileHash returns the MD5 sum of a file as reported by the device.
func (s *Session) FileHash(ctx context.Context, path string) (string, error) {
	resp, err := s.SendRequest(ctx, proto.HashRequest{Path: path})
	if err != nil {
		return "", err
	}
	switch r := resp.(type) {
	case proto.FileHash:
		return r.MD5, nil
	case proto.CommandFailed:
		return "", &DeviceError{Status: r.Status}
	default:
		return "", fmt.Errorf("%w: unexpected %T", proto.ErrUnknownMessage, resp)
	}
}
