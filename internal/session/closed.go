package session

import (
	"context"
	"time"

	"flipper-bridge/internal/proto"
)

// Closed is the no-op session bound while no peripheral is associated. Every
// operation fails immediately with ErrNotConnected, so callers never block
// on an absent device.
type Closed struct{}

var _ IO = Closed{}

func (Closed) Ping(context.Context, []byte) ([]byte, error) { return nil, ErrNotConnected }

func (Closed) Property(context.Context, string) (PropertyIterator, error) {
	return nil, ErrNotConnected
}

func (Closed) GetDateTime(context.Context) (time.Time, error) { return time.Time{}, ErrNotConnected }

func (Closed) SetDateTime(context.Context, time.Time) error { return ErrNotConnected }

func (Closed) RunUpdate(context.Context, string) (proto.UpdateResult, error) {
	return 0, ErrNotConnected
}

func (Closed) StorageInfo(context.Context, string) (proto.StorageInfo, error) {
	return proto.StorageInfo{}, ErrNotConnected
}

func (Closed) ListDirectory(context.Context, string) ([]proto.FileInfo, error) {
	return nil, ErrNotConnected
}

func (Closed) Stat(context.Context, string) (proto.FileInfo, error) {
	return proto.FileInfo{}, ErrNotConnected
}

func (Closed) ReadFile(context.Context, string) ([]byte, error) { return nil, ErrNotConnected }

func (Closed) WriteFile(context.Context, string, []byte, func(float64)) error {
	return ErrNotConnected
}

func (Closed) MoveFile(context.Context, string, string) error { return ErrNotConnected }

func (Closed) DeleteFile(context.Context, string) error { return ErrNotConnected }

func (Closed) CreateDirectory(context.Context, string) error { return ErrNotConnected }

func (Closed) FileHash(context.Context, string) (string, error) { return "", ErrNotConnected }

func (Closed) Close() error { return nil }
