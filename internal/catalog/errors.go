package catalog

import (
	"errors"
	"net"
	"net/url"
)

var (
	// ErrUnknownSDK means the backend does not recognize the device API
	// level the query was scoped to.
	ErrUnknownSDK = errors.New("catalog: unknown SDK")

	// ErrNoInternet is the caller-facing translation of any network-layer
	// failure reaching the catalog.
	ErrNoInternet = errors.New("catalog: no internet connection")
)

// MapError translates transport-level failures into the two caller-facing
// conditions the orchestrator distinguishes. An unknown-SDK error passes
// through as ErrUnknownSDK, any network/URL error becomes ErrNoInternet,
// and everything else is returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnknownSDK) {
		return ErrUnknownSDK
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrNoInternet
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrNoInternet
	}
	return err
}
