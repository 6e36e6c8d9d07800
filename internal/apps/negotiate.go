package apps

import (
	"context"
	"fmt"
	"io"
	"time"

	"flipper-bridge/internal/session"
	"flipper-bridge/pkg/log"
	"flipper-bridge/pkg/semver"
)

// MinProtocolVersion is the oldest firmware protocol revision the app
// management calls work against. The gate runs before any other device
// call: older firmware does not implement the storage commands at all.
const MinProtocolVersion = "0.3"

// Property keys used during capability negotiation.
const (
	keyProtocol = "protocol"
	keyTarget   = "hardware.target"
	keyAPI      = "firmware.api"

	keyProtocolMajor = "protocol.major"
	keyProtocolMinor = "protocol.minor"
	keyAPIMajor      = "firmware.api.major"
	keyAPIMinor      = "firmware.api.minor"
)

// DeviceInfo scopes catalog queries to the paired device: the hardware
// target family and the "major.minor" firmware API level.
type DeviceInfo struct {
	Target string
	API    string
}

// checkProtocol reads the firmware protocol revision and compares it to the
// minimum. Missing keys count as revision 0.0.
func (o *Orchestrator) checkProtocol(ctx context.Context, sio session.IO) (bool, error) {
	entries, err := collectProperty(ctx, sio, keyProtocol)
	if err != nil {
		return false, fmt.Errorf("protocol revision read: %w", err)
	}
	var major, minor string
	for key, value := range entries {
		switch key {
		case keyProtocolMajor:
			major = value
		case keyProtocolMinor:
			minor = value
		default:
			log.Warn("apps: unexpected protocol property", "key", key)
		}
	}
	revision := semver.JoinAPI(major, minor)
	return semver.AtLeast(revision, MinProtocolVersion), nil
}

// fetchDeviceInfo reads the hardware target and firmware API level.
//
// The target stream is expected to yield exactly one entry; if firmware
// ever streams more, the last value wins and the anomaly is logged rather
// than treated as an error, to stay forward compatible.
func (o *Orchestrator) fetchDeviceInfo(ctx context.Context, sio session.IO) (DeviceInfo, error) {
	target, err := o.fetchTarget(ctx, sio)
	if err != nil {
		return DeviceInfo{}, err
	}

	api, err := o.fetchAPI(ctx, sio)
	if err != nil {
		return DeviceInfo{}, err
	}

	return DeviceInfo{Target: target, API: api}, nil
}

func (o *Orchestrator) fetchTarget(ctx context.Context, sio session.IO) (string, error) {
	stream, err := sio.Property(ctx, keyTarget)
	if err != nil {
		return "", fmt.Errorf("target read: %w", err)
	}
	entries, err := session.Collect(ctx, stream)
	if err != nil {
		return "", fmt.Errorf("target read: %w", err)
	}
	if len(entries) > 1 {
		log.Warn("apps: target property streamed multiple values, last wins", "count", len(entries))
	}
	target := ""
	for _, e := range entries {
		target = e.Value
	}
	return target, nil
}

// fetchAPI reads the firmware API level: exactly two keys are expected,
// combined into "major.minor" with "0" defaults for an absent key. Any
// other key is a logged anomaly, not a fatal error.
func (o *Orchestrator) fetchAPI(ctx context.Context, sio session.IO) (string, error) {
	entries, err := collectProperty(ctx, sio, keyAPI)
	if err != nil {
		return "", fmt.Errorf("api read: %w", err)
	}
	var major, minor string
	for key, value := range entries {
		switch key {
		case keyAPIMajor:
			major = value
		case keyAPIMinor:
			minor = value
		default:
			log.Warn("apps: unexpected api property", "key", key)
		}
	}
	return semver.JoinAPI(major, minor), nil
}

func collectProperty(ctx context.Context, sio session.IO, key string) (map[string]string, error) {
	stream, err := sio.Property(ctx, key)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]string)
	for {
		p, err := stream.Next(ctx)
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries[p.Key] = p.Value
	}
}

// syncClock pushes the bridge host's clock to the device. Failure is only
// logged; clock sync is a courtesy, not a prerequisite.
func (o *Orchestrator) syncClock(ctx context.Context, sio session.IO) {
	if err := sio.SetDateTime(ctx, time.Now()); err != nil {
		log.Warn("apps: clock sync failed", "error", err)
	}
}

// refreshStorageSummary caches the external storage summary on the device
// identity, where it survives reconnects.
func (o *Orchestrator) refreshStorageSummary(ctx context.Context, sio session.IO) {
	info, err := sio.StorageInfo(ctx, "/ext")
	if err != nil {
		log.Warn("apps: storage summary read failed", "error", err)
		return
	}
	if o.dev != nil {
		o.dev.SetStorageSummary(info)
	}
}
