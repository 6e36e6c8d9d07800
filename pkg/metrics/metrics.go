// Package metrics exposes the bridge's Prometheus instruments. Instruments
// are registered on the default registry at init time; cmd/bridge serves
// them over promhttp when a metrics address is configured.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesSent counts protocol frames written to the device link.
	FramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_frames_sent_total",
		Help: "Protocol frames written to the device link.",
	})

	// FramesReceived counts protocol frames read from the device link.
	FramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_frames_received_total",
		Help: "Protocol frames read from the device link.",
	})

	// TransferBytes counts payload bytes moved to or from device storage.
	TransferBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_storage_transfer_bytes_total",
		Help: "Payload bytes moved to or from device storage.",
	}, []string{"direction"})

	// Reconnects counts transport reconnections observed by the paired device.
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_transport_reconnects_total",
		Help: "Transport reconnections observed by the paired device.",
	})

	// SessionLive reports whether a live session is currently bound.
	SessionLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_session_live",
		Help: "1 while a live device session is bound, 0 otherwise.",
	})

	// AppOperations counts finished application operations by kind and result.
	AppOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_app_operations_total",
		Help: "Finished application operations by kind and result.",
	}, []string{"kind", "result"})
)
