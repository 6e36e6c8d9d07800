// Package bridge wires the daemon together: configuration, the device
// connector, the catalog client, the orchestrator and the metrics listener.
package bridge

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flipper-bridge/internal/apps"
	"flipper-bridge/internal/catalog"
	"flipper-bridge/internal/config"
	"flipper-bridge/internal/device"
	"flipper-bridge/pkg/log"
)

// Bridge is the assembled daemon.
type Bridge struct {
	cfg       *config.Config
	connector *device.TCPConnector
	dev       *device.Device
	orch      *apps.Orchestrator

	stopWatch chan struct{}
}

// New assembles a bridge from configuration. The connector starts dialing
// immediately; the orchestrator reacts as soon as the device appears.
func New(cfg *config.Config) *Bridge {
	connector := device.DialTCP(cfg.DeviceAddress)
	dev := device.New(connector)
	orch := apps.New(catalog.NewClient(cfg.CatalogURL), dev)

	b := &Bridge{
		cfg:       cfg,
		connector: connector,
		dev:       dev,
		orch:      orch,
		stopWatch: make(chan struct{}),
	}

	if cfg.MetricsAddress != "" {
		go b.serveMetrics(cfg.MetricsAddress)
	}
	return b
}

// Device returns the paired-device slot.
func (b *Bridge) Device() *device.Device { return b.dev }

// Orchestrator returns the application-lifecycle orchestrator.
func (b *Bridge) Orchestrator() *apps.Orchestrator { return b.orch }

// WatchConfig re-applies reloadable settings when the config file changes.
// Only the log level is reloadable; address changes need a restart.
func (b *Bridge) WatchConfig(path string) {
	go config.Watch(path, func(cfg *config.Config) {
		log.InitLog(cfg.LogLevel)
	}, b.stopWatch)
}

func (b *Bridge) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("bridge: metrics listener started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("bridge: metrics listener failed", "addr", addr, "error", err)
	}
}

// WaitForSignal blocks until an interrupt or termination signal arrives.
func (b *Bridge) WaitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
}

// Close shuts down the daemon components in dependency order.
func (b *Bridge) Close() {
	close(b.stopWatch)
	b.orch.Close()
	b.dev.Forget()
	b.connector.Close()
}
