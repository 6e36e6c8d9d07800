package main

import (
	"flag"
	"fmt"
	"os"

	"flipper-bridge/internal/bridge"
	"flipper-bridge/internal/config"
	"flipper-bridge/pkg/log"
)

func main() {
	configPath := flag.String("config", "/etc/flipper-bridge/config.yaml", "Path to the configuration file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log.InitLog(cfg.LogLevel)
	log.Info("bridge starting", "version", version, "device", cfg.DeviceAddress, "catalog", cfg.CatalogURL)

	b := bridge.New(cfg)
	b.WatchConfig(*configPath)
	defer b.Close()

	b.WaitForSignal()
	log.Info("bridge stopping")
}
