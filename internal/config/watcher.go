package config

import (
	"os"
	"time"

	"flipper-bridge/pkg/log"
)

// watchInterval is how often the config file's modification time is polled.
const watchInterval = 5 * time.Second

// Watch polls the config file and invokes onChange with the freshly loaded
// configuration whenever the file's modification time moves. It blocks
// until stop is closed; run it in its own goroutine.
func Watch(path string, onChange func(*Config), stop <-chan struct{}) {
	var lastMod time.Time
	if fi, err := os.Stat(path); err == nil {
		lastMod = fi.ModTime()
	}

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		fi, err := os.Stat(path)
		if err != nil {
			continue
		}
		if !fi.ModTime().After(lastMod) {
			continue
		}
		lastMod = fi.ModTime()

		cfg, err := LoadConfig(path)
		if err != nil {
			log.Warn("config: reload failed", "path", path, "error", err)
			continue
		}
		log.Info("config: reloaded", "path", path)
		onChange(cfg)
	}
}
