package ops

import (
	"context"
	"os"
	"time"

	"github.com/yanun0323/logs"

	"renkotrader/internal/obs"
)

// Watch polls path every interval and calls update with each successfully
// reloaded config. A config that fails to load is logged and retried on the
// next change.
func Watch(ctx context.Context, path string, interval time.Duration, update func(Loaded), log logs.Logger) {
	log = obs.Component(log, "config")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				log.Warnf("config stat, err: %+v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			lastMod = info.ModTime()
			loaded, err := Load(path)
			if err != nil {
				log.Errorf("config reload, err: %+v", err)
				continue
			}
			update(loaded)
			log.Infof("config reloaded: %s", path)
		}
	}
}
