package integration

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/mkessler-dev/HostPulse/app/models"
)

// health monitor state
var (
	healthStopCh chan struct{}
	healthMu     sync.Mutex
)

// StartHealthMonitor starts a background sweep that probes every registered
// provider and refreshes its stored health row. Probes bypass rate limits
// and breakers so a tripped provider still gets observed.
func StartHealthMonitor(registry *Registry, recorder *Recorder, interval time.Duration) {
	healthMu.Lock()
	defer healthMu.Unlock()
	if healthStopCh != nil {
		return
	}
	if interval <= 0 {
		interval = 60 * time.Second
	}
	stopCh := make(chan struct{})
	healthStopCh = stopCh

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		log.Infof("[Health] monitor started (interval: %s)", interval)

		lastHealthy := make(map[string]bool)
		runHealthSweepOnce(registry, recorder, lastHealthy)

		for {
			select {
			case <-stopCh:
				log.Info("[Health] monitor stopped")
				return
			case <-ticker.C:
				runHealthSweepOnce(registry, recorder, lastHealthy)
			}
		}
	}()
}

// StopHealthMonitor stops the sweep.
func StopHealthMonitor() {
	healthMu.Lock()
	defer healthMu.Unlock()
	if healthStopCh != nil {
		close(healthStopCh)
		healthStopCh = nil
	}
}

func runHealthSweepOnce(registry *Registry, recorder *Recorder, lastHealthy map[string]bool) {
	ctx := context.Background()
	for _, client := range registry.All() {
		result := client.HealthCheck(ctx)
		if !result.Healthy {
			log.Warnf("[Health] %s unhealthy: %s", client.Name(), result.Detail)
		}

		// Alert on the healthy->unhealthy transition only, not every sweep.
		was, seen := lastHealthy[client.Name()]
		if seen && was && !result.Healthy && recorder != nil {
			recorder.RecordAlert(&models.Alert{
				Integration: client.Name(),
				AlertType:   models.AlertTypeHealthDegraded,
				Severity:    models.AlertSeverityWarning,
				Title:       "Health check failing for " + client.Name(),
				Message:     result.Detail,
			})
		}
		lastHealthy[client.Name()] = result.Healthy
	}
}
