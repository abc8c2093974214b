//go:build !linux

package device

import (
	"context"
	"log/slog"

	"stride/internal/logging"
)

// HotplugMonitor is a no-op off Linux; device changes are noticed by polling.
type HotplugMonitor struct {
	logger *slog.Logger
}

// NewHotplugMonitor returns an inert monitor on platforms without udev.
func NewHotplugMonitor(logger *slog.Logger, _ func(ctx context.Context, action string)) *HotplugMonitor {
	return &HotplugMonitor{logger: logging.NewComponentLogger(logger, "hotplug")}
}

// Start logs that hotplug notification is unavailable and returns.
func (m *HotplugMonitor) Start(context.Context) error {
	if m == nil {
		return nil
	}
	m.logger.Debug("hotplug events unavailable on this platform; polling only")
	return nil
}

// Stop is a no-op.
func (m *HotplugMonitor) Stop() {}

// Running always reports false.
func (m *HotplugMonitor) Running() bool { return false }
