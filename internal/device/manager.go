// ABOUTME: Creates configured devices, registers them and applies startup connections
// ABOUTME: Failures are logged and skipped so one bad device never stops the daemon
package device

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Resonate-Protocol/hound/internal/config"
	"github.com/Resonate-Protocol/hound/pkg/hound"
)

// Manager owns the daemon's devices
type Manager struct {
	registry *hound.Registry
	opts     Options
	log      *zap.Logger

	mu      sync.Mutex
	devices []Device
}

// NewManager creates a manager registering into r
func NewManager(r *hound.Registry, opts Options) *Manager {
	return &Manager{
		registry: r,
		opts:     opts,
		log:      opts.logger(),
	}
}

// Start creates and registers every device, then makes the configured
// connections. It returns how many devices were added.
func (m *Manager) Start(devices []config.DeviceConfig, conns []config.ConnectionConfig) int {
	added := 0
	for _, cfg := range devices {
		d, err := New(cfg, m.opts)
		if err != nil {
			m.log.Error("failed to create device", zap.String("id", cfg.ID), zap.String("type", cfg.Type), zap.Error(err))
			continue
		}
		if err := m.Add(d); err != nil {
			m.log.Error("failed to add device", zap.String("id", cfg.ID), zap.Error(err))
			continue
		}
		added++
	}

	for _, c := range conns {
		if _, err := m.registry.Connect(c.Source, c.Sink); err != nil {
			m.log.Error("failed to connect",
				zap.String("source", c.Source),
				zap.String("sink", c.Sink),
				zap.Error(err))
		}
	}
	return added
}

// Add registers d. On failure d is closed.
func (m *Manager) Add(d Device) error {
	if err := m.registry.AddDevice(d); err != nil {
		d.Close()
		return err
	}
	m.mu.Lock()
	m.devices = append(m.devices, d)
	m.mu.Unlock()
	return nil
}

// Devices returns the managed devices in creation order
func (m *Manager) Devices() []Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Device(nil), m.devices...)
}

// Close unregisters and closes every device
func (m *Manager) Close() error {
	m.mu.Lock()
	devices := m.devices
	m.devices = nil
	m.mu.Unlock()

	var errs []error
	for _, d := range devices {
		if err := m.registry.RemoveDevice(d.ID()); err != nil {
			errs = append(errs, err)
		}
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
