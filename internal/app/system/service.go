package system

import (
	"context"
	"fmt"
	"sync"
)

// Service represents a lifecycle-managed component. Application modules
// implement this interface so the manager can start and stop them
// deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NoopService satisfies Service for modules with no background work.
type NoopService struct {
	ServiceName string
}

func (s NoopService) Name() string                { return s.ServiceName }
func (s NoopService) Start(context.Context) error { return nil }
func (s NoopService) Stop(context.Context) error  { return nil }

// Manager starts registered services in registration order and stops them in
// reverse.
type Manager struct {
	mu       sync.Mutex
	services []Service
	names    map[string]struct{}
	started  bool
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{names: make(map[string]struct{})}
}

// Register adds a service. Names must be unique, and registration is closed
// once Start has run.
func (m *Manager) Register(svc Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("cannot register %s: manager already started", svc.Name())
	}
	if _, exists := m.names[svc.Name()]; exists {
		return fmt.Errorf("service %s already registered", svc.Name())
	}
	m.names[svc.Name()] = struct{}{}
	m.services = append(m.services, svc)
	return nil
}

// Start starts all services in order. On failure, already-started services
// are stopped in reverse before returning.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}
	for i, svc := range m.services {
		if err := svc.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = m.services[j].Stop(ctx)
			}
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
	}
	m.started = true
	return nil
}

// Stop stops all services in reverse registration order, returning the first
// error encountered while still stopping the rest.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	var firstErr error
	for i := len(m.services) - 1; i >= 0; i-- {
		if err := m.services[i].Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop %s: %w", m.services[i].Name(), err)
		}
	}
	m.started = false
	return firstErr
}
