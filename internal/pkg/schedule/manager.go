package schedule

import (
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"github.com/markverse/replenish/internal/pkg/cache"
	"github.com/markverse/replenish/internal/pkg/env"
)

// Manager manages the global schedule engine
type Manager struct {
	engine  *Engine
	mu      sync.Mutex
	running bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global schedule engine manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workers := 5
		if v, err := strconv.Atoi(env.GetEnv("SCHEDULE_WORKER_COUNT", "")); err == nil && v > 0 {
			workers = v
		}

		globalManager = &Manager{
			engine: NewEngine(cache.GetClient(), RetryPolicyFromEnv(), workers),
		}
	})
	return globalManager
}

// GetEngine returns the managed schedule engine
func (m *Manager) GetEngine() *Engine {
	return m.engine
}

// Start starts the schedule engine
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	log.Info("[Schedule Manager] Starting schedule engine")
	if err := m.engine.Start(); err != nil {
		return err
	}
	m.running = true
	log.Info("[Schedule Manager] Started successfully")
	return nil
}

// Stop stops the schedule engine
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Schedule Manager] Stopping schedule engine...")
	m.engine.Stop()
	m.running = false
	log.Info("[Schedule Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
