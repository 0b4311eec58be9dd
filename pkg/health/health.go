package health

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/logger"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component is working but with reduced functionality
	StatusDegraded Status = "degraded"
)

// Component represents a runtime component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check represents a health check function
type Check func() (Status, string, error)

// Checker manages health checks for the session runtime. The push channel is
// the only critical component: a dead cache or a momentarily unreachable
// narrator REST API degrades the view, it does not take the session down.
type Checker struct {
	checks      map[string]Check
	components  map[string]*Component
	checkPeriod time.Duration
	mutex       sync.RWMutex
	log         *logger.Logger
}

// NewChecker creates a new health checker
func NewChecker(log *logger.Logger, checkPeriod time.Duration) *Checker {
	checker := &Checker{
		checks:      make(map[string]Check),
		components:  make(map[string]*Component),
		checkPeriod: checkPeriod,
		log:         log.WithComponent("health"),
	}

	checker.RegisterCheck("self", func() (Status, string, error) {
		return StatusUp, "Health checker is running", nil
	})

	return checker
}

// RegisterCheck registers a new health check
func (c *Checker) RegisterCheck(name string, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.checks[name] = check
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Description: "Not checked yet",
		LastChecked: time.Time{},
	}
}

// RunChecks executes all registered health checks
func (c *Checker) RunChecks() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for name, check := range c.checks {
		status, description, err := check()

		component := c.components[name]
		component.Status = status
		component.Description = description
		component.LastChecked = time.Now()

		if err != nil {
			component.Error = err.Error()
			c.log.Warn("health check failed",
				"component", name,
				"status", string(status),
				"error", err.Error(),
			)
		} else {
			component.Error = ""
		}
	}
}

// Start begins periodic health checks
func (c *Checker) Start() {
	go func() {
		c.RunChecks()

		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()

		for range ticker.C {
			c.RunChecks()
		}
	}()
}

// GetStatus returns a copy of the current component statuses
func (c *Checker) GetStatus() map[string]*Component {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make(map[string]*Component, len(c.components))
	for k, v := range c.components {
		componentCopy := *v
		result[k] = &componentCopy
	}
	return result
}

// Healthy reports whether the push channel is up. Other components only
// degrade the view.
func (c *Checker) Healthy() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if component, ok := c.components["push-channel"]; ok {
		return component.Status != StatusDown
	}
	return true
}

// RegisterPushChannelCheck reports the live connection status. Reconnecting
// counts as degraded, not down: the transport recovers on its own.
func (c *Checker) RegisterPushChannelCheck(status func() string) {
	c.RegisterCheck("push-channel", func() (Status, string, error) {
		s := status()
		switch s {
		case "connected":
			return StatusUp, "Push channel connected", nil
		case "connecting", "reconnecting":
			return StatusDegraded, fmt.Sprintf("Push channel %s", s), nil
		default:
			return StatusDown, "Push channel disconnected", fmt.Errorf("status %q", s)
		}
	})
}

// RegisterCacheCheck registers a timeline cache reachability check
func (c *Checker) RegisterCacheCheck(checkFunc func() error) {
	c.RegisterCheck("timeline-cache", func() (Status, string, error) {
		if err := checkFunc(); err != nil {
			return StatusDegraded, "Timeline cache unreachable", err
		}
		return StatusUp, "Timeline cache reachable", nil
	})
}

// RegisterNarratorCheck registers a narrator REST reachability check
func (c *Checker) RegisterNarratorCheck(endpoint string, client *http.Client) {
	if client == nil {
		client = http.DefaultClient
	}

	c.RegisterCheck("narrator-api", func() (Status, string, error) {
		start := time.Now()
		resp, err := client.Get(endpoint)
		elapsed := time.Since(start)

		if err != nil {
			return StatusDegraded, "Narrator API request failed", err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return StatusDegraded, fmt.Sprintf("Narrator API returned status %d", resp.StatusCode),
				fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		return StatusUp, fmt.Sprintf("Narrator API responding (latency: %s)", elapsed), nil
	})
}
