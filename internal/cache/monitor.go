package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
)

// Monitor periodically pings Redis and updates Client.Healthy.
type Monitor struct {
	scheduler *gocron.Scheduler
	client    *Client
	interval  time.Duration
}

// NewMonitor creates a monitor that checks c every interval.
func NewMonitor(c *Client, interval time.Duration) *Monitor {
	return &Monitor{
		scheduler: gocron.NewScheduler(time.UTC),
		client:    c,
		interval:  interval,
	}
}

// Start schedules the health check and runs it in the background.
func (m *Monitor) Start() error {
	if _, err := m.scheduler.Every(m.interval).Do(m.check); err != nil {
		return fmt.Errorf("failed to schedule redis health check: %w", err)
	}
	m.scheduler.StartAsync()
	return nil
}

// Stop halts the scheduler.
func (m *Monitor) Stop() {
	m.scheduler.Stop()
}

func (m *Monitor) check() {
	timeout := m.client.opts.DialTimeout
	if timeout <= 0 || timeout > m.interval {
		timeout = m.interval
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	m.client.CheckHealth(ctx)
}

// CheckHealth pings Redis once and records the result. State changes are
// logged.
func (c *Client) CheckHealth(ctx context.Context) bool {
	err := c.rdb.Ping(ctx).Err()
	healthy := err == nil
	if was := c.healthy.Swap(healthy); was != healthy {
		if healthy {
			c.log.Info("Redis is reachable again")
		} else {
			c.warn("Redis health check failed", err)
		}
	}
	return healthy
}
