// Package health reports service liveness and readiness.
package health

import (
	"context"
	"time"
)

// Status is the overall or per-component state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const checkTimeout = 5 * time.Second

// Pinger is a dependency that can be probed.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ComponentReport is the result of one probe.
type ComponentReport struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report is the response of a health endpoint.
type Report struct {
	Status     Status                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentReport `json:"components,omitempty"`
}

type component struct {
	name     string
	pinger   Pinger
	critical bool
}

// Checker probes registered components.
type Checker struct {
	started    time.Time
	components []component
}

// NewChecker creates a checker with the database as its critical component.
func NewChecker(database Pinger) *Checker {
	c := &Checker{started: time.Now()}
	if database != nil {
		c.components = append(c.components, component{name: "database", pinger: database, critical: true})
	}
	return c
}

// Register adds a non-critical component. Its failure degrades the report
// without failing readiness.
func (c *Checker) Register(name string, p Pinger) {
	c.components = append(c.components, component{name: name, pinger: p})
}

// Check probes every component.
func (c *Checker) Check(ctx context.Context) Report {
	report := Report{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC(),
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Components: make(map[string]ComponentReport, len(c.components)),
	}

	for _, comp := range c.components {
		pctx, cancel := context.WithTimeout(ctx, checkTimeout)
		start := time.Now()
		err := comp.pinger.PingContext(pctx)
		cancel()

		cr := ComponentReport{Status: StatusHealthy, Latency: time.Since(start).String()}
		if err != nil {
			cr.Status = StatusUnhealthy
			cr.Message = err.Error()
			if comp.critical {
				report.Status = StatusUnhealthy
			} else if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
		report.Components[comp.name] = cr
	}
	return report
}

// Liveness reports that the process is running.
func (c *Checker) Liveness() Report {
	return Report{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(c.started).Round(time.Second).String(),
	}
}
