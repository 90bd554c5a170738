package health

import (
	"context"
	"errors"
	"testing"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func ok() Pinger     { return pingerFunc(func(context.Context) error { return nil }) }
func broken() Pinger { return pingerFunc(func(context.Context) error { return errors.New("down") }) }

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		database Pinger
		broker   Pinger
		want     Status
	}{
		{"all healthy", ok(), ok(), StatusHealthy},
		{"broker down degrades", ok(), broken(), StatusDegraded},
		{"database down fails", broken(), ok(), StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(tt.database)
			c.Register("broker", tt.broker)

			report := c.Check(context.Background())
			if report.Status != tt.want {
				t.Errorf("status = %s, want %s", report.Status, tt.want)
			}
			if len(report.Components) != 2 {
				t.Errorf("expected 2 components, got %d", len(report.Components))
			}
		})
	}
}

func TestLiveness(t *testing.T) {
	c := NewChecker(broken())
	if c.Liveness().Status != StatusHealthy {
		t.Error("expected liveness to ignore dependencies")
	}
}
