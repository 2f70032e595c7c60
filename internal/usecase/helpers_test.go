package usecase

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/V4T54L/worksync/internal/adapter/prompt"
	"github.com/V4T54L/worksync/internal/domain"
	"github.com/V4T54L/worksync/internal/pkg/retry"
)

var fastRetry = retry.Policy{Attempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticPrompts struct{ c *prompt.Catalogue }

func (s staticPrompts) Catalogue() *prompt.Catalogue { return s.c }

func defaultPrompts() PromptSource {
	return staticPrompts{c: prompt.Default()}
}

// waitFor polls cond until it holds or timeout passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func appUsage(employee, app string, secs int64, tier domain.Priority, ts time.Time) domain.Event {
	return domain.NewAppUsageEvent(
		domain.Header{EmployeeID: employee, Priority: tier, Timestamp: ts, DeviceID: "PC-1", Category: "Productivity"},
		domain.AppUsage{AppName: app, DurationSeconds: secs},
	)
}

func security(employee, threat, url string, tier domain.Priority, ts time.Time) domain.Event {
	return domain.NewSecurityEvent(
		domain.Header{EmployeeID: employee, Priority: tier, Timestamp: ts},
		domain.Security{ThreatType: threat, URL: url},
	)
}

func alert(employee, alertType, description string, tier domain.Priority, ts time.Time) domain.Event {
	return domain.NewAlertEvent(
		domain.Header{EmployeeID: employee, Priority: tier, Timestamp: ts, Description: description},
		domain.Alert{AlertType: alertType, Severity: "LOW"},
	)
}
