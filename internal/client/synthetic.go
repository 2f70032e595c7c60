package client

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/worksync/internal/domain"
)

var (
	syntheticApps    = []string{"Chrome", "Slack", "VS Code", "Excel", "Zoom", "Outlook"}
	syntheticThreats = []string{"PHISHING", "MALWARE", "SUSPICIOUS_DOWNLOAD", "DATA_EXFILTRATION"}
	syntheticAlerts  = []string{"DISK_FULL", "HIGH_CPU", "USB_INSERTED", "VPN_DISCONNECTED"}
	syntheticTiers   = []domain.Priority{domain.PriorityCritical, domain.PriorityHigh, domain.PriorityHigh, domain.PriorityNormal, domain.PriorityNormal, domain.PriorityNormal}
)

// Generator produces plausible random events for demos and load tests.
type Generator struct {
	rng       *rand.Rand
	employees int
	now       func() time.Time
}

// NewGenerator returns a generator over employees EMP001..EMPnnn. The same
// seed yields the same sequence of events, apart from ids.
func NewGenerator(seed uint64, employees int) *Generator {
	if employees < 1 {
		employees = 1
	}
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), employees: employees, now: time.Now}
}

// Next returns an event of type t, or of a random type when t is empty.
func (g *Generator) Next(t domain.EventType) domain.Event {
	if t == "" {
		t = domain.EventTypes[g.rng.IntN(len(domain.EventTypes))]
	}
	n := g.rng.IntN(g.employees) + 1
	h := domain.Header{
		ID:           uuid.NewString(),
		Timestamp:    g.now().UTC().Add(-time.Duration(g.rng.IntN(3600)) * time.Second),
		EmployeeID:   fmt.Sprintf("EMP%03d", n),
		EmployeeName: fmt.Sprintf("Employee %d", n),
		DeviceID:     fmt.Sprintf("PC-%03d", n),
		Priority:     pick(g.rng, syntheticTiers),
	}

	switch t {
	case domain.EventTypeSecurity:
		h.Category = "Security"
		h.Description = "Blocked request flagged by the endpoint agent"
		h.Metadata = map[string]any{"riskScore": g.rng.IntN(10) + 1}
		return domain.NewSecurityEvent(h, domain.Security{
			ThreatType: pick(g.rng, syntheticThreats),
			URL:        fmt.Sprintf("http://suspicious-%d.example", g.rng.IntN(100)),
		})
	case domain.EventTypeAlert:
		h.Category = "System"
		alert := pick(g.rng, syntheticAlerts)
		h.Description = "Agent raised " + alert
		return domain.NewAlertEvent(h, domain.Alert{AlertType: alert, Severity: pick(g.rng, []string{"LOW", "MEDIUM", "HIGH"})})
	default:
		h.Category = "Productivity"
		return domain.NewAppUsageEvent(h, domain.AppUsage{
			AppName:         pick(g.rng, syntheticApps),
			DurationSeconds: int64(g.rng.IntN(3600) + 1),
		})
	}
}

func pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.IntN(len(items))]
}
