package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/worksync/internal/domain"
)

func TestPayloadCodec(t *testing.T) {
	h := domain.Header{ID: "e1", EmployeeID: "EMP001", Priority: domain.PriorityNormal, Timestamp: time.Now().UTC()}

	tests := []struct {
		name  string
		event domain.Event
	}{
		{"app usage", domain.NewAppUsageEvent(h, domain.AppUsage{AppName: "Chrome", DurationSeconds: 3600})},
		{"security", domain.NewSecurityEvent(h, domain.Security{URL: "http://x", ThreatType: "MALWARE"})},
		{"alert", domain.NewAlertEvent(h, domain.Alert{AlertType: "CPU_HIGH", Severity: "WARN"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := encodePayload(tt.event)
			require.NoError(t, err)

			got, err := decodePayload(tt.event.Header, payload)
			require.NoError(t, err)
			assert.Equal(t, tt.event, got)
		})
	}

	t.Run("missing payload", func(t *testing.T) {
		_, err := encodePayload(domain.Event{Header: domain.Header{ID: "x", EventType: domain.EventTypeAlert}})
		assert.Error(t, err)
	})
}
