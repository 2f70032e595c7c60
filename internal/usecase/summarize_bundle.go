package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/V4T54L/worksync/internal/adapter/metrics"
	"github.com/V4T54L/worksync/internal/adapter/prompt"
	"github.com/V4T54L/worksync/internal/domain"
	"github.com/V4T54L/worksync/internal/pkg/retry"
)

// PromptSource supplies the current prompt catalogue.
type PromptSource interface {
	Catalogue() *prompt.Catalogue
}

// securityLabels are human labels for well-known security metadata keys.
var securityLabels = map[string]string{
	"riskScore":       "Risk Score (risk level assigned by the detection engine)",
	"geoLocation":     "Geo Location (location of the threat source)",
	"redirectCount":   "Redirect Count (number of redirects detected)",
	"blockReason":     "Block Reason (reason the event was blocked)",
	"detectionEngine": "Detection Engine (engine that detected the threat)",
}

// SummarizeBundleUseCase turns an aggregated bundle into a narrative summary.
type SummarizeBundleUseCase struct {
	gateway domain.Completer
	prompts PromptSource
	retry   retry.Policy
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewSummarizeBundleUseCase(gateway domain.Completer, prompts PromptSource, policy retry.Policy, m *metrics.Metrics, logger *slog.Logger) *SummarizeBundleUseCase {
	return &SummarizeBundleUseCase{
		gateway: gateway,
		prompts: prompts,
		retry:   policy,
		metrics: m,
		logger:  logger.With("component", "summarize_bundle"),
	}
}

// Summarize returns a language model summary of the bundle, or the template
// summary when the gateway fails or answers blank. The result is never empty.
func (uc *SummarizeBundleUseCase) Summarize(ctx context.Context, bundle *domain.AggregatedBundle) string {
	req, err := uc.prompts.Catalogue().Summary.Request(map[string]any{
		"Employee":  displayName(bundle),
		"Narrative": Narrative(bundle),
	})
	if err != nil {
		uc.logger.Error("failed to render summary prompt", "error", err, "employee_id", bundle.EmployeeID)
		uc.metrics.ObserveSummary("fallback")
		return FallbackSummary(bundle)
	}

	summary, err := retry.DoValue(ctx, uc.retry, func(ctx context.Context) (string, error) {
		return uc.gateway.Complete(ctx, req)
	})
	if err != nil {
		uc.logger.Warn("summary generation failed, using template", "error", err, "employee_id", bundle.EmployeeID)
		uc.metrics.ObserveSummary("fallback")
		return FallbackSummary(bundle)
	}
	if summary = strings.TrimSpace(summary); summary == "" {
		uc.logger.Warn("gateway returned an empty summary, using template", "employee_id", bundle.EmployeeID)
		uc.metrics.ObserveSummary("fallback")
		return FallbackSummary(bundle)
	}

	uc.metrics.ObserveSummary("llm")
	return summary
}

// Narrative renders every attribute of every event in the bundle.
func Narrative(b *domain.AggregatedBundle) string {
	var sb strings.Builder

	sb.WriteString("=== EMPLOYEE WORK SESSION ===\n")
	fmt.Fprintf(&sb, "Employee: %s\n", displayName(b))
	fmt.Fprintf(&sb, "Employee ID: %s\n", b.EmployeeID)
	if ids := b.SortedDeviceIDs(); len(ids) > 0 {
		fmt.Fprintf(&sb, "Device IDs: %s\n", strings.Join(ids, ", "))
	}
	if cats := b.SortedCategories(); len(cats) > 0 {
		fmt.Fprintf(&sb, "Activity Categories: %s\n", strings.Join(cats, ", "))
	}

	if len(b.AppUsageEvents) > 0 {
		sb.WriteString("\n=== APPLICATION USAGE ===\n")
		fmt.Fprintf(&sb, "Total Sessions: %d\n", len(b.AppUsageEvents))
		durations := b.AppDurations()
		for _, app := range sortedMapKeys(durations) {
			fmt.Fprintf(&sb, "\nApplication: %s\n", app)
			fmt.Fprintf(&sb, "  - Total Usage Time: %s\n", FormatSeconds(durations[app]))
			for _, e := range b.AppUsageEvents {
				if e.AppName != app {
					continue
				}
				sb.WriteString("  - Session:\n")
				fmt.Fprintf(&sb, "    * Duration: %s (%d seconds)\n", FormatSeconds(e.DurationSeconds), e.DurationSeconds)
				writeCommon(&sb, "    * ", e)
			}
		}
	} else {
		sb.WriteString("\nNo application activity recorded.\n")
	}

	if len(b.SecurityEvents) > 0 {
		sb.WriteString("\n=== SECURITY EVENTS ===\n")
		fmt.Fprintf(&sb, "Total Security Events: %d\n", len(b.SecurityEvents))
		for _, e := range b.SecurityEvents {
			sb.WriteString("\nSecurity Event:\n")
			fmt.Fprintf(&sb, "  - Threat Type: %s\n", e.ThreatType)
			if e.URL != "" {
				fmt.Fprintf(&sb, "  - URL: %s\n", e.URL)
			}
			writeCommon(&sb, "  - ", e)
		}
	} else {
		sb.WriteString("\nNo security events recorded.\n")
	}

	if len(b.AlertEvents) > 0 {
		sb.WriteString("\n=== ALERTS ===\n")
		fmt.Fprintf(&sb, "Total Alerts: %d\n", len(b.AlertEvents))
		for _, e := range b.AlertEvents {
			sb.WriteString("\nAlert:\n")
			fmt.Fprintf(&sb, "  - Alert Type: %s\n", e.AlertType)
			if e.Severity != "" {
				fmt.Fprintf(&sb, "  - Severity: %s\n", e.Severity)
			}
			writeCommon(&sb, "  - ", e)
		}
	} else {
		sb.WriteString("\nNo system alerts recorded.\n")
	}

	return sb.String()
}

func writeCommon(sb *strings.Builder, prefix string, e domain.Event) {
	fmt.Fprintf(sb, "%sEvent ID: %s\n", prefix, e.ID)
	fmt.Fprintf(sb, "%sTimestamp: %s\n", prefix, e.Timestamp.UTC().Format(time.RFC3339))
	if e.DeviceID != "" {
		fmt.Fprintf(sb, "%sDevice ID: %s\n", prefix, e.DeviceID)
	}
	if e.Category != "" {
		fmt.Fprintf(sb, "%sCategory: %s\n", prefix, e.Category)
	}
	fmt.Fprintf(sb, "%sPriority: %s\n", prefix, e.Priority)
	if e.Description != "" {
		fmt.Fprintf(sb, "%sDescription: %s\n", prefix, e.Description)
	}
	if len(e.Metadata) == 0 {
		return
	}
	fmt.Fprintf(sb, "%sMetadata:\n", prefix)
	for _, k := range sortedMapKeys(e.Metadata) {
		label := k
		if e.EventType == domain.EventTypeSecurity {
			if l, ok := securityLabels[k]; ok {
				label = l
			}
		}
		fmt.Fprintf(sb, "%s  %s: %v\n", prefix, label, e.Metadata[k])
	}
}

// FallbackSummary is the deterministic summary used when the gateway cannot
// produce one.
func FallbackSummary(b *domain.AggregatedBundle) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Employee Activity Report: %s (ID: %s)", displayName(b), b.EmployeeID)

	switch ids := b.SortedDeviceIDs(); len(ids) {
	case 0:
	case 1:
		fmt.Fprintf(&sb, "\n\nWorkstation Information: Activity recorded on device %s.", ids[0])
	default:
		fmt.Fprintf(&sb, "\n\nWorkstation Information: Activity recorded across multiple devices: %s.", strings.Join(ids, ", "))
	}

	sb.WriteString("\n\nApplication Usage: ")
	if durations := b.AppDurations(); len(durations) > 0 {
		noun := "applications"
		if len(durations) == 1 {
			noun = "application"
		}
		fmt.Fprintf(&sb, "Used %d %s during this session.", len(durations), noun)
		for _, app := range sortedMapKeys(durations) {
			fmt.Fprintf(&sb, "\n- %s: %s", app, FormatSeconds(durations[app]))
		}
	} else {
		sb.WriteString("No application activity recorded.")
	}

	if len(b.SecurityEvents) == 0 {
		sb.WriteString("\n\nSecurity Events: No security events recorded.")
	}
	for _, e := range b.SecurityEvents {
		sb.WriteString("\n\nSecurity Incident Report")
		fmt.Fprintf(&sb, "\nTimestamp: %s", e.Timestamp.UTC().Format(time.RFC3339))
		if e.DeviceID != "" {
			fmt.Fprintf(&sb, "\nAffected Device: %s", e.DeviceID)
		}
		if e.Category != "" {
			fmt.Fprintf(&sb, "\nIncident Category: %s", e.Category)
		}
		fmt.Fprintf(&sb, "\nThreat Classification: %s", e.ThreatType)
		if e.URL != "" {
			fmt.Fprintf(&sb, "\nTarget URL: %s", e.URL)
		}
		fmt.Fprintf(&sb, "\nIncident Priority: %s", e.Priority)
		if len(e.Metadata) > 0 {
			sb.WriteString("\n\nTechnical Analysis:")
			for _, k := range sortedMapKeys(e.Metadata) {
				fmt.Fprintf(&sb, "\n- %s", technicalDetail(k, e.Metadata[k]))
			}
		}
	}

	if len(b.AlertEvents) == 0 {
		sb.WriteString("\n\nSystem Alerts: No system alerts recorded.")
	}
	for _, e := range b.AlertEvents {
		sb.WriteString("\n\nSystem Alert")
		fmt.Fprintf(&sb, "\nTimestamp: %s", e.Timestamp.UTC().Format(time.RFC3339))
		if e.DeviceID != "" {
			fmt.Fprintf(&sb, "\nSource Device: %s", e.DeviceID)
		}
		fmt.Fprintf(&sb, "\nAlert Classification: %s", e.AlertType)
		if e.Severity != "" {
			fmt.Fprintf(&sb, "\nSeverity Level: %s", e.Severity)
		}
		if e.Description != "" {
			fmt.Fprintf(&sb, "\nDescription: %s", e.Description)
		}
		fmt.Fprintf(&sb, "\nPriority Rating: %s", e.Priority)
	}

	return sb.String()
}

func technicalDetail(key string, value any) string {
	switch key {
	case "riskScore":
		return fmt.Sprintf("Threat Risk Score: %v/10", value)
	case "geoLocation":
		return fmt.Sprintf("Geographic Origin: %v", value)
	case "redirectCount":
		return fmt.Sprintf("Redirect Chain Length: %v", value)
	case "blockReason":
		return fmt.Sprintf("Prevention Action: Blocked - %v", value)
	case "detectionEngine":
		return fmt.Sprintf("Detection Method: %v", value)
	}
	return fmt.Sprintf("%s: %v", key, value)
}

// FormatSeconds renders a duration in seconds as "Xh Ym", "Ym" or "< 1m".
// It works on raw seconds so any int64 is safe.
func FormatSeconds(secs int64) string {
	hours := secs / 3600
	minutes := (secs % 3600) / 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	}
	return "< 1m"
}

func displayName(b *domain.AggregatedBundle) string {
	if strings.TrimSpace(b.EmployeeName) != "" {
		return b.EmployeeName
	}
	return "Employee " + b.EmployeeID
}

func sortedMapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
