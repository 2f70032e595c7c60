package pii

import (
	"log/slog"
	"strings"

	"github.com/V4T54L/worksync/internal/domain"
)

const RedactedPlaceholder = "[REDACTED]"

// Redactor is responsible for redacting sensitive information from event metadata.
type Redactor struct {
	fieldsToRedact map[string]struct{} // lower-cased for case-insensitive lookups
	logger         *slog.Logger
}

// NewRedactor creates a new Redactor instance with a given set of fields to redact.
func NewRedactor(fields []string, logger *slog.Logger) *Redactor {
	fieldSet := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		field = strings.ToLower(strings.TrimSpace(field))
		if field == "" {
			continue
		}
		fieldSet[field] = struct{}{}
	}
	return &Redactor{
		fieldsToRedact: fieldSet,
		logger:         logger,
	}
}

// Redact replaces configured metadata keys, at any nesting depth, with the
// placeholder. The event gets a fresh metadata map so the producer's map is
// never mutated.
func (r *Redactor) Redact(event *domain.Event) {
	if len(r.fieldsToRedact) == 0 || len(event.Metadata) == 0 {
		return
	}

	redacted, changed := r.redactMap(event.Metadata)
	if changed {
		event.Metadata = redacted
		event.PIIRedacted = true
		r.logger.Debug("redacted PII from event metadata", "event_id", event.ID)
	}
}

func (r *Redactor) redactMap(in map[string]any) (map[string]any, bool) {
	out := make(map[string]any, len(in))
	changed := false
	for k, v := range in {
		if _, ok := r.fieldsToRedact[strings.ToLower(k)]; ok {
			out[k] = RedactedPlaceholder
			changed = true
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			nv, nchanged := r.redactMap(nested)
			out[k] = nv
			changed = changed || nchanged
			continue
		}
		out[k] = v
	}
	return out, changed
}
