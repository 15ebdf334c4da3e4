// Package audit records inference call inputs and outcomes for
// observability. The sink is append-only and best-effort: a failed
// write is logged and swallowed so it can never abort an enrichment.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/store"
)

// Logger appends audit entries for inference calls.
type Logger struct {
	store store.Store
	// keepResponses controls whether raw model output is persisted.
	keepResponses bool
}

// New creates an audit logger backed by the store.
func New(s store.Store, keepResponses bool) *Logger {
	return &Logger{store: s, keepResponses: keepResponses}
}

// Record appends one inference call outcome. Never returns an error.
func (l *Logger) Record(ctx context.Context, prospectID, useCase, modelID, promptText, response string, callErr error, latency time.Duration) {
	entry := model.AuditEntry{
		ProspectID:    prospectID,
		UseCase:       useCase,
		Model:         modelID,
		PromptChars:   len(promptText),
		ResponseChars: len(response),
		Success:       callErr == nil,
		LatencyMS:     latency.Milliseconds(),
		CreatedAt:     time.Now().UTC(),
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	if l.keepResponses {
		entry.Response = response
	}

	if err := l.store.AppendAudit(ctx, entry); err != nil {
		zap.L().Warn("audit write failed",
			zap.String("prospect_id", prospectID),
			zap.String("use_case", useCase),
			zap.Error(err),
		)
	}
}
