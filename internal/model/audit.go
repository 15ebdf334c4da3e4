package model

import "time"

// AuditEntry is one appended record of an inference call. Entries are
// observability only; failing to write one never aborts enrichment.
type AuditEntry struct {
	ID            string    `json:"id"`
	ProspectID    string    `json:"prospect_id"`
	UseCase       string    `json:"use_case"` // title_enhancement, value_parsing, naics_classification, set_aside
	Model         string    `json:"model"`
	PromptChars   int       `json:"prompt_chars"`
	ResponseChars int       `json:"response_chars"`
	Response      string    `json:"response,omitempty"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	LatencyMS     int64     `json:"latency_ms"`
	CreatedAt     time.Time `json:"created_at"`
}
