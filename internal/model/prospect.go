package model

import (
	"time"
)

// NaicsSource tags where a prospect's industry code came from.
type NaicsSource string

const (
	// NaicsSourceOriginal marks a code provided by the upstream data
	// source. Original codes are never overwritten by classification.
	NaicsSourceOriginal NaicsSource = "original"
	// NaicsSourceInferred marks a code produced by LLM classification.
	NaicsSourceInferred NaicsSource = "llm_inferred"
)

// LockStatus is the persisted enhancement-lock state of a prospect.
type LockStatus string

const (
	LockIdle       LockStatus = "idle"
	LockInProgress LockStatus = "in_progress"
)

// Prospect is a procurement opportunity record being enriched. The
// engine mutates enhancement fields only; the record itself is owned by
// the store.
type Prospect struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Agency       string `json:"agency,omitempty"`
	ContractType string `json:"contract_type,omitempty"`

	// AI-derived title. Empty until the title kind has run.
	EnhancedTitle string `json:"enhanced_title,omitempty"`

	// Contract value fields. EstimatedValueText is the raw text from the
	// source; the parsed fields hold either a single value or a complete
	// min/max pair, never half a range.
	EstimatedValueText   string   `json:"estimated_value_text,omitempty"`
	EstimatedValueSingle *float64 `json:"estimated_value_single,omitempty"`
	EstimatedValueMin    *float64 `json:"estimated_value_min,omitempty"`
	EstimatedValueMax    *float64 `json:"estimated_value_max,omitempty"`

	NaicsCode        string      `json:"naics_code,omitempty"`
	NaicsDescription string      `json:"naics_description,omitempty"`
	NaicsSource      NaicsSource `json:"naics_source,omitempty"`

	// SetAside is the source's free-form eligibility text; the standard
	// fields hold the matched category.
	SetAside         string `json:"set_aside,omitempty"`
	SetAsideStandard string `json:"set_aside_standard,omitempty"`
	SetAsideLabel    string `json:"set_aside_label,omitempty"`

	// Extra carries free-form provenance annotations (original-value
	// backups, classification confidence, backfill sources, historical
	// fields from upstream feeds).
	Extra map[string]any `json:"extra,omitempty"`

	// Enhancement lock triple. Status is in_progress iff exactly one
	// scheduler execution owns the record, and StartedAt is set iff the
	// status is in_progress.
	EnhancementStatus    LockStatus `json:"enhancement_status,omitempty"`
	EnhancementUserID    string     `json:"enhancement_user_id,omitempty"`
	EnhancementStartedAt *time.Time `json:"enhancement_started_at,omitempty"`

	LastEnhancedAt *time.Time `json:"last_enhanced_at,omitempty"`
	ModelVersion   string     `json:"model_version,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Locked reports whether the prospect currently carries an enhancement lock.
func (p *Prospect) Locked() bool {
	return p.EnhancementStatus == LockInProgress
}

// SetExtra writes a provenance annotation, allocating the map on first use.
func (p *Prospect) SetExtra(key string, value any) {
	if p.Extra == nil {
		p.Extra = map[string]any{}
	}
	p.Extra[key] = value
}

// ExtraString returns the string form of a provenance annotation, or ""
// when absent or not a string.
func (p *Prospect) ExtraString(key string) string {
	if p.Extra == nil {
		return ""
	}
	s, _ := p.Extra[key].(string)
	return s
}
