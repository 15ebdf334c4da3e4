package model

// EnrichmentResult reports one pipeline pass over a prospect: which
// kinds actually changed the record, and any per-kind soft failures.
type EnrichmentResult struct {
	ProspectID string          `json:"prospect_id"`
	Changed    map[Kind]bool   `json:"changed"`
	KindErrors map[Kind]string `json:"kind_errors,omitempty"`
}

// NewEnrichmentResult creates an empty result for a prospect.
func NewEnrichmentResult(prospectID string) *EnrichmentResult {
	return &EnrichmentResult{
		ProspectID: prospectID,
		Changed:    map[Kind]bool{},
	}
}

// MarkChanged records the outcome of one kind.
func (r *EnrichmentResult) MarkChanged(k Kind, changed bool) {
	r.Changed[k] = changed
}

// MarkError records a per-kind soft failure. The kind is also marked
// unchanged.
func (r *EnrichmentResult) MarkError(k Kind, msg string) {
	if r.KindErrors == nil {
		r.KindErrors = map[Kind]string{}
	}
	r.KindErrors[k] = msg
	r.Changed[k] = false
}

// AnyChanged reports whether any kind changed the record.
func (r *EnrichmentResult) AnyChanged() bool {
	for _, c := range r.Changed {
		if c {
			return true
		}
	}
	return false
}

// ChangedKinds returns the kinds that changed, in pipeline order.
func (r *EnrichmentResult) ChangedKinds() []Kind {
	var out []Kind
	for _, k := range PipelineOrder {
		if r.Changed[k] {
			out = append(out, k)
		}
	}
	return out
}
