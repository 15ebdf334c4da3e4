// Package enrich implements the per-record enrichment pipeline: for one
// prospect, decide which enhancement kinds still need work and apply
// them in a fixed order with partial-success semantics.
package enrich

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-enricher/internal/audit"
	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/store"
	"github.com/sells-group/prospect-enricher/pkg/inference"
)

// Request describes one pipeline pass.
type Request struct {
	ProspectID string
	Kinds      model.KindSet
	Force      bool
	// OnKind is invoked before each kind runs, for progress reporting.
	OnKind func(model.Kind)
}

// Enricher orchestrates the four enhancement kinds for one prospect at
// a time. It is stateless aside from its collaborators and safe to
// reuse across runs; the scheduler serializes calls.
type Enricher struct {
	store store.Store
	llm   inference.Client
	audit *audit.Logger
	// modelID is the inference model identifier, stamped on records as
	// their model_version on any change.
	modelID string
}

// New creates an Enricher.
func New(s store.Store, llm inference.Client, auditLog *audit.Logger, modelID string) *Enricher {
	return &Enricher{store: s, llm: llm, audit: auditLog, modelID: modelID}
}

// ModelID returns the model identifier records are stamped with.
func (e *Enricher) ModelID() string { return e.modelID }

// Run applies the requested kinds in the fixed order title → value →
// naics → set-aside. Each kind is independently gated and persisted
// immediately after success, so partial progress survives a later
// kind's failure. Per-kind failures are absorbed into the result; only
// store access errors (including not-found) propagate.
func (e *Enricher) Run(ctx context.Context, req Request) (*model.EnrichmentResult, error) {
	p, err := e.store.GetProspect(ctx, req.ProspectID)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: load prospect %s", req.ProspectID)
	}

	log := zap.L().With(zap.String("prospect_id", p.ID))
	result := model.NewEnrichmentResult(p.ID)

	for _, kind := range req.Kinds.Slice() {
		if req.OnKind != nil {
			req.OnKind(kind)
		}

		changed, kindErr := e.applyKind(ctx, p, kind, req.Force)
		if kindErr != nil {
			log.Warn("enhancement kind failed",
				zap.String("kind", string(kind)),
				zap.Error(kindErr),
			)
			result.MarkError(kind, kindErr.Error())
			continue
		}
		result.MarkChanged(kind, changed)

		if changed {
			if err := e.store.PutProspect(ctx, p); err != nil {
				return result, eris.Wrapf(err, "enrich: persist %s after %s", p.ID, kind)
			}
			log.Info("enhancement applied", zap.String("kind", string(kind)))
		}
	}

	// A forced run stamps the attempt even when nothing changed.
	if result.AnyChanged() || req.Force {
		now := time.Now().UTC()
		p.LastEnhancedAt = &now
		p.ModelVersion = e.modelID
		if err := e.store.PutProspect(ctx, p); err != nil {
			return result, eris.Wrapf(err, "enrich: stamp %s", p.ID)
		}
	}

	return result, nil
}

func (e *Enricher) applyKind(ctx context.Context, p *model.Prospect, kind model.Kind, force bool) (bool, error) {
	switch kind {
	case model.KindTitle:
		return e.enhanceTitle(ctx, p, force)
	case model.KindValue:
		return e.enhanceValue(ctx, p, force)
	case model.KindNaics:
		return e.enhanceNaics(ctx, p)
	case model.KindSetAside:
		return e.enhanceSetAside(ctx, p, force)
	default:
		return false, eris.Errorf("enrich: unknown kind %q", kind)
	}
}

// complete runs one inference call and records it in the audit log.
func (e *Enricher) complete(ctx context.Context, prospectID, useCase, promptText string) (string, error) {
	start := time.Now()
	out, err := e.llm.Complete(ctx, promptText, e.modelID)
	if e.audit != nil {
		e.audit.Record(ctx, prospectID, useCase, e.modelID, promptText, out, err, time.Since(start))
	}
	if err != nil {
		return "", err
	}
	return out, nil
}

// extractJSON pulls the first JSON object out of model output,
// tolerating code fences and prose around it.
func extractJSON(s string) ([]byte, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	return []byte(s[start : end+1]), true
}

// decodeJSON unmarshals model output into v, treating absent or
// malformed JSON as a soft failure.
func decodeJSON(s string, v any) error {
	raw, ok := extractJSON(s)
	if !ok {
		return eris.New("no JSON object in model output")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return eris.Wrap(err, "unparseable model output")
	}
	return nil
}
