package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/naics"
	"github.com/sells-group/prospect-enricher/internal/prompt"
)

// naicsResponse is the expected shape of classifier output.
type naicsResponse struct {
	Candidates []naicsCandidate `json:"candidates"`
}

type naicsCandidate struct {
	Code       string  `json:"code"`
	Confidence float64 `json:"confidence"`
}

// historicalNaicsKeys are the provenance field names older feeds used
// to embed an industry code outside the dedicated column.
var historicalNaicsKeys = []string{
	"naics", "naics_code", "naicsCode", "primary_naics", "naics_primary",
}

// enhanceNaics fills the prospect's industry classification. A
// source-provided code is never overwritten, force or not; a code
// missing its description always gets the official description
// backfilled from the static table. Classification via the model runs
// only when the record carries no code at all, after checking the
// provenance map for a code under historical field names.
func (e *Enricher) enhanceNaics(ctx context.Context, p *model.Prospect) (bool, error) {
	if p.NaicsCode != "" {
		return e.backfillDescription(p)
	}

	// Historical feeds sometimes buried the code in the extension map.
	for _, key := range historicalNaicsKeys {
		if code := p.ExtraString(key); naics.IsWellFormed(code) {
			p.NaicsCode = code
			p.NaicsSource = model.NaicsSourceOriginal
			p.SetExtra("naics_backfill_source", "provenance:"+key)
			if desc, ok := naics.Describe(code); ok {
				p.NaicsDescription = desc
			}
			return true, nil
		}
	}

	out, err := e.complete(ctx, p.ID, "naics_classification", prompt.Naics(prompt.NaicsInput{
		Title:        p.Title,
		Description:  p.Description,
		Agency:       p.Agency,
		ContractType: p.ContractType,
		SetAside:     p.SetAside,
		ValueText:    p.EstimatedValueText,
	}))
	if err != nil {
		return false, eris.Wrap(err, "naics: inference")
	}

	var resp naicsResponse
	if err := decodeJSON(out, &resp); err != nil {
		return false, eris.Wrap(err, "naics")
	}
	if len(resp.Candidates) == 0 {
		return false, eris.New("naics: classifier returned no candidates")
	}

	top := resp.Candidates[0]
	desc, ok := naics.Describe(top.Code)
	if !ok {
		return false, eris.Errorf("naics: top candidate %q not in static table", top.Code)
	}

	p.NaicsCode = top.Code
	p.NaicsDescription = desc
	p.NaicsSource = model.NaicsSourceInferred
	p.SetExtra("naics_confidence", top.Confidence)
	p.SetExtra("naics_candidates", candidateList(resp.Candidates))
	p.SetExtra("naics_classified_at", time.Now().UTC().Format(time.RFC3339))
	return true, nil
}

// backfillDescription fills a missing description for an existing code.
// The code and its source tag are left untouched.
func (e *Enricher) backfillDescription(p *model.Prospect) (bool, error) {
	if p.NaicsDescription != "" {
		return false, nil
	}
	desc, ok := naics.Describe(p.NaicsCode)
	if !ok {
		return false, eris.Errorf("naics: no description for code %q", p.NaicsCode)
	}
	p.NaicsDescription = desc
	p.SetExtra("naics_description_backfill", "static_table")
	return true, nil
}

func candidateList(cands []naicsCandidate) []map[string]any {
	out := make([]map[string]any, len(cands))
	for i, c := range cands {
		out[i] = map[string]any{"code": c.Code, "confidence": c.Confidence}
	}
	return out
}
