package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/prompt"
)

// valueResponse is the expected shape of value-parsing output.
type valueResponse struct {
	Single *float64 `json:"single"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
}

// numericExtraKeys are historical provenance fields that may carry a
// numeric contract value when the text field is empty.
var numericExtraKeys = []string{"estimated_value", "est_value", "contract_value"}

// enhanceValue parses the prospect's contract value text into numeric
// fields. Skipped when a single parsed value already exists and force
// is false. A result is accepted only when it carries a single value or
// a complete min/max pair; half a range is rejected, as are negative
// amounts.
func (e *Enricher) enhanceValue(ctx context.Context, p *model.Prospect, force bool) (bool, error) {
	if p.EstimatedValueSingle != nil && !force {
		return false, nil
	}

	raw, fromExtra := bestRawValue(p)
	if raw == "" {
		return false, nil
	}

	out, err := e.complete(ctx, p.ID, "value_parsing", prompt.Value(raw))
	if err != nil {
		return false, eris.Wrap(err, "value: inference")
	}
	if strings.TrimSpace(out) == "" {
		return false, eris.New("value: empty model output")
	}

	var resp valueResponse
	if err := decodeJSON(out, &resp); err != nil {
		return false, eris.Wrap(err, "value")
	}

	if err := validateValue(resp); err != nil {
		return false, err
	}

	if resp.Single != nil {
		p.EstimatedValueSingle = resp.Single
		p.EstimatedValueMin = nil
		p.EstimatedValueMax = nil
		p.SetExtra("value_parsed_as", "single")
	} else {
		p.EstimatedValueSingle = nil
		p.EstimatedValueMin = resp.Min
		p.EstimatedValueMax = resp.Max
		p.SetExtra("value_parsed_as", "range")
	}

	// Backfill the raw-text field when the value came from a numeric
	// provenance field instead.
	if fromExtra && p.EstimatedValueText == "" {
		p.EstimatedValueText = raw
	}
	return true, nil
}

// bestRawValue picks the text to parse: the free-text value field when
// present, otherwise a stringified numeric provenance field. The second
// return reports whether the fallback was used.
func bestRawValue(p *model.Prospect) (string, bool) {
	if s := strings.TrimSpace(p.EstimatedValueText); s != "" {
		return s, false
	}
	for _, key := range numericExtraKeys {
		if v, ok := p.Extra[key]; ok {
			switch n := v.(type) {
			case float64:
				return fmt.Sprintf("%g", n), true
			case int:
				return fmt.Sprintf("%d", n), true
			case string:
				if strings.TrimSpace(n) != "" {
					return strings.TrimSpace(n), true
				}
			}
		}
	}
	return "", false
}

// validateValue enforces the acceptance contract: a single value, or a
// complete non-inverted min/max pair; negatives are invalid.
func validateValue(v valueResponse) error {
	for _, f := range []*float64{v.Single, v.Min, v.Max} {
		if f != nil && *f < 0 {
			return eris.New("value: negative amount rejected")
		}
	}
	if v.Single != nil {
		return nil
	}
	if v.Min == nil && v.Max == nil {
		return eris.New("value: model returned no amounts")
	}
	if v.Min == nil || v.Max == nil {
		return eris.New("value: incomplete range rejected")
	}
	if *v.Min > *v.Max {
		return eris.New("value: inverted range rejected")
	}
	return nil
}
