package enrich

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/setaside"
)

// secondaryProgramKeys are provenance fields that may carry additional
// small-business-program text alongside the primary set-aside field.
var secondaryProgramKeys = []string{
	"small_business_program", "sb_program", "set_aside_program",
}

// enhanceSetAside standardizes the prospect's set-aside designation.
// Skipped when a standardized value already exists and force is false.
// An empty combined input resolves to the explicit Not Applicable
// category rather than a skip; unmatched classifier output is a
// per-kind failure.
func (e *Enricher) enhanceSetAside(ctx context.Context, p *model.Prospect, force bool) (bool, error) {
	if p.SetAsideStandard != "" && !force {
		return false, nil
	}

	var secondary string
	for _, key := range secondaryProgramKeys {
		if s := p.ExtraString(key); s != "" {
			secondary = s
			break
		}
	}

	combined := setaside.Combine(p.SetAside, secondary)
	if combined == "" {
		na := setaside.NotApplicable()
		changed := p.SetAsideStandard != na.Code
		p.SetAsideStandard = na.Code
		p.SetAsideLabel = na.Label
		p.SetExtra("set_aside_matched_from", "empty_input")
		return changed, nil
	}

	out, err := e.complete(ctx, p.ID, "set_aside_classification", setaside.BuildPrompt(combined))
	if err != nil {
		return false, eris.Wrap(err, "set_aside: inference")
	}

	cat, ok := setaside.Match(out)
	if !ok {
		return false, eris.Errorf("set_aside: unmatched classifier output %q", truncateForError(out))
	}

	changed := p.SetAsideStandard != cat.Code || p.SetAsideLabel != cat.Label
	p.SetAsideStandard = cat.Code
	p.SetAsideLabel = cat.Label
	p.SetExtra("set_aside_matched_from", combined)
	return changed, nil
}

func truncateForError(s string) string {
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
