package enrich

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/prompt"
)

// titleResponse is the expected shape of title-enhancement output.
type titleResponse struct {
	EnhancedTitle string  `json:"enhanced_title"`
	Confidence    float64 `json:"confidence"`
}

// enhanceTitle rewrites the prospect's title. Skipped when an enhanced
// title already exists and force is false. Output is accepted only when
// non-empty and different from the original title.
func (e *Enricher) enhanceTitle(ctx context.Context, p *model.Prospect, force bool) (bool, error) {
	if p.EnhancedTitle != "" && !force {
		return false, nil
	}
	if strings.TrimSpace(p.Title) == "" {
		return false, nil
	}

	out, err := e.complete(ctx, p.ID, "title_enhancement", prompt.Title(prompt.TitleInput{
		Title:       p.Title,
		Description: p.Description,
		Agency:      p.Agency,
	}))
	if err != nil {
		return false, eris.Wrap(err, "title: inference")
	}
	if strings.TrimSpace(out) == "" {
		return false, eris.New("title: empty model output")
	}

	var resp titleResponse
	if err := decodeJSON(out, &resp); err != nil {
		return false, eris.Wrap(err, "title")
	}

	enhanced := strings.TrimSpace(resp.EnhancedTitle)
	if enhanced == "" {
		return false, eris.New("title: model returned empty title")
	}
	if enhanced == p.Title {
		// No improvement; not a failure, just no change.
		return false, nil
	}

	p.EnhancedTitle = enhanced
	p.SetExtra("title_original", p.Title)
	p.SetExtra("title_confidence", resp.Confidence)
	p.SetExtra("title_enhanced_at", time.Now().UTC().Format(time.RFC3339))
	p.SetExtra("title_model", e.modelID)
	return true, nil
}
