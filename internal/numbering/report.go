package numbering

import (
	"context"

	"go.uber.org/zap"

	"github.com/usnistgov/NEMO-custom-forms/internal/model"
	"github.com/usnistgov/NEMO-custom-forms/internal/store"
)

// CurrentNumber describes one numbering counter of a template
type CurrentNumber struct {
	Key            string      `json:"key"`
	NumberingGroup *int        `json:"numbering_group,omitempty"`
	User           *model.User `json:"user,omitempty"`
	Value          int         `json:"value"`
	Rendered       string      `json:"rendered"`
}

// CurrentNumbers lists every counter of tpl with the number it last produced
func (g *Generator) CurrentNumbers(ctx context.Context, tx store.Tx, tpl *model.Template) ([]CurrentNumber, error) {
	seqs, err := tx.ListSequences(ctx, tpl.ID)
	if err != nil {
		return nil, err
	}

	out := make([]CurrentNumber, 0, len(seqs))
	for _, seq := range seqs {
		entry := CurrentNumber{Key: seq.Key, NumberingGroup: seq.NumberingGroup, Value: seq.Value}
		if seq.UserID != nil {
			u, err := tx.GetUser(ctx, *seq.UserID)
			if err != nil && !store.IsNotFound(err) {
				return nil, err
			}
			entry.User = u
		}

		values := g.values(tpl, entry.User, seq.Value)
		if seq.NumberingGroup != nil {
			values.NumberingGroup = *seq.NumberingGroup
		}
		rendered, err := g.Render(numberingTemplate(tpl), values)
		if err != nil {
			g.logger.Warn("failed to render current number",
				zap.String("key", seq.Key),
				zap.Error(err))
		}
		entry.Rendered = rendered
		out = append(out, entry)
	}
	return out, nil
}

func numberingTemplate(tpl *model.Template) string {
	if tpl.Numbering == nil {
		return DefaultTemplate
	}
	return tpl.Numbering.Template
}
