package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/usnistgov/NEMO-custom-forms/internal/model"
	"github.com/usnistgov/NEMO-custom-forms/internal/numbering"
	"github.com/usnistgov/NEMO-custom-forms/internal/store"
)

// AvailableTemplates lists the enabled templates the user may create forms
// for, sorted by name
func (s *Service) AvailableTemplates(ctx context.Context, userID uint) ([]model.Template, error) {
	user, err := s.activeUser(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	templates, err := s.store.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Template
	for i := range templates {
		if s.engine.CanCreate(ctx, user, &templates[i]) {
			out = append(out, templates[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SaveTemplate validates the template against its PDF and stores it
func (s *Service) SaveTemplate(ctx context.Context, tpl *model.Template) error {
	candidate := *tpl
	data, err := s.templatePDF(tpl)
	if err != nil {
		return err
	}
	candidate.PDF = data
	if err := s.catalog.ValidateTemplatePDF(&candidate); err != nil {
		return err
	}
	if err := s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		return tx.SaveTemplate(ctx, tpl)
	}); err != nil {
		return err
	}
	s.logger.Info("template saved",
		zap.Uint("template_id", tpl.ID),
		zap.String("name", tpl.Name),
		zap.Int("actions", len(tpl.Actions)))
	return nil
}

// CurrentNumbers reports the numbering counters of a template
func (s *Service) CurrentNumbers(ctx context.Context, templateID uint) ([]numbering.CurrentNumber, error) {
	tpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return s.numbers.CurrentNumbers(ctx, s.store, tpl)
}
