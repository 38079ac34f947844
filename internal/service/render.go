package service

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/usnistgov/NEMO-custom-forms/internal/model"
	"github.com/usnistgov/NEMO-custom-forms/internal/numbering"
	"github.com/usnistgov/NEMO-custom-forms/internal/pdf"
	"github.com/usnistgov/NEMO-custom-forms/internal/schema"
	"github.com/usnistgov/NEMO-custom-forms/internal/storage"
)

// DefaultFilename names rendered PDFs when the template sets no rule
const DefaultFilename = "{{.Template.Name}}"

// Stamps written across rendered forms
const (
	StampCancelled = "CANCELLED"
	StampDenied    = "DENIED"
)

// RenderResult is a rendered form
type RenderResult struct {
	Filename          string   `json:"filename"`
	PDF               []byte   `json:"-"`
	Pages             int      `json:"pages"`
	Stamp             string   `json:"stamp,omitempty"`
	SkippedSignatures []string `json:"skipped_signatures,omitempty"`
	SkippedDocuments  []string `json:"skipped_documents,omitempty"`
}

// filenameData is what a template's filename rule is evaluated against
type filenameData struct {
	Form     *model.Form
	Template *model.Template
	Creator  *model.User
	Number   string
	Answers  map[string]string
}

// StampFor returns the stamp text for the form's state
func StampFor(form *model.Form) string {
	switch {
	case form.Cancelled:
		return StampCancelled
	case form.Status == model.StatusDenied:
		return StampDenied
	}
	return ""
}

// Render fills the template PDF with the form's answers and mappings,
// flattens it and appends the form's documents in display order
func (s *Service) Render(ctx context.Context, userID, formID uint) (*RenderResult, error) {
	started := s.now()

	user, err := s.activeUser(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	form, err := s.loadForm(ctx, s.store, formID)
	if err != nil {
		return nil, err
	}
	if !s.engine.CanView(ctx, user, form) {
		return nil, forbidden("You are not allowed to view this form", map[string]any{"form_id": formID, "user_id": userID})
	}

	answers, err := schema.Decode(form.TemplateData)
	if err != nil {
		return nil, err
	}
	templatePDF, err := s.templatePDF(form.Template)
	if err != nil {
		return nil, err
	}

	fields, signatures := s.mappings.FieldValues(form, answers)
	stamp := StampFor(form)
	filled, err := s.pipeline.Fill(ctx, pdf.FillRequest{
		PDF:        templatePDF,
		Fields:     fields,
		Signatures: signatures,
		StampText:  stamp,
		Flatten:    true,
	})
	if err != nil {
		return nil, err
	}

	sources := []pdf.Source{{Name: form.Template.Name, Data: filled.PDF}}
	for _, doc := range orderedDocuments(form.Documents) {
		sources = append(sources, pdf.Source{
			Name: doc.Name,
			Ref:  &pdf.DocumentRef{Key: doc.Path, URL: doc.URL, Name: doc.Name},
		})
	}
	merged, err := s.pipeline.Merge(ctx, sources)
	if err != nil {
		return nil, err
	}

	result := &RenderResult{
		Filename:          s.filename(form, answers),
		PDF:               merged.PDF,
		Pages:             merged.Pages,
		Stamp:             stamp,
		SkippedSignatures: filled.Skipped,
		SkippedDocuments:  merged.Skipped,
	}
	elapsed := s.now().Sub(started)
	s.metrics.ObserveRender(elapsed)
	s.logger.Info("form rendered",
		zap.Uint("form_id", formID),
		zap.Int("pages", result.Pages),
		zap.Int("documents", len(sources)-1),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

// orderedDocuments sorts by display order, then by document type order
func orderedDocuments(docs []model.Document) []model.Document {
	out := append([]model.Document(nil), docs...)
	typeOrder := func(d model.Document) int {
		if d.DocumentType == nil {
			return 0
		}
		return d.DocumentType.DisplayOrder
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return typeOrder(out[i]) < typeOrder(out[j])
	})
	return out
}

// filename evaluates the template's filename rule. A rule that fails to
// render falls back to the template name.
func (s *Service) filename(form *model.Form, answers schema.Answers) string {
	rule := strings.TrimSpace(form.Template.Filename)
	if rule == "" {
		rule = DefaultFilename
	}
	data := filenameData{
		Form:     form,
		Template: form.Template,
		Creator:  form.Creator,
		Number:   form.Number(),
		Answers:  schema.FlatInput(answers),
	}

	name, err := renderFilename(rule, data)
	if err != nil {
		s.logger.Warn("invalid filename rule",
			zap.Uint("template_id", form.Template.ID),
			zap.String("rule", rule),
			zap.Error(err))
		name, _ = renderFilename(DefaultFilename, data)
	}
	return storage.SanitizeName(strings.TrimSpace(name)) + ".pdf"
}

func renderFilename(rule string, data filenameData) (string, error) {
	tmpl, err := template.New("filename").Option("missingkey=zero").Funcs(numbering.TemplateFuncs()).Parse(rule)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
