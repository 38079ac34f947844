// Package catalog validates templates and their child definitions before
// they are saved.
package catalog

import (
	"fmt"

	apperrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"

	"github.com/usnistgov/NEMO-custom-forms/internal/mapping"
	"github.com/usnistgov/NEMO-custom-forms/internal/model"
	"github.com/usnistgov/NEMO-custom-forms/internal/numbering"
	"github.com/usnistgov/NEMO-custom-forms/internal/pdf"
	"github.com/usnistgov/NEMO-custom-forms/internal/role"
	"github.com/usnistgov/NEMO-custom-forms/internal/schema"
)

// CodeInvalidTemplate is attached to aggregated template validation errors
const CodeInvalidTemplate = "INVALID_TEMPLATE"

// Validator checks a template definition as a whole
type Validator struct {
	numbering *numbering.Generator
	logger    *zap.Logger
}

// NewValidator creates a template validator
func NewValidator(gen *numbering.Generator, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{numbering: gen, logger: logger}
}

// ValidateTemplatePDF inspects the template's PDF and validates against its fields
func (v *Validator) ValidateTemplatePDF(tpl *model.Template) error {
	fields, err := pdf.Inspect(tpl.PDF)
	if err != nil {
		return apperrors.NewValidation("invalid template PDF", apperrors.FieldError{
			Field:   "form",
			Message: err.Error(),
		}).WithTextCode(CodeInvalidTemplate)
	}
	return v.ValidateTemplate(tpl, fields)
}

// ValidateTemplate checks the dynamic fields, actions, numbering, mappings
// and display columns of tpl against the fields of its PDF. Every problem
// is reported in a single validation error.
func (v *Validator) ValidateTemplate(tpl *model.Template, pdfFields []pdf.FieldInfo) error {
	collector := apperrors.NewCollector()
	names := pdf.FieldNames(pdfFields)

	formFields, err := schema.ParseFields(tpl.FormFields)
	if err != nil {
		collector.Add(err)
	} else {
		checkFieldsInPDF(collector, formFields, names)
	}

	checkActions(collector, tpl)

	if tpl.Numbering != nil && v.numbering != nil {
		addPrefixed(collector, "numbering", v.numbering.Validate(tpl.Numbering, tpl))
	}

	states := pdf.StatesByName(pdfFields)
	for i := range tpl.Mappings {
		err := mapping.Validate(&tpl.Mappings[i], tpl, states)
		addPrefixed(collector, fmt.Sprintf("mappings[%d]", i), err)
	}

	if formFields != nil {
		addPrefixed(collector, "columns", mapping.ValidateColumns(tpl.Columns, formFields))
	}

	for _, token := range allRoles(tpl) {
		if _, err := role.Parse(token); err != nil {
			collector.AddFieldErrors(apperrors.FieldError{Field: "roles", Message: err.Error(), Value: token})
		}
	}

	if !collector.HasErrors() {
		return nil
	}
	problems := collector.GetAllValidationErrors()
	v.logger.Debug("template failed validation",
		zap.Uint("template_id", tpl.ID),
		zap.String("template", tpl.Name),
		zap.Int("problems", len(problems)))
	return apperrors.NewValidation(fmt.Sprintf("template %q is invalid", tpl.Name), problems...).
		WithTextCode(CodeInvalidTemplate)
}

func checkFieldsInPDF(collector *apperrors.ErrorCollector, fields []schema.Field, names []string) {
	for _, p := range schema.FieldPatterns(fields) {
		re := p.Pattern
		found := false
		for _, name := range names {
			if re.MatchString(name) {
				found = true
				break
			}
		}
		if !found {
			collector.AddFieldErrors(apperrors.FieldError{
				Field:   "form_fields",
				Message: fmt.Sprintf("The field with name: %s could not be found in the pdf fields", p.Name),
				Value:   p.Name,
			})
		}
	}
}

func checkActions(collector *apperrors.ErrorCollector, tpl *model.Template) {
	ranks := make(map[int]bool, len(tpl.Actions))
	for i, a := range tpl.Actions {
		field := fmt.Sprintf("actions[%d]", i)
		if !a.Type.Valid() {
			collector.AddFieldErrors(apperrors.FieldError{Field: field + ".type", Message: "Unknown action type", Value: a.Type})
		}
		if a.Rank < 1 {
			collector.AddFieldErrors(apperrors.FieldError{Field: field + ".rank", Message: "Rank must be a positive number", Value: a.Rank})
		}
		if ranks[a.Rank] {
			collector.AddFieldErrors(apperrors.FieldError{Field: field + ".rank", Message: "This rank is already used by another action", Value: a.Rank})
		}
		ranks[a.Rank] = true
		if r, err := role.Parse(a.Role); err != nil {
			collector.AddFieldErrors(apperrors.FieldError{Field: field + ".role", Message: err.Error(), Value: a.Role})
		} else if r.IsZero() {
			collector.AddFieldErrors(apperrors.FieldError{Field: field + ".role", Message: "This field is required", Value: a.Role})
		}
	}
}

func allRoles(tpl *model.Template) []string {
	var out []string
	out = append(out, tpl.CreateRoles...)
	out = append(out, tpl.ViewAllRoles...)
	return append(out, tpl.ApproveRoles...)
}

// addPrefixed adds err to collector, qualifying its field errors with prefix
func addPrefixed(collector *apperrors.ErrorCollector, prefix string, err error) {
	if err == nil {
		return
	}
	fields, ok := apperrors.GetValidationErrors(err)
	if !ok || len(fields) == 0 {
		collector.AddFieldErrors(apperrors.FieldError{Field: prefix, Message: err.Error()})
		return
	}
	qualified := make([]apperrors.FieldError, len(fields))
	for i, f := range fields {
		f.Field = prefix + "." + f.Field
		qualified[i] = f
	}
	collector.AddFieldErrors(qualified...)
}
