package mapping

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/goliatone/go-errors"

	"github.com/usnistgov/NEMO-custom-forms/internal/model"
	"github.com/usnistgov/NEMO-custom-forms/internal/schema"
)

// Default formats used when rendering dates into PDF fields
const (
	DefaultDateFormat     = "01/02/2006"
	DefaultDateTimeFormat = "01/02/2006 3:04 PM"
	DefaultBooleanLabels  = "yes,no,maybe"
)

// byAndTimeSeparator sits between the actor name and the action time
const byAndTimeSeparator = "    "

// Resolver renders special mappings into PDF field values
type Resolver struct {
	DateFormat     string
	DateTimeFormat string
}

// NewResolver creates a resolver. Empty formats fall back to the defaults.
func NewResolver(dateFormat, dateTimeFormat string) *Resolver {
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}
	if dateTimeFormat == "" {
		dateTimeFormat = DefaultDateTimeFormat
	}
	return &Resolver{DateFormat: dateFormat, DateTimeFormat: dateTimeFormat}
}

// Labels splits a comma separated list of two or three labels into its true,
// false and none labels. Two labels render none as the false label.
func Labels(spec string) (yes, no, maybe string, err error) {
	if strings.TrimSpace(spec) == "" {
		spec = DefaultBooleanLabels
	}
	bits := strings.Split(spec, ",")
	switch {
	case len(bits) < 2:
		return "", "", "", fmt.Errorf("%q needs at least a true and a false label", spec)
	case len(bits) > 3:
		return "", "", "", fmt.Errorf("%q has more than a true, a false and a none label", spec)
	}
	yes, no, maybe = bits[0], bits[1], bits[1]
	if len(bits) == 3 {
		maybe = bits[2]
	}
	return yes, no, maybe, nil
}

// YesNo renders a tri-state result with the given label list
func YesNo(result *bool, spec string) string {
	yes, no, maybe, err := Labels(spec)
	if err != nil {
		yes, no, maybe, _ = Labels(DefaultBooleanLabels)
	}
	switch {
	case result == nil:
		return maybe
	case *result:
		return yes
	}
	return no
}

// boundAction returns the template action a mapping refers to
func boundAction(m *model.SpecialMapping, tpl *model.Template) *model.Action {
	if m.Action != nil {
		return m.Action
	}
	if m.ActionID == nil || tpl == nil {
		return nil
	}
	return tpl.ActionByID(*m.ActionID)
}

// Resolve renders one mapping for form. The form must carry its template,
// creator and records. Missing data resolves to an empty string.
func (r *Resolver) Resolve(m *model.SpecialMapping, form *model.Form) string {
	switch m.FieldValue {
	case model.MappingCreator:
		return form.Creator.DisplayName()
	case model.MappingCreationTime:
		if form.CreatedAt.IsZero() {
			return ""
		}
		return form.CreatedAt.Format(r.DateFormat)
	case model.MappingFormNumber:
		return form.Number()
	}

	if !m.FieldValue.IsAction() {
		return ""
	}
	action := boundAction(m, form.Template)
	if action == nil {
		return ""
	}
	record := form.RecordForRank(action.Rank)
	if record == nil {
		return ""
	}

	switch m.FieldValue {
	case model.MappingActionTaken:
		return YesNo(record.Result, m.FieldValueBoolean)
	case model.MappingActionTakenBy:
		return record.Actor.DisplayName()
	case model.MappingActionTakenTime:
		return record.Time.Format(r.DateFormat)
	case model.MappingActionTakenByAndTime:
		return record.Actor.DisplayName() + byAndTimeSeparator + record.Time.Format(r.DateTimeFormat)
	}
	return ""
}

// Split resolves every mapping of the form's template. Values rendered as
// signatures are returned separately from plain field values.
func (r *Resolver) Split(form *model.Form) (fields, signatures map[string]string) {
	fields = make(map[string]string)
	signatures = make(map[string]string)
	if form.Template == nil {
		return fields, signatures
	}
	for i := range form.Template.Mappings {
		m := &form.Template.Mappings[i]
		value := r.Resolve(m, form)
		if m.FieldValue.IsSignature() {
			signatures[m.FieldName] = value
			continue
		}
		fields[m.FieldName] = value
	}
	return fields, signatures
}

// FieldValues merges resolved mappings with the form's flattened answers.
// Answers win over mappings that target the same field.
func (r *Resolver) FieldValues(form *model.Form, answers schema.Answers) (fields, signatures map[string]string) {
	fields, signatures = r.Split(form)
	for name, value := range schema.FlatInput(answers) {
		fields[name] = value
	}
	return fields, signatures
}

// Validate checks a mapping definition against its template and the PDF
// fields, given as field name to declared widget states
func Validate(m *model.SpecialMapping, tpl *model.Template, pdfFields map[string][]string) error {
	var problems []apperrors.FieldError
	add := func(field, msg string) {
		problems = append(problems, apperrors.FieldError{Field: field, Message: msg, Value: m.FieldName})
	}

	switch {
	case !validValue(m.FieldValue):
		add("field_value", fmt.Sprintf("%q is not a valid field value", m.FieldValue))
	case m.FieldValue.IsAction() && m.ActionID == nil && m.Action == nil:
		add("action", "This field is required when using an action field value")
	case !m.FieldValue.IsAction() && (m.ActionID != nil || m.Action != nil):
		add("action", "This field should be left blank when using non action field values")
	}
	if m.FieldValue.IsAction() && m.ActionID != nil && m.Action == nil && tpl != nil && tpl.ActionByID(*m.ActionID) == nil {
		add("action", "The action does not belong to this template")
	}
	labelsOK := true
	if m.FieldValueBoolean != "" && m.FieldValue != model.MappingActionTaken {
		add("field_value_boolean", "This field only applies to field value 'action taken'")
	} else if m.FieldValue == model.MappingActionTaken {
		if _, _, _, err := Labels(m.FieldValueBoolean); err != nil {
			add("field_value_boolean", err.Error())
			labelsOK = false
		}
	}

	if pdfFields != nil {
		states, ok := pdfFields[m.FieldName]
		if !ok {
			add("field_name", "This field name could not be found in the template fields")
		} else if m.FieldValue == model.MappingActionTaken && labelsOK {
			if err := checkStates(m, states); err != nil {
				add("field_value_boolean", err.Error())
			}
		}
	}

	if len(problems) > 0 {
		return apperrors.NewValidation(fmt.Sprintf("invalid mapping for field %q", m.FieldName), problems...)
	}
	return nil
}

func checkStates(m *model.SpecialMapping, states []string) error {
	yes, no, maybe, err := Labels(m.FieldValueBoolean)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return nil
	}
	known := make(map[string]bool, len(states))
	for _, s := range states {
		known[s] = true
	}
	for _, label := range []string{yes, no, maybe} {
		if !known[label] {
			return fmt.Errorf("'%s' is not a valid option for '%s': %v", label, m.FieldName, states)
		}
	}
	return nil
}

func validValue(v model.MappingValue) bool {
	switch v {
	case model.MappingCreator, model.MappingCreationTime, model.MappingFormNumber,
		model.MappingActionTaken, model.MappingActionTakenBy, model.MappingActionTakenTime,
		model.MappingActionTakenByAndTime:
		return true
	}
	return false
}

// OrderedColumns returns the columns sorted by display order
func OrderedColumns(columns []model.DisplayColumn) []model.DisplayColumn {
	out := append([]model.DisplayColumn(nil), columns...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out
}

// ValidateColumns checks that every column shows a non-group question and
// that display orders are unique
func ValidateColumns(columns []model.DisplayColumn, fields []schema.Field) error {
	questions := make(map[string]bool)
	for _, name := range schema.QuestionNames(fields) {
		questions[name] = true
	}

	var problems []apperrors.FieldError
	orders := make(map[int]bool, len(columns))
	for _, c := range columns {
		if !questions[c.FieldName] {
			problems = append(problems, apperrors.FieldError{
				Field:   "field_name",
				Message: "This field name could not be found in the form fields (or is not an allowed field type)",
				Value:   c.FieldName,
			})
		}
		if orders[c.DisplayOrder] {
			problems = append(problems, apperrors.FieldError{
				Field:   "display_order",
				Message: "This display order is already in use for another column",
				Value:   c.DisplayOrder,
			})
		}
		orders[c.DisplayOrder] = true
	}
	if len(problems) > 0 {
		return apperrors.NewValidation("invalid display columns", problems...)
	}
	return nil
}

// Column is one rendered cell of a form listing
type Column struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Row renders the template's display columns for one form's answers
func Row(columns []model.DisplayColumn, answers schema.Answers) []Column {
	ordered := OrderedColumns(columns)
	out := make([]Column, 0, len(ordered))
	for i := range ordered {
		out = append(out, Column{Label: ordered[i].Label(), Value: answers.Value(ordered[i].FieldName)})
	}
	return out
}
