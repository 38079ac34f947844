package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

// TypeGroup is the field type of a repeatable group of sub-questions
const TypeGroup = "group"

// Field is one question of a template's form_fields definition
type Field struct {
	Type      string   `json:"type"`
	Name      string   `json:"name"`
	Title     string   `json:"title,omitempty"`
	Required  bool     `json:"required,omitempty"`
	Choices   []string `json:"choices,omitempty"`
	Questions []Field  `json:"questions,omitempty"`
}

// IsGroup reports whether the field repeats its sub-questions
func (f Field) IsGroup() bool {
	return f.Type == TypeGroup
}

// Label returns the title shown to users
func (f Field) Label() string {
	if f.Title != "" {
		return f.Title
	}
	return f.Name
}

// ParseFields decodes a form_fields JSON document
func ParseFields(data string) ([]Field, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	var fields []Field
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, apperrors.NewValidation("form fields are not valid JSON",
			apperrors.FieldError{Field: "form_fields", Message: err.Error()})
	}

	var problems []apperrors.FieldError
	seen := make(map[string]bool)
	for i, f := range fields {
		if f.Name == "" {
			problems = append(problems, apperrors.FieldError{
				Field: "form_fields", Message: fmt.Sprintf("field %d has no name", i+1),
			})
			continue
		}
		if seen[f.Name] {
			problems = append(problems, apperrors.FieldError{
				Field: "form_fields", Message: fmt.Sprintf("field name %q is used more than once", f.Name),
			})
		}
		seen[f.Name] = true
		if f.IsGroup() && len(f.Questions) == 0 {
			problems = append(problems, apperrors.FieldError{
				Field: "form_fields", Message: fmt.Sprintf("group %q has no questions", f.Name),
			})
		}
	}
	if len(problems) > 0 {
		return nil, apperrors.NewValidation("invalid form fields", problems...)
	}
	return fields, nil
}

// QuestionNames returns the names of the non-group questions
func QuestionNames(fields []Field) []string {
	var names []string
	for _, f := range fields {
		if !f.IsGroup() {
			names = append(names, f.Name)
		}
	}
	return names
}

// FieldPattern matches the PDF field names a question fills
type FieldPattern struct {
	Name    string
	Group   bool
	Pattern *regexp.Regexp
}

// FieldPatterns returns one pattern per question. Group sub-questions fill
// one PDF field per row, so their pattern accepts a numeric suffix.
func FieldPatterns(fields []Field) []FieldPattern {
	var out []FieldPattern
	for _, f := range fields {
		if !f.IsGroup() {
			out = append(out, FieldPattern{
				Name:    f.Name,
				Pattern: regexp.MustCompile("^" + regexp.QuoteMeta(f.Name)),
			})
			continue
		}
		for _, sub := range f.Questions {
			out = append(out, FieldPattern{
				Name:    sub.Name,
				Group:   true,
				Pattern: regexp.MustCompile("^" + regexp.QuoteMeta(sub.Name) + `\d+$`),
			})
		}
	}
	return out
}

// Answer holds the submitted value(s) of one question
type Answer struct {
	Values []string            `json:"values,omitempty"`
	Rows   []map[string]string `json:"rows,omitempty"`
}

// Answers maps question names to submitted answers
type Answers map[string]Answer

// Encode serializes answers for storage in a form
func (a Answers) Encode() (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode reads answers stored in a form. Empty data yields no answers.
func Decode(data string) (Answers, error) {
	answers := Answers{}
	if strings.TrimSpace(data) == "" {
		return answers, nil
	}
	if err := json.Unmarshal([]byte(data), &answers); err != nil {
		return nil, fmt.Errorf("invalid template data: %w", err)
	}
	return answers, nil
}

// Extract collects the answers to fields from a submitted payload. Group rows
// are read from "<sub>_<index>" keys. Every unanswered required question is
// reported in a single validation error.
func Extract(fields []Field, payload map[string][]string) (Answers, error) {
	answers := Answers{}
	collector := apperrors.NewCollector()

	for _, f := range fields {
		if f.IsGroup() {
			rows := extractRows(f, payload)
			if len(rows) == 0 && f.Required {
				collector.AddValidation(f.Name, fmt.Sprintf("%s is required", f.Label()))
			}
			for i, row := range rows {
				for _, sub := range f.Questions {
					if sub.Required && row[sub.Name] == "" {
						collector.AddValidation(fmt.Sprintf("%s_%d", sub.Name, i+1),
							fmt.Sprintf("%s is required", sub.Label()))
					}
				}
			}
			if len(rows) > 0 {
				answers[f.Name] = Answer{Rows: rows}
			}
			continue
		}

		values := nonEmpty(payload[f.Name])
		if len(values) == 0 {
			if f.Required {
				collector.AddValidation(f.Name, fmt.Sprintf("%s is required", f.Label()))
			}
			continue
		}
		answers[f.Name] = Answer{Values: values}
	}

	if collector.HasErrors() {
		return nil, apperrors.NewValidation("required questions were not answered", collector.GetAllValidationErrors()...).
			WithTextCode("REQUIRED_UNANSWERED")
	}
	return answers, nil
}

func extractRows(f Field, payload map[string][]string) []map[string]string {
	byIndex := make(map[int]map[string]string)
	for _, sub := range f.Questions {
		prefix := sub.Name + "_"
		for key, values := range payload {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			idx, err := strconv.Atoi(strings.TrimPrefix(key, prefix))
			if err != nil {
				continue
			}
			vals := nonEmpty(values)
			if len(vals) == 0 {
				continue
			}
			if byIndex[idx] == nil {
				byIndex[idx] = make(map[string]string)
			}
			byIndex[idx][sub.Name] = strings.Join(vals, ", ")
		}
	}

	indexes := make([]int, 0, len(byIndex))
	for idx := range byIndex {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	rows := make([]map[string]string, 0, len(indexes))
	for _, idx := range indexes {
		rows = append(rows, byIndex[idx])
	}
	return rows
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// FlatInput converts answers into PDF field values. Group rows fill
// "<sub><n>" fields numbered from 1; multiple values are joined with ", ".
func FlatInput(answers Answers) map[string]string {
	out := make(map[string]string)
	for name, a := range answers {
		switch {
		case len(a.Rows) > 0:
			for i, row := range a.Rows {
				for sub, value := range row {
					out[sub+strconv.Itoa(i+1)] = value
				}
			}
		case len(a.Values) == 1:
			out[name] = a.Values[0]
		case len(a.Values) > 1:
			out[name] = strings.Join(a.Values, ", ")
		}
	}
	return out
}

// Value returns the display value of a question, or an empty string
func (a Answers) Value(name string) string {
	ans, ok := a[name]
	if !ok {
		return ""
	}
	return strings.Join(ans.Values, ", ")
}
