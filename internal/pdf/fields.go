package pdf

import "sort"

// FieldType classifies an AcroForm field
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldCheckbox  FieldType = "checkbox"
	FieldRadio     FieldType = "radio"
	FieldButton    FieldType = "button"
	FieldChoice    FieldType = "choice"
	FieldSignature FieldType = "signature"
	FieldUnknown   FieldType = "unknown"
)

// FieldInfo describes one terminal form field
type FieldInfo struct {
	Name        string       `json:"name"`
	PartialName string       `json:"partial_name,omitempty"`
	AltName     string       `json:"alt_name,omitempty"`
	Type        FieldType    `json:"type"`
	Value       string       `json:"value,omitempty"`
	Flags       int          `json:"flags"`
	ReadOnly    bool         `json:"read_only"`
	Required    bool         `json:"required"`
	States      []string     `json:"states,omitempty"`
	Widgets     []Annotation `json:"widgets,omitempty"`
}

// Inspect lists the form fields of a PDF
func Inspect(data []byte) ([]FieldInfo, error) {
	doc, err := Open(data)
	if err != nil {
		return nil, err
	}
	return doc.Fields()
}

// FieldNames returns the sorted, de-duplicated full names of fields
func FieldNames(fields []FieldInfo) []string {
	seen := make(map[string]bool, len(fields))
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Name == "" || seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

// StatesByName maps each field name to its declared states. Fields are
// indexed by their full and partial names.
func StatesByName(fields []FieldInfo) map[string][]string {
	out := make(map[string][]string, len(fields))
	for _, f := range fields {
		if f.Name != "" {
			out[f.Name] = f.States
		}
		if f.PartialName != "" {
			if _, ok := out[f.PartialName]; !ok {
				out[f.PartialName] = f.States
			}
		}
	}
	return out
}
