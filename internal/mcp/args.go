package mcp

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/usnistgov/NEMO-custom-forms/internal/service"
)

// Tool arguments arrive as decoded JSON. Structured arguments may also be
// sent as JSON text by clients that only support string parameters.

func argString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func argUint(args map[string]any, key string, required bool) (uint, error) {
	raw, ok := args[key]
	if !ok || raw == nil || raw == "" {
		if required {
			return 0, fmt.Errorf("%s is required", key)
		}
		return 0, nil
	}
	switch v := raw.(type) {
	case float64:
		if v < 0 || v != float64(uint(v)) {
			return 0, fmt.Errorf("%s must be a positive integer", key)
		}
		return uint(v), nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("%s must be a positive integer", key)
		}
		return uint(v), nil
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a positive integer", key)
		}
		return uint(n), nil
	}
	return 0, fmt.Errorf("%s must be a positive integer", key)
}

func argBool(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	}
	return false
}

// decodeStructured converts a JSON string argument into out, or re-encodes
// an already decoded value into it
func decodeStructured(args map[string]any, key string, out any) (bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return false, nil
	}
	var data []byte
	if s, isString := raw.(string); isString {
		if strings.TrimSpace(s) == "" {
			return false, nil
		}
		data = []byte(s)
	} else {
		var err error
		if data, err = json.Marshal(raw); err != nil {
			return false, fmt.Errorf("%s: %w", key, err)
		}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%s is not valid JSON of the expected shape: %w", key, err)
	}
	return true, nil
}

func argStringMap(args map[string]any, key string) (map[string]string, error) {
	var raw map[string]any
	if _, err := decodeStructured(args, key, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = argString(map[string]any{"v": v}, "v")
	}
	return out, nil
}

// argAnswers reads question answers. A question may be answered with a
// single value or a list of values.
func argAnswers(args map[string]any, key string) (map[string][]string, error) {
	var raw map[string]any
	if _, err := decodeStructured(args, key, &raw); err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(raw))
	for k, v := range raw {
		switch vv := v.(type) {
		case []any:
			for _, item := range vv {
				out[k] = append(out[k], argString(map[string]any{"v": item}, "v"))
			}
		case nil:
		default:
			out[k] = []string{argString(map[string]any{"v": vv}, "v")}
		}
	}
	return out, nil
}

func argStringList(args map[string]any, key string) ([]string, error) {
	var out []string
	_, err := decodeStructured(args, key, &out)
	return out, err
}

func argUintList(args map[string]any, key string) ([]uint, error) {
	var out []uint
	_, err := decodeStructured(args, key, &out)
	return out, err
}

// documentArg is one supplementary document of form_submit. Content comes
// from base64 data, a file in the output directory or a URL.
type documentArg struct {
	Name           string `json:"name"`
	Data           string `json:"data,omitempty"`
	Path           string `json:"path,omitempty"`
	URL            string `json:"url,omitempty"`
	DocumentTypeID *uint  `json:"document_type_id,omitempty"`
	DisplayOrder   int    `json:"display_order,omitempty"`
}

func (s *Server) argDocuments(args map[string]any, key string) ([]service.DocumentUpload, error) {
	var docs []documentArg
	if _, err := decodeStructured(args, key, &docs); err != nil {
		return nil, err
	}
	out := make([]service.DocumentUpload, 0, len(docs))
	for i, d := range docs {
		upload := service.DocumentUpload{
			Name:           d.Name,
			URL:            d.URL,
			DocumentTypeID: d.DocumentTypeID,
			DisplayOrder:   d.DisplayOrder,
		}
		switch {
		case d.Data != "":
			data, err := base64.StdEncoding.DecodeString(d.Data)
			if err != nil {
				return nil, fmt.Errorf("%s[%d].data is not valid base64: %w", key, i, err)
			}
			upload.Data = data
		case d.Path != "":
			data, err := s.files.ReadPDF(d.Path)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
			}
			upload.Data = data
			if upload.Name == "" {
				upload.Name = d.Path[strings.LastIndex(d.Path, "/")+1:]
			}
		}
		out = append(out, upload)
	}
	return out, nil
}
