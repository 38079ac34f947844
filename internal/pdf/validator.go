package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/spf13/afero"
)

// DefaultMaxFileSize bounds the size of a PDF accepted by the pipeline
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

var pdfHeader = []byte("%PDF-")

// Validator handles PDF validation before documents enter the pipeline
type Validator struct {
	maxFileSize int64
}

// NewValidator returns a validator rejecting files larger than maxFileSize
func NewValidator(maxFileSize int64) *Validator {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Validator{
		maxFileSize: maxFileSize,
	}
}

// ValidationResult is the outcome of validating a stored PDF
type ValidationResult struct {
	Path    string `json:"path"`
	Valid   bool   `json:"valid"`
	Size    int64  `json:"size"`
	Message string `json:"message,omitempty"`
}

// ValidateBytes checks that data looks like a readable PDF within the size limit
func (v *Validator) ValidateBytes(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("PDF is empty")
	}
	if int64(len(data)) > v.maxFileSize {
		return fmt.Errorf("PDF too large: %d bytes (max: %d bytes)", len(data), v.maxFileSize)
	}
	// the header may follow a few bytes of junk
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if !bytes.Contains(head, pdfHeader) {
		return fmt.Errorf("data is not a PDF: missing header")
	}

	if _, err := pdf.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("invalid PDF: %w", err)
	}
	return nil
}

// ValidateFile validates a PDF stored on fs. Validation problems are
// reported in the result, not as an error.
func (v *Validator) ValidateFile(fs afero.Fs, path string) (*ValidationResult, error) {
	result := &ValidationResult{Path: path}

	if path == "" {
		result.Message = "path cannot be empty"
		return result, nil
	}
	if !strings.HasSuffix(strings.ToLower(path), ".pdf") {
		result.Message = fmt.Sprintf("file is not a PDF: %s", path)
		return result, nil
	}

	info, err := fs.Stat(path)
	if err != nil {
		result.Message = fmt.Sprintf("cannot access file: %v", err)
		return result, nil //nolint:nilerr // reported in the result
	}
	if info.IsDir() {
		result.Message = fmt.Sprintf("path is a directory, not a file: %s", path)
		return result, nil
	}
	result.Size = info.Size()
	if info.Size() > v.maxFileSize {
		result.Message = fmt.Sprintf("file too large: %d bytes (max: %d bytes)", info.Size(), v.maxFileSize)
		return result, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := v.ValidateBytes(data); err != nil {
		result.Message = err.Error()
		return result, nil
	}

	result.Valid = true
	return result, nil
}

// IsValidPDF performs a quick check on in-memory data
func (v *Validator) IsValidPDF(data []byte) bool {
	return v.ValidateBytes(data) == nil
}
