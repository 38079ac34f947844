package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// readInfo fills the document information dictionary entries of result
// from data. Broken info dictionaries leave the fields empty.
func readInfo(data []byte, result *PDFStatsFileResult) {
	defer func() {
		// the reader panics on some malformed trailers
		_ = recover()
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return
	}
	if result.Pages == 0 {
		result.Pages = r.NumPage()
	}

	trailer := r.Trailer()
	if trailer.IsNull() {
		return
	}
	info := trailer.Key("Info")
	if info.IsNull() {
		return
	}

	entries := []struct {
		key  string
		dest *string
	}{
		{"Title", &result.Title},
		{"Author", &result.Author},
		{"Subject", &result.Subject},
		{"Producer", &result.Producer},
		{"CreationDate", &result.CreatedDate},
	}
	for _, e := range entries {
		if v := info.Key(e.key); !v.IsNull() {
			*e.dest = strings.TrimSpace(v.Text())
		}
	}
}

// fileStats builds the statistics of a PDF already read from path
func fileStats(path string, data []byte, modified string) (*PDFStatsFileResult, error) {
	result := &PDFStatsFileResult{
		Path:         path,
		Size:         int64(len(data)),
		ModifiedDate: modified,
	}

	doc, err := Open(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	result.Pages = doc.PageCount()
	fields, err := doc.Fields()
	if err != nil {
		return nil, fmt.Errorf("failed to read form fields: %w", err)
	}
	result.Fields = len(fields)

	readInfo(data, result)
	return result, nil
}
