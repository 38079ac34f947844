package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"
)

// DocumentRef points at a stored or remote document
type DocumentRef struct {
	Key  string `json:"key,omitempty"`
	URL  string `json:"url,omitempty"`
	Name string `json:"name,omitempty"`
}

// Resolver loads the bytes behind a DocumentRef
type Resolver interface {
	Resolve(ctx context.Context, ref DocumentRef) ([]byte, error)
}

// Source is one merge input, given either inline or by reference
type Source struct {
	Name string
	Data []byte
	Ref  *DocumentRef
}

func (s Source) label(i int) string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Ref != nil && s.Ref.Name != "":
		return s.Ref.Name
	case s.Ref != nil && s.Ref.Key != "":
		return s.Ref.Key
	case s.Ref != nil && s.Ref.URL != "":
		return s.Ref.URL
	}
	return fmt.Sprintf("document %d", i+1)
}

// MergeReport describes the outcome of a merge
type MergeReport struct {
	PDF     []byte   `json:"-"`
	Merged  []string `json:"merged"`
	Skipped []string `json:"skipped,omitempty"`
	Pages   int      `json:"pages"`
}

// Merge concatenates the readable sources in order. Inputs that cannot be
// loaded or parsed are logged and skipped; a merge with no readable input
// yields an empty document.
func (p *Pipeline) Merge(ctx context.Context, sources []Source) (*MergeReport, error) {
	report := &MergeReport{}
	var inputs [][]byte

	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := src.label(i)
		data, pages, err := p.loadSource(ctx, src)
		if err != nil {
			p.logger.Error("skipping merge input",
				zap.String("document", name),
				zap.Error(err))
			p.observer.MergeInputSkipped(name)
			report.Skipped = append(report.Skipped, name)
			continue
		}
		inputs = append(inputs, data)
		report.Merged = append(report.Merged, name)
		report.Pages += pages
	}

	switch len(inputs) {
	case 0:
		report.PDF = []byte{}
		return report, nil
	case 1:
		report.PDF = inputs[0]
		return report, nil
	}

	readers := make([]io.ReadSeeker, len(inputs))
	for i, data := range inputs {
		readers[i] = bytes.NewReader(data)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, newConfiguration()); err != nil {
		return nil, fmt.Errorf("failed to merge documents: %w", err)
	}
	report.PDF = out.Bytes()

	p.logger.Debug("merged pdfs",
		zap.Int("merged", len(report.Merged)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("pages", report.Pages))
	return report, nil
}

func (p *Pipeline) loadSource(ctx context.Context, src Source) ([]byte, int, error) {
	data := src.Data
	if data == nil && src.Ref != nil {
		if p.resolver == nil {
			return nil, 0, fmt.Errorf("no resolver configured for document references")
		}
		var err error
		if data, err = p.resolver.Resolve(ctx, *src.Ref); err != nil {
			return nil, 0, err
		}
	}
	if err := p.validator.ValidateBytes(data); err != nil {
		return nil, 0, err
	}
	doc, err := Open(data)
	if err != nil {
		return nil, 0, err
	}
	return data, doc.PageCount(), nil
}
