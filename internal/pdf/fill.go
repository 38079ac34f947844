package pdf

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"sort"

	"go.uber.org/zap"
)

// Defaults for the fill pipeline
const (
	DefaultSignatureMaxFont = 48
	DefaultSignaturePadding = 2
	DefaultRenderScale      = 5
	DefaultStampMaxFont     = 400
	DefaultStampWidth       = 300
	DefaultStampHeight      = 100
	DefaultStampMargin      = 0.6
	DefaultStampColor       = "red"
	StampRotation           = 45
	minOverlayScale         = 0.01
)

// Observer is notified of pipeline events that do not fail a request
type Observer interface {
	SignatureSkipped(field string)
	MergeInputSkipped(name string)
}

type nopObserver struct{}

func (nopObserver) SignatureSkipped(string)  {}
func (nopObserver) MergeInputSkipped(string) {}

// Options configures a Pipeline
type Options struct {
	SignatureMaxFont float64
	SignaturePadding float64
	SignatureColor   color.Color
	RenderScale      float64
	StampMaxFont     float64
	StampWidth       float64
	StampHeight      float64
	StampMargin      float64
	StampColor       string
	MaxFileSize      int64
}

// DefaultOptions returns the stock pipeline options
func DefaultOptions() Options {
	return Options{
		SignatureMaxFont: DefaultSignatureMaxFont,
		SignaturePadding: DefaultSignaturePadding,
		SignatureColor:   color.Black,
		RenderScale:      DefaultRenderScale,
		StampMaxFont:     DefaultStampMaxFont,
		StampWidth:       DefaultStampWidth,
		StampHeight:      DefaultStampHeight,
		StampMargin:      DefaultStampMargin,
		StampColor:       DefaultStampColor,
		MaxFileSize:      DefaultMaxFileSize,
	}
}

// Pipeline fills, flattens, signs, stamps and merges PDF documents
type Pipeline struct {
	opts      Options
	validator *Validator
	resolver  Resolver
	observer  Observer
	logger    *zap.Logger
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithObserver reports skipped signatures and merge inputs to o
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithResolver loads merge sources given by reference
func WithResolver(r Resolver) Option {
	return func(p *Pipeline) { p.resolver = r }
}

// WithLogger sets the pipeline logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline creates a pipeline. Zero options fall back to the defaults.
func NewPipeline(opts Options, options ...Option) *Pipeline {
	def := DefaultOptions()
	if opts.SignatureMaxFont <= 0 {
		opts.SignatureMaxFont = def.SignatureMaxFont
	}
	if opts.SignaturePadding < 0 {
		opts.SignaturePadding = def.SignaturePadding
	}
	if opts.SignatureColor == nil {
		opts.SignatureColor = def.SignatureColor
	}
	if opts.RenderScale <= 0 {
		opts.RenderScale = def.RenderScale
	}
	if opts.StampMaxFont <= 0 {
		opts.StampMaxFont = def.StampMaxFont
	}
	if opts.StampWidth <= 0 || opts.StampHeight <= 0 {
		opts.StampWidth, opts.StampHeight = def.StampWidth, def.StampHeight
	}
	if opts.StampMargin <= 0 || opts.StampMargin > 1 {
		opts.StampMargin = def.StampMargin
	}
	if opts.StampColor == "" {
		opts.StampColor = def.StampColor
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = def.MaxFileSize
	}

	p := &Pipeline{
		opts:      opts,
		validator: NewValidator(opts.MaxFileSize),
		observer:  nopObserver{},
		logger:    zap.NewNop(),
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// FillRequest describes one fill operation
type FillRequest struct {
	PDF        []byte
	Fields     map[string]string
	Signatures map[string]string
	StampText  string
	StampColor string
	Flatten    bool
}

// FillResult reports what Fill did
type FillResult struct {
	PDF       []byte   `json:"-"`
	FieldsSet int      `json:"fields_set"`
	Placed    []string `json:"placed,omitempty"`
	Skipped   []string `json:"skipped,omitempty"`
	Stamped   bool     `json:"stamped"`
	Flattened bool     `json:"flattened"`
	PageCount int      `json:"page_count"`
}

// Fill writes field values into a copy of the template PDF, optionally
// marks every field read only, draws signatures into their annotation
// rectangles and stamps every page. The input bytes are never modified.
func (p *Pipeline) Fill(ctx context.Context, req FillRequest) (*FillResult, error) {
	if err := p.validator.ValidateBytes(req.PDF); err != nil {
		return nil, err
	}
	doc, err := Open(req.PDF)
	if err != nil {
		return nil, err
	}

	result := &FillResult{PageCount: doc.PageCount()}
	if result.FieldsSet, err = doc.SetFieldValues(req.Fields); err != nil {
		return nil, fmt.Errorf("failed to set field values: %w", err)
	}
	if req.Flatten {
		if _, err := doc.FlattenFields(); err != nil {
			return nil, fmt.Errorf("failed to flatten fields: %w", err)
		}
		result.Flattened = true
	}

	var overlays []Overlay
	signed, err := p.signatureOverlays(ctx, doc, req.Signatures, result)
	if err != nil {
		return nil, err
	}
	overlays = append(overlays, signed...)

	if req.StampText != "" {
		stamped, err := p.stampOverlays(doc, req.StampText, req.StampColor)
		if err != nil {
			return nil, err
		}
		result.Stamped = len(stamped) > 0
		overlays = append(overlays, stamped...)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := doc.Composite(overlays); err != nil {
		return nil, err
	}
	if result.PDF, err = doc.Bytes(); err != nil {
		return nil, err
	}

	p.logger.Debug("filled pdf",
		zap.Int("fields_set", result.FieldsSet),
		zap.Int("signatures", len(result.Placed)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Bool("stamped", result.Stamped),
		zap.Bool("flattened", result.Flattened))
	return result, nil
}

func (p *Pipeline) signatureOverlays(ctx context.Context, doc Document, signatures map[string]string, result *FillResult) ([]Overlay, error) {
	if len(signatures) == 0 {
		return nil, nil
	}
	face, err := SignatureFont()
	if err != nil {
		return nil, err
	}
	style := TextStyle{
		Font:    face,
		MaxSize: p.opts.SignatureMaxFont,
		Padding: p.opts.SignaturePadding,
		Color:   p.opts.SignatureColor,
		Scale:   p.opts.RenderScale,
	}

	names := make([]string, 0, len(signatures))
	for name := range signatures {
		names = append(names, name)
	}
	sort.Strings(names)

	var overlays []Overlay
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := signatures[name]
		if text == "" {
			continue
		}
		annots, err := doc.FindAnnotationsByTitle(name)
		if err != nil {
			return nil, fmt.Errorf("failed to find annotations for %q: %w", name, err)
		}
		placed := false
		for _, a := range annots {
			raster, err := FitText(text, a.Rect.Width(), a.Rect.Height(), style)
			if err != nil {
				return nil, err
			}
			if raster == nil {
				p.logger.Warn("signature does not fit its field",
					zap.String("field", name),
					zap.Int("page", a.Page),
					zap.Float64("width", a.Rect.Width()),
					zap.Float64("height", a.Rect.Height()))
				p.observer.SignatureSkipped(name)
				continue
			}
			overlays = append(overlays, Overlay{
				Page:  a.Page,
				Image: raster.Image,
				X:     a.Rect.LLX + (a.Rect.Width()-raster.Width)/2,
				Y:     a.Rect.LLY + (a.Rect.Height()-raster.Height)/2,
				Scale: 1 / p.opts.RenderScale,
			})
			placed = true
		}
		if placed {
			result.Placed = append(result.Placed, name)
		} else {
			result.Skipped = append(result.Skipped, name)
		}
	}
	return overlays, nil
}

// stampScale returns the scale that fits a w by h raster, rotated by 45
// degrees, within margin of a page
func stampScale(w, h float64, page Rect, margin float64) float64 {
	d := (w + h) / math.Sqrt2
	pw, ph := page.Width()*margin, page.Height()*margin
	s := math.Min(math.Min(pw/w, ph/h), math.Min(pw/d, ph/d))
	return s
}

func (p *Pipeline) stampOverlays(doc Document, text, colorName string) ([]Overlay, error) {
	face, err := StampFont()
	if err != nil {
		return nil, err
	}
	if colorName == "" {
		colorName = p.opts.StampColor
	}
	raster, err := FitText(text, p.opts.StampWidth, p.opts.StampHeight, TextStyle{
		Font:    face,
		MaxSize: p.opts.StampMaxFont,
		Color:   ParseColor(colorName, color.RGBA{R: 0xff, A: 0xff}),
		Scale:   p.opts.RenderScale,
	})
	if err != nil {
		return nil, err
	}
	if raster == nil {
		p.logger.Warn("stamp text does not fit", zap.String("text", text))
		return nil, nil
	}

	overlays := make([]Overlay, 0, doc.PageCount())
	for page := 1; page <= doc.PageCount(); page++ {
		box, err := doc.PageBox(page)
		if err != nil {
			return nil, err
		}
		scale := stampScale(raster.Width, raster.Height, box, p.opts.StampMargin) / p.opts.RenderScale
		if scale < minOverlayScale {
			scale = minOverlayScale
		}
		overlays = append(overlays, Overlay{
			Page:     page,
			Image:    raster.Image,
			Scale:    scale,
			Rotation: StampRotation,
			Centered: true,
		})
	}
	return overlays, nil
}
