package pdf

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/colornames"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// descenderTrim is removed from the rendered height, as a share of the font
// size, so handwriting-style text sits tight against the box
const descenderTrim = 0.27

var (
	fontsOnce   sync.Once
	italicFont  *opentype.Font
	boldFont    *opentype.Font
	fontLoadErr error
)

func loadFonts() error {
	fontsOnce.Do(func() {
		italicFont, fontLoadErr = opentype.Parse(goitalic.TTF)
		if fontLoadErr != nil {
			return
		}
		boldFont, fontLoadErr = opentype.Parse(gobold.TTF)
	})
	return fontLoadErr
}

// SignatureFont returns the face used for signatures
func SignatureFont() (*opentype.Font, error) {
	if err := loadFonts(); err != nil {
		return nil, fmt.Errorf("failed to load signature font: %w", err)
	}
	return italicFont, nil
}

// StampFont returns the face used for page stamps
func StampFont() (*opentype.Font, error) {
	if err := loadFonts(); err != nil {
		return nil, fmt.Errorf("failed to load stamp font: %w", err)
	}
	return boldFont, nil
}

// TextStyle controls how FitText renders a string
type TextStyle struct {
	Font    *opentype.Font
	MaxSize float64
	Padding float64
	Color   color.Color
	// Scale is the number of pixels per point
	Scale float64
}

// Raster is rendered text with its size in points
type Raster struct {
	Image    *image.RGBA
	FontSize float64
	Width    float64
	Height   float64
}

type textMetrics struct {
	advance fixed.Int26_6
	ascent  fixed.Int26_6
	width   int
	height  int
	pad     int
	trim    int
}

func measure(face font.Face, text string, size, scale, padding float64) textMetrics {
	m := face.Metrics()
	advance := font.MeasureString(face, text)
	trim := int(math.Round(descenderTrim * size * scale))
	pad := int(math.Ceil(padding * scale))
	return textMetrics{
		advance: advance,
		ascent:  m.Ascent,
		width:   advance.Ceil() + 2*pad,
		height:  (m.Ascent + m.Descent).Ceil() - trim + 2*pad,
		pad:     pad,
		trim:    trim,
	}
}

// FitText renders text at the largest whole font size, from MaxSize down to
// one point, that fits inside a width by height box. It returns nil when no
// size fits.
func FitText(text string, width, height float64, style TextStyle) (*Raster, error) {
	if style.Font == nil {
		return nil, fmt.Errorf("text style has no font")
	}
	if style.Scale <= 0 {
		style.Scale = 1
	}
	if style.Color == nil {
		style.Color = color.Black
	}
	maxW := int(math.Floor(width * style.Scale))
	maxH := int(math.Floor(height * style.Scale))

	for size := math.Floor(style.MaxSize); size >= 1; size-- {
		face, err := opentype.NewFace(style.Font, &opentype.FaceOptions{
			Size:    size * style.Scale,
			DPI:     72,
			Hinting: font.HintingNone,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create font face: %w", err)
		}
		m := measure(face, text, size, style.Scale, style.Padding)
		if m.width > maxW || m.height > maxH || m.height <= 0 {
			_ = face.Close()
			continue
		}

		img := image.NewRGBA(image.Rect(0, 0, m.width, m.height))
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(style.Color),
			Face: face,
			Dot:  fixed.Point26_6{X: fixed.I(m.pad), Y: fixed.I(m.pad) + m.ascent - fixed.I(m.trim/2)},
		}
		d.DrawString(text)
		_ = face.Close()

		return &Raster{
			Image:    img,
			FontSize: size,
			Width:    float64(m.width) / style.Scale,
			Height:   float64(m.height) / style.Scale,
		}, nil
	}
	return nil, nil
}

// ParseColor accepts a color name or a #rrggbb value
func ParseColor(s string, fallback color.Color) color.Color {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return fallback
	}
	if c, ok := colornames.Map[s]; ok {
		return c
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return fallback
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return fallback
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}
