// Package pdftest builds small, valid PDF documents for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// Kind of a generated form field
type Kind int

const (
	Text Kind = iota
	Checkbox
)

// Field is one generated form field with a single widget
type Field struct {
	Name    string
	Alt     string
	Kind    Kind
	Page    int
	Rect    [4]float64
	Value   string
	OnState string
}

// Group is a non-terminal text field. Its kids are text widgets that inherit
// the group's FT and Ff.
type Group struct {
	Name  string
	Flags int
	Kids  []Field
}

// Builder accumulates pages and fields
type Builder struct {
	pages  [][2]float64
	fields []Field
	groups []Group
}

// New returns an empty builder
func New() *Builder {
	return &Builder{}
}

// Page appends a page of the given size in points
func (b *Builder) Page(width, height float64) *Builder {
	b.pages = append(b.pages, [2]float64{width, height})
	return b
}

// TextField adds a text field on page (1 based)
func (b *Builder) TextField(page int, name string, rect [4]float64) *Builder {
	b.fields = append(b.fields, Field{Name: name, Kind: Text, Page: page, Rect: rect})
	return b
}

// AltTextField adds a text field with an alternate (TU) name
func (b *Builder) AltTextField(page int, name, alt string, rect [4]float64) *Builder {
	b.fields = append(b.fields, Field{Name: name, Alt: alt, Kind: Text, Page: page, Rect: rect})
	return b
}

// Checkbox adds a checkbox with onState and Off appearances
func (b *Builder) Checkbox(page int, name, onState string, rect [4]float64) *Builder {
	b.fields = append(b.fields, Field{Name: name, Kind: Checkbox, Page: page, Rect: rect, OnState: onState})
	return b
}

// TextGroup adds a parent text field with the given Ff and one kid field per
// name, each with a single widget
func (b *Builder) TextGroup(page int, name string, flags int, kids map[string][4]float64) *Builder {
	g := Group{Name: name, Flags: flags}
	for _, kid := range sortedKeys(kids) {
		g.Kids = append(g.Kids, Field{Name: kid, Kind: Text, Page: page, Rect: kids[kid]})
	}
	b.groups = append(b.groups, g)
	return b
}

func sortedKeys(m map[string][4]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Blank returns a document of n pages without fields
func Blank(n int, width, height float64) []byte {
	b := New()
	for i := 0; i < n; i++ {
		b.Page(width, height)
	}
	return b.Bytes()
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`).Replace(s)
}

type writer struct {
	buf     bytes.Buffer
	offsets []int
}

func (w *writer) object(nr int, body string) {
	for len(w.offsets) < nr {
		w.offsets = append(w.offsets, 0)
	}
	w.offsets[nr-1] = w.buf.Len()
	fmt.Fprintf(&w.buf, "%d 0 obj\n%s\nendobj\n", nr, body)
}

func stream(dict, data string) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}

// Bytes renders the document. A builder without pages gets one letter page.
func (b *Builder) Bytes() []byte {
	pages := b.pages
	if len(pages) == 0 {
		pages = [][2]float64{{612, 792}}
	}

	// object layout: catalog, pages, font, then per page a page and a
	// content stream, then per field a widget and, for checkboxes, two
	// appearance streams
	const catalog, pagesNr, fontNr = 1, 2, 3
	pageNr := func(i int) int { return 4 + 2*i }
	contentNr := func(i int) int { return 5 + 2*i }
	next := 4 + 2*len(pages)

	fieldNrs := make([]int, len(b.fields))
	apNrs := make([][2]int, len(b.fields))
	for i, f := range b.fields {
		fieldNrs[i] = next
		next++
		if f.Kind == Checkbox {
			apNrs[i] = [2]int{next, next + 1}
			next += 2
		}
	}

	groupNrs := make([]int, len(b.groups))
	kidNrs := make([][]int, len(b.groups))
	for i, g := range b.groups {
		groupNrs[i] = next
		next++
		for range g.Kids {
			kidNrs[i] = append(kidNrs[i], next)
			next++
		}
	}

	pageIndex := func(f Field) int {
		p := f.Page - 1
		if p < 0 || p >= len(pages) {
			p = 0
		}
		return p
	}
	annots := make([][]string, len(pages))
	for i, f := range b.fields {
		p := pageIndex(f)
		annots[p] = append(annots[p], fmt.Sprintf("%d 0 R", fieldNrs[i]))
	}
	for i, g := range b.groups {
		for j, kid := range g.Kids {
			p := pageIndex(kid)
			annots[p] = append(annots[p], fmt.Sprintf("%d 0 R", kidNrs[i][j]))
		}
	}

	w := &writer{}
	w.buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	refs := make([]string, 0, len(b.fields)+len(b.groups))
	for i := range b.fields {
		refs = append(refs, fmt.Sprintf("%d 0 R", fieldNrs[i]))
	}
	for i := range b.groups {
		refs = append(refs, fmt.Sprintf("%d 0 R", groupNrs[i]))
	}
	acro := ""
	if len(refs) > 0 {
		acro = fmt.Sprintf(" /AcroForm << /Fields [%s] /DA (/Helv 0 Tf 0 g) /DR << /Font << /Helv %d 0 R >> >> >>",
			strings.Join(refs, " "), fontNr)
	}
	w.object(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R%s >>", pagesNr, acro))

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", pageNr(i))
	}
	w.object(pagesNr, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	w.object(fontNr, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, size := range pages {
		annotEntry := ""
		if len(annots[i]) > 0 {
			annotEntry = fmt.Sprintf(" /Annots [%s]", strings.Join(annots[i], " "))
		}
		w.object(pageNr(i), fmt.Sprintf(
			"<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %g %g] /Resources << /Font << /Helv %d 0 R >> >> /Contents %d 0 R%s >>",
			pagesNr, size[0], size[1], fontNr, contentNr(i), annotEntry))
		content := fmt.Sprintf("BT /Helv 12 Tf 36 36 Td (Page %d) Tj ET", i+1)
		w.object(contentNr(i), stream("", content))
	}

	for i, f := range b.fields {
		page := pageIndex(f)
		rect := fmt.Sprintf("[%g %g %g %g]", f.Rect[0], f.Rect[1], f.Rect[2], f.Rect[3])
		alt := ""
		if f.Alt != "" {
			alt = fmt.Sprintf(" /TU (%s)", escape(f.Alt))
		}
		common := fmt.Sprintf("/Type /Annot /Subtype /Widget /T (%s)%s /Rect %s /P %d 0 R /F 4",
			escape(f.Name), alt, rect, pageNr(page))

		switch f.Kind {
		case Checkbox:
			on := f.OnState
			if on == "" {
				on = "Yes"
			}
			w.object(fieldNrs[i], fmt.Sprintf("<< %s /FT /Btn /V /Off /AS /Off /AP << /N << /%s %d 0 R /Off %d 0 R >> >> >>",
				common, on, apNrs[i][0], apNrs[i][1]))
			bbox := fmt.Sprintf("/Type /XObject /Subtype /Form /BBox [0 0 %g %g]", f.Rect[2]-f.Rect[0], f.Rect[3]-f.Rect[1])
			w.object(apNrs[i][0], stream(bbox, "0 g 1 1 m 8 8 l S"))
			w.object(apNrs[i][1], stream(bbox, ""))
		default:
			value := ""
			if f.Value != "" {
				value = fmt.Sprintf(" /V (%s)", escape(f.Value))
			}
			w.object(fieldNrs[i], fmt.Sprintf("<< %s /FT /Tx /DA (/Helv 10 Tf 0 g)%s >>", common, value))
		}
	}

	for i, g := range b.groups {
		kids := make([]string, len(g.Kids))
		for j, kid := range g.Kids {
			kids[j] = fmt.Sprintf("%d 0 R", kidNrs[i][j])
			rect := fmt.Sprintf("[%g %g %g %g]", kid.Rect[0], kid.Rect[1], kid.Rect[2], kid.Rect[3])
			w.object(kidNrs[i][j], fmt.Sprintf(
				"<< /Type /Annot /Subtype /Widget /T (%s) /Parent %d 0 R /Rect %s /P %d 0 R /F 4 /DA (/Helv 10 Tf 0 g) >>",
				escape(kid.Name), groupNrs[i], rect, pageNr(pageIndex(kid))))
		}
		w.object(groupNrs[i], fmt.Sprintf("<< /T (%s) /FT /Tx /Ff %d /Kids [%s] >>",
			escape(g.Name), g.Flags, strings.Join(kids, " ")))
	}

	xref := w.buf.Len()
	fmt.Fprintf(&w.buf, "xref\n0 %d\n", len(w.offsets)+1)
	w.buf.WriteString("0000000000 65535 f \n")
	for _, off := range w.offsets {
		fmt.Fprintf(&w.buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&w.buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(w.offsets)+1, catalog, xref)
	return w.buf.Bytes()
}
