package pdf

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"image"
	"image/png"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Field flag bits
const (
	flagReadOnly   = 1
	flagRequired   = 1 << 1
	flagRadio      = 1 << 15
	flagPushButton = 1 << 16
)

// Rect is a rectangle in PDF user space
type Rect struct {
	LLX float64 `json:"llx"`
	LLY float64 `json:"lly"`
	URX float64 `json:"urx"`
	URY float64 `json:"ury"`
}

// Width of the rectangle
func (r Rect) Width() float64 { return r.URX - r.LLX }

// Height of the rectangle
func (r Rect) Height() float64 { return r.URY - r.LLY }

// Annotation is a widget placed on a page
type Annotation struct {
	Field string `json:"field"`
	Page  int    `json:"page"`
	Rect  Rect   `json:"rect"`
}

// Overlay is a raster composited onto a page. Centered overlays are placed in
// the middle of the page and rotated about their own centre; others have
// their lower left corner at X, Y.
type Overlay struct {
	Page     int
	Image    image.Image
	X, Y     float64
	Scale    float64
	Rotation float64
	Centered bool
}

// Document is the narrow view of a PDF used by the fill pipeline
type Document interface {
	PageCount() int
	PageBox(page int) (Rect, error)
	Fields() ([]FieldInfo, error)
	SetFieldValues(values map[string]string) (int, error)
	SetFieldReadOnly(name string) (bool, error)
	FlattenFields() (int, error)
	FindAnnotationsByTitle(name string) ([]Annotation, error)
	Composite(overlays []Overlay) error
	Clone() (Document, error)
	Bytes() ([]byte, error)
}

func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Open parses a PDF into an editable document. The source bytes are not
// retained, so the document is a full copy.
func Open(data []byte) (Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty PDF")
	}
	ctx, err := api.ReadContext(bytes.NewReader(data), newConfiguration())
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to validate PDF: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to ensure page count: %w", err)
	}
	return &pdfcpuDocument{ctx: ctx}, nil
}

type pdfcpuDocument struct {
	ctx *model.Context
}

// fieldNode is one field dictionary of the AcroForm tree
type fieldNode struct {
	dict     types.Dict
	name     string
	partial  string
	alt      string
	ft       string
	flags    int
	terminal bool
	widgets  []widgetRef
}

type widgetRef struct {
	objNr int
	dict  types.Dict
}

func (d *pdfcpuDocument) PageCount() int {
	return d.ctx.PageCount
}

func (d *pdfcpuDocument) PageBox(page int) (Rect, error) {
	if page < 1 || page > d.ctx.PageCount {
		return Rect{}, fmt.Errorf("invalid page number %d (document has %d pages)", page, d.ctx.PageCount)
	}
	_, _, inh, err := d.ctx.PageDict(page, false)
	if err != nil {
		return Rect{}, fmt.Errorf("failed to read page %d: %w", page, err)
	}
	if inh == nil {
		return Rect{}, fmt.Errorf("page %d has no media box", page)
	}
	box := inh.CropBox
	if box == nil {
		box = inh.MediaBox
	}
	if box == nil {
		return Rect{}, fmt.Errorf("page %d has no media box", page)
	}
	return Rect{LLX: box.LL.X, LLY: box.LL.Y, URX: box.UR.X, URY: box.UR.Y}, nil
}

func (d *pdfcpuDocument) acroForm() (types.Dict, error) {
	root, err := d.ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}
	obj, found := root.Find("AcroForm")
	if !found {
		return nil, nil
	}
	form, err := d.ctx.DereferenceDict(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference AcroForm: %w", err)
	}
	return form, nil
}

// walk returns every field dictionary of the AcroForm tree
func (d *pdfcpuDocument) walk() ([]*fieldNode, error) {
	form, err := d.acroForm()
	if err != nil || form == nil {
		return nil, err
	}
	obj, found := form.Find("Fields")
	if !found {
		return nil, nil
	}
	fields, err := d.ctx.DereferenceArray(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference Fields array: %w", err)
	}

	var nodes []*fieldNode
	for _, f := range fields {
		nodes = d.walkField(nodes, f, "", "", 0, 0)
	}
	return nodes, nil
}

func objectNumber(o types.Object) int {
	if ir, ok := o.(types.IndirectRef); ok {
		return ir.ObjectNumber.Value()
	}
	return 0
}

func (d *pdfcpuDocument) walkField(nodes []*fieldNode, obj types.Object, parent, ft string, flags, depth int) []*fieldNode {
	if depth > 32 {
		return nodes
	}
	dict, err := d.ctx.DereferenceDict(obj)
	if err != nil || dict == nil {
		return nodes
	}

	node := &fieldNode{dict: dict, ft: ft, flags: flags}
	node.partial = d.text(dict, "T")
	node.alt = d.text(dict, "TU")
	node.name = node.partial
	if parent != "" {
		node.name = parent + "." + node.partial
	}
	if o, found := dict.Find("FT"); found {
		if name, err := d.ctx.DereferenceName(o, model.V10, nil); err == nil {
			node.ft = string(name)
		}
	}
	if o, found := dict.Find("Ff"); found {
		if i, err := d.ctx.DereferenceInteger(o); err == nil && i != nil {
			node.flags = i.Value()
		}
	}
	nodes = append(nodes, node)

	var kids types.Array
	if o, found := dict.Find("Kids"); found {
		kids, _ = d.ctx.DereferenceArray(o)
	}
	if len(kids) == 0 {
		node.terminal = true
		node.widgets = []widgetRef{{objNr: objectNumber(obj), dict: dict}}
		return nodes
	}

	node.terminal = true
	for _, kid := range kids {
		kd, err := d.ctx.DereferenceDict(kid)
		if err != nil || kd == nil {
			continue
		}
		if _, isField := kd.Find("T"); isField {
			node.terminal = false
			nodes = d.walkField(nodes, kid, node.name, node.ft, node.flags, depth+1)
			continue
		}
		node.widgets = append(node.widgets, widgetRef{objNr: objectNumber(kid), dict: kd})
	}
	return nodes
}

func (d *pdfcpuDocument) text(dict types.Dict, key string) string {
	o, found := dict.Find(key)
	if !found {
		return ""
	}
	s, err := d.ctx.DereferenceStringOrHexLiteral(o, model.V10, nil)
	if err != nil {
		return ""
	}
	return s
}

func (d *pdfcpuDocument) name(dict types.Dict, key string) string {
	o, found := dict.Find(key)
	if !found {
		return ""
	}
	n, err := d.ctx.DereferenceName(o, model.V10, nil)
	if err != nil {
		return ""
	}
	return string(n)
}

func (d *pdfcpuDocument) rect(dict types.Dict) (Rect, bool) {
	o, found := dict.Find("Rect")
	if !found {
		return Rect{}, false
	}
	arr, err := d.ctx.DereferenceArray(o)
	if err != nil || len(arr) != 4 {
		return Rect{}, false
	}
	var c [4]float64
	for i, v := range arr {
		f, err := d.ctx.DereferenceNumber(v)
		if err != nil {
			return Rect{}, false
		}
		c[i] = f
	}
	r := Rect{LLX: c[0], LLY: c[1], URX: c[2], URY: c[3]}
	if r.LLX > r.URX {
		r.LLX, r.URX = r.URX, r.LLX
	}
	if r.LLY > r.URY {
		r.LLY, r.URY = r.URY, r.LLY
	}
	return r, true
}

// appearanceStates returns the names of a widget's normal appearances
func (d *pdfcpuDocument) appearanceStates(widget types.Dict) []string {
	o, found := widget.Find("AP")
	if !found {
		return nil
	}
	ap, err := d.ctx.DereferenceDict(o)
	if err != nil || ap == nil {
		return nil
	}
	n, found := ap.Find("N")
	if !found {
		return nil
	}
	normal, err := d.ctx.DereferenceDict(n)
	if err != nil || normal == nil {
		return nil
	}
	states := make([]string, 0, len(normal))
	for k := range normal {
		states = append(states, k)
	}
	sort.Strings(states)
	return states
}

func (d *pdfcpuDocument) options(dict types.Dict) []string {
	o, found := dict.Find("Opt")
	if !found {
		return nil
	}
	arr, err := d.ctx.DereferenceArray(o)
	if err != nil {
		return nil
	}
	var out []string
	for _, opt := range arr {
		if s, err := d.ctx.DereferenceStringOrHexLiteral(opt, model.V10, nil); err == nil {
			out = append(out, s)
		} else if pair, err := d.ctx.DereferenceArray(opt); err == nil && len(pair) >= 1 {
			if s, err := d.ctx.DereferenceStringOrHexLiteral(pair[0], model.V10, nil); err == nil {
				out = append(out, s)
			}
		}
	}
	return out
}

func (d *pdfcpuDocument) states(node *fieldNode) []string {
	if node.ft == "Ch" {
		return d.options(node.dict)
	}
	if node.ft != "Btn" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, w := range node.widgets {
		for _, s := range d.appearanceStates(w.dict) {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

// widgetPages maps widget object numbers to their page
func (d *pdfcpuDocument) widgetPages() map[int]int {
	pages := make(map[int]int)
	for p := 1; p <= d.ctx.PageCount; p++ {
		page, _, _, err := d.ctx.PageDict(p, false)
		if err != nil || page == nil {
			continue
		}
		o, found := page.Find("Annots")
		if !found {
			continue
		}
		annots, err := d.ctx.DereferenceArray(o)
		if err != nil {
			continue
		}
		for _, a := range annots {
			if nr := objectNumber(a); nr != 0 {
				pages[nr] = p
			}
		}
	}
	return pages
}

func fieldType(node *fieldNode) FieldType {
	switch node.ft {
	case "Tx":
		return FieldText
	case "Ch":
		return FieldChoice
	case "Sig":
		return FieldSignature
	case "Btn":
		switch {
		case node.flags&flagRadio != 0:
			return FieldRadio
		case node.flags&flagPushButton != 0:
			return FieldButton
		}
		return FieldCheckbox
	}
	return FieldUnknown
}

func (d *pdfcpuDocument) Fields() ([]FieldInfo, error) {
	nodes, err := d.walk()
	if err != nil {
		return nil, err
	}
	pages := d.widgetPages()

	var out []FieldInfo
	for _, node := range nodes {
		if !node.terminal {
			continue
		}
		info := FieldInfo{
			Name:        node.name,
			PartialName: node.partial,
			AltName:     node.alt,
			Type:        fieldType(node),
			Flags:       node.flags,
			ReadOnly:    node.flags&flagReadOnly != 0,
			Required:    node.flags&flagRequired != 0,
			States:      d.states(node),
		}
		switch node.ft {
		case "Btn":
			info.Value = d.name(node.dict, "V")
		default:
			info.Value = d.text(node.dict, "V")
		}
		for _, w := range node.widgets {
			r, ok := d.rect(w.dict)
			if !ok {
				continue
			}
			info.Widgets = append(info.Widgets, Annotation{Field: node.name, Page: pages[w.objNr], Rect: r})
		}
		out = append(out, info)
	}
	return out, nil
}

// encodeText converts a Go string into a PDF text string object
func encodeText(s string) types.Object {
	ascii := true
	for _, r := range s {
		if r > 126 || (r < 32 && r != '\n' && r != '\r' && r != '\t') {
			ascii = false
			break
		}
	}
	if ascii {
		r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`, "\r", `\r`, "\n", `\n`)
		return types.StringLiteral(r.Replace(s))
	}
	units := utf16.Encode([]rune(s))
	b := make([]byte, 2, 2+2*len(units))
	b[0], b[1] = 0xFE, 0xFF
	for _, u := range units {
		b = append(b, byte(u>>8), byte(u))
	}
	return types.HexLiteral(hex.EncodeToString(b))
}

func matches(node *fieldNode, values map[string]string) (string, bool) {
	if v, ok := values[node.name]; ok {
		return v, true
	}
	v, ok := values[node.partial]
	return v, ok
}

var (
	truthy = map[string]bool{"yes": true, "true": true, "on": true, "x": true, "1": true, "checked": true}
	falsy  = map[string]bool{"": true, "no": true, "false": true, "off": true, "0": true}
)

func (d *pdfcpuDocument) setButton(node *fieldNode, value string) bool {
	states := d.states(node)
	target := ""
	for _, s := range states {
		if s == value {
			target = value
			break
		}
	}
	if target == "" {
		switch {
		case falsy[strings.ToLower(value)]:
			target = "Off"
		case truthy[strings.ToLower(value)]:
			for _, s := range states {
				if s != "Off" {
					target = s
					break
				}
			}
		}
	}
	if target == "" {
		return false
	}

	node.dict["V"] = types.Name(target)
	for _, w := range node.widgets {
		as := "Off"
		for _, s := range d.appearanceStates(w.dict) {
			if s == target {
				as = target
			}
		}
		w.dict["AS"] = types.Name(as)
	}
	return true
}

func (d *pdfcpuDocument) SetFieldValues(values map[string]string) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}
	nodes, err := d.walk()
	if err != nil {
		return 0, err
	}

	set := 0
	needAppearances := false
	for _, node := range nodes {
		if !node.terminal {
			continue
		}
		value, ok := matches(node, values)
		if !ok {
			continue
		}
		switch node.ft {
		case "Btn":
			if node.flags&flagPushButton != 0 || !d.setButton(node, value) {
				continue
			}
		case "Sig":
			continue
		default:
			node.dict["V"] = encodeText(value)
			for _, w := range node.widgets {
				delete(w.dict, "AP")
			}
			needAppearances = true
		}
		set++
	}

	if needAppearances {
		if form, err := d.acroForm(); err == nil && form != nil {
			form["NeedAppearances"] = types.Boolean(true)
		}
	}
	return set, nil
}

func (d *pdfcpuDocument) SetFieldReadOnly(name string) (bool, error) {
	nodes, err := d.walk()
	if err != nil {
		return false, err
	}
	var matched []string
	for _, node := range nodes {
		if node.name == name || node.partial == name {
			matched = append(matched, node.name)
		}
	}
	for _, node := range nodes {
		for _, m := range matched {
			if node.name == m || strings.HasPrefix(node.name, m+".") {
				setReadOnly(node)
				break
			}
		}
	}
	return len(matched) > 0, nil
}

// setReadOnly writes the node's effective flags, inherited ones included, with
// the read-only bit set. A kid's own Ff replaces its parent's.
func setReadOnly(node *fieldNode) {
	node.flags |= flagReadOnly
	node.dict["Ff"] = types.Integer(node.flags)
}

func (d *pdfcpuDocument) FlattenFields() (int, error) {
	nodes, err := d.walk()
	if err != nil {
		return 0, err
	}
	for _, node := range nodes {
		setReadOnly(node)
	}
	return len(nodes), nil
}

func (d *pdfcpuDocument) FindAnnotationsByTitle(name string) ([]Annotation, error) {
	nodes, err := d.walk()
	if err != nil {
		return nil, err
	}
	pages := d.widgetPages()

	var out []Annotation
	for _, node := range nodes {
		if !node.terminal {
			continue
		}
		fieldMatch := node.name == name || node.partial == name || node.alt == name
		for _, w := range node.widgets {
			if !fieldMatch && d.text(w.dict, "T") != name && d.text(w.dict, "TU") != name {
				continue
			}
			page, ok := pages[w.objNr]
			if !ok {
				continue
			}
			r, ok := d.rect(w.dict)
			if !ok {
				continue
			}
			out = append(out, Annotation{Field: node.name, Page: page, Rect: r})
		}
	}
	return out, nil
}

func (o Overlay) description(box Rect) string {
	if o.Centered {
		return fmt.Sprintf("position:c, offset:0 0, scalefactor:%.4f abs, rotation:%.2f, opacity:1", o.Scale, o.Rotation)
	}
	return fmt.Sprintf("position:bl, offset:%.2f %.2f, scalefactor:%.4f abs, rotation:%.2f, opacity:1",
		o.X-box.LLX, o.Y-box.LLY, o.Scale, o.Rotation)
}

func (d *pdfcpuDocument) Composite(overlays []Overlay) error {
	if len(overlays) == 0 {
		return nil
	}

	byPage := make(map[int][]*model.Watermark)
	for _, o := range overlays {
		box, err := d.PageBox(o.Page)
		if err != nil {
			return err
		}
		var img bytes.Buffer
		if err := png.Encode(&img, o.Image); err != nil {
			return fmt.Errorf("failed to encode overlay: %w", err)
		}
		wm, err := api.ImageWatermarkForReader(&img, o.description(box), true, false, types.POINTS)
		if err != nil {
			return fmt.Errorf("failed to prepare overlay for page %d: %w", o.Page, err)
		}
		byPage[o.Page] = append(byPage[o.Page], wm)
	}

	src, err := d.Bytes()
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := api.AddWatermarksSliceMap(bytes.NewReader(src), &out, byPage, newConfiguration()); err != nil {
		return fmt.Errorf("failed to composite overlays: %w", err)
	}

	next, err := Open(out.Bytes())
	if err != nil {
		return err
	}
	d.ctx = next.(*pdfcpuDocument).ctx
	return nil
}

func (d *pdfcpuDocument) Clone() (Document, error) {
	data, err := d.Bytes()
	if err != nil {
		return nil, err
	}
	return Open(data)
}

func (d *pdfcpuDocument) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := api.WriteContext(d.ctx, &buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}
