package pdf

import (
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usnistgov/NEMO-custom-forms/internal/pdf/pdftest"
)

func sampleForm() []byte {
	return pdftest.New().
		Page(612, 792).
		Page(612, 792).
		TextField(1, "name", [4]float64{100, 700, 300, 720}).
		Checkbox(1, "agree", "Yes", [4]float64{100, 650, 112, 662}).
		AltTextField(2, "sig1", "Approver signature", [4]float64{100, 100, 300, 140}).
		Bytes()
}

func fieldByName(t *testing.T, fields []FieldInfo, name string) FieldInfo {
	t.Helper()
	for _, f := range fields {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("field %q not found", name)
	return FieldInfo{}
}

func TestInspect(t *testing.T) {
	fields, err := Inspect(sampleForm())
	require.NoError(t, err)
	require.Len(t, fields, 3)

	name := fieldByName(t, fields, "name")
	assert.Equal(t, FieldText, name.Type)
	assert.False(t, name.ReadOnly)
	require.Len(t, name.Widgets, 1)
	assert.Equal(t, 1, name.Widgets[0].Page)
	assert.InDelta(t, 200, name.Widgets[0].Rect.Width(), 0.001)

	agree := fieldByName(t, fields, "agree")
	assert.Equal(t, FieldCheckbox, agree.Type)
	assert.Equal(t, []string{"Off", "Yes"}, agree.States)
	assert.Equal(t, "Off", agree.Value)

	sig := fieldByName(t, fields, "sig1")
	assert.Equal(t, "Approver signature", sig.AltName)
	assert.Equal(t, 2, sig.Widgets[0].Page)

	assert.Equal(t, []string{"agree", "name", "sig1"}, FieldNames(fields))
	states := StatesByName(fields)
	assert.Contains(t, states, "name")
	assert.Equal(t, []string{"Off", "Yes"}, states["agree"])
}

func TestInspect_NoForm(t *testing.T) {
	fields, err := Inspect(pdftest.Blank(1, 200, 200))
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestOpen_Invalid(t *testing.T) {
	_, err := Open(nil)
	assert.Error(t, err)

	_, err = Open([]byte("not a pdf at all"))
	assert.Error(t, err)
}

func TestSetFieldValues(t *testing.T) {
	doc, err := Open(sampleForm())
	require.NoError(t, err)

	n, err := doc.SetFieldValues(map[string]string{
		"name":    "Jane (Doe)",
		"agree":   "yes",
		"missing": "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := doc.Bytes()
	require.NoError(t, err)
	fields, err := Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, "Jane (Doe)", fieldByName(t, fields, "name").Value)
	assert.Equal(t, "Yes", fieldByName(t, fields, "agree").Value)
}

func TestSetFieldValues_UnknownButtonState(t *testing.T) {
	doc, err := Open(sampleForm())
	require.NoError(t, err)

	n, err := doc.SetFieldValues(map[string]string{"agree": "Maybe"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSetFieldValues_UncheckButton(t *testing.T) {
	doc, err := Open(sampleForm())
	require.NoError(t, err)

	_, err = doc.SetFieldValues(map[string]string{"agree": "true"})
	require.NoError(t, err)
	n, err := doc.SetFieldValues(map[string]string{"agree": "false"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fields, err := doc.Fields()
	require.NoError(t, err)
	assert.Equal(t, "Off", fieldByName(t, fields, "agree").Value)
}

func TestFlattenFields(t *testing.T) {
	doc, err := Open(sampleForm())
	require.NoError(t, err)

	n, err := doc.FlattenFields()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	data, err := doc.Bytes()
	require.NoError(t, err)
	fields, err := Inspect(data)
	require.NoError(t, err)
	for _, f := range fields {
		assert.True(t, f.ReadOnly, f.Name)
	}
}

func TestSetFieldReadOnly(t *testing.T) {
	doc, err := Open(sampleForm())
	require.NoError(t, err)

	ok, err := doc.SetFieldReadOnly("name")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = doc.SetFieldReadOnly("nope")
	require.NoError(t, err)
	assert.False(t, ok)

	fields, err := doc.Fields()
	require.NoError(t, err)
	assert.True(t, fieldByName(t, fields, "name").ReadOnly)
	assert.False(t, fieldByName(t, fields, "agree").ReadOnly)
}

func TestSetFieldReadOnly_ParentFlagsKids(t *testing.T) {
	doc, err := Open(pdftest.New().
		Page(612, 792).
		TextGroup(1, "address", 1<<12, map[string][4]float64{"street": {50, 700, 300, 740}}).
		TextField(1, "name", [4]float64{50, 600, 300, 620}).
		Bytes())
	require.NoError(t, err)

	ok, err := doc.SetFieldReadOnly("address")
	require.NoError(t, err)
	assert.True(t, ok)

	fields, err := doc.Fields()
	require.NoError(t, err)
	street := fieldByName(t, fields, "address.street")
	assert.True(t, street.ReadOnly)
	assert.Equal(t, 1<<12|1, street.Flags)
	assert.False(t, fieldByName(t, fields, "name").ReadOnly)
}

func TestFindAnnotationsByTitle(t *testing.T) {
	doc, err := Open(sampleForm())
	require.NoError(t, err)

	byName, err := doc.FindAnnotationsByTitle("sig1")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, 2, byName[0].Page)
	assert.Equal(t, Rect{LLX: 100, LLY: 100, URX: 300, URY: 140}, byName[0].Rect)

	byAlt, err := doc.FindAnnotationsByTitle("Approver signature")
	require.NoError(t, err)
	assert.Equal(t, byName, byAlt)

	none, err := doc.FindAnnotationsByTitle("unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPageBox(t *testing.T) {
	doc, err := Open(pdftest.New().Page(200, 300).Page(400, 500).Bytes())
	require.NoError(t, err)
	assert.Equal(t, 2, doc.PageCount())

	box, err := doc.PageBox(2)
	require.NoError(t, err)
	assert.InDelta(t, 400, box.Width(), 0.001)
	assert.InDelta(t, 500, box.Height(), 0.001)

	_, err = doc.PageBox(3)
	assert.Error(t, err)
}

func TestClone_IsIndependent(t *testing.T) {
	doc, err := Open(sampleForm())
	require.NoError(t, err)
	clone, err := doc.Clone()
	require.NoError(t, err)

	_, err = clone.SetFieldValues(map[string]string{"name": "changed"})
	require.NoError(t, err)

	fields, err := doc.Fields()
	require.NoError(t, err)
	assert.Empty(t, fieldByName(t, fields, "name").Value)
}

func TestEncodeText(t *testing.T) {
	assert.Equal(t, types.StringLiteral(`a\(b\)\\`), encodeText(`a(b)\`))

	hex, ok := encodeText("Zoë").(types.HexLiteral)
	require.True(t, ok)
	assert.Equal(t, types.HexLiteral("feff005a006f00eb"), hex)
}
