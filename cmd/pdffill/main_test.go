package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usnistgov/NEMO-custom-forms/internal/pdf"
	"github.com/usnistgov/NEMO-custom-forms/internal/pdf/pdftest"
)

func testFS(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	form := pdftest.New().
		Page(612, 792).
		TextField(1, "name", [4]float64{50, 700, 300, 720}).
		Checkbox(1, "agree", "Yes", [4]float64{50, 650, 70, 670}).
		Bytes()
	require.NoError(t, afero.WriteFile(fs, "form.pdf", form, 0o644))
	require.NoError(t, afero.WriteFile(fs, "blank.pdf", pdftest.Blank(2, 612, 792), 0o644))
	return fs
}

func run(t *testing.T, fs afero.Fs, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(fs)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFieldsCommand(t *testing.T) {
	fs := testFS(t)

	out, err := run(t, fs, "fields", "form.pdf")
	require.NoError(t, err)
	assert.Contains(t, out, "name\ttext")
	assert.Contains(t, out, "agree\tcheckbox")

	out, err = run(t, fs, "fields", "--format", "json", "form.pdf")
	require.NoError(t, err)
	var fields []pdf.FieldInfo
	require.NoError(t, json.Unmarshal([]byte(out), &fields))
	assert.Len(t, fields, 2)

	_, err = run(t, fs, "fields", "missing.pdf")
	assert.Error(t, err)
}

func TestFillCommand(t *testing.T) {
	fs := testFS(t)

	out, err := run(t, fs, "fill", "form.pdf", "-o", "filled.pdf", "-f", "name=Ada", "-f", "agree=true", "--flatten", "--stamp", "CANCELLED")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote filled.pdf (1 pages")

	data, err := afero.ReadFile(fs, "filled.pdf")
	require.NoError(t, err)
	fields, err := pdf.Inspect(data)
	require.NoError(t, err)
	for _, f := range fields {
		assert.True(t, f.ReadOnly, f.Name)
		if f.Name == "name" {
			assert.Equal(t, "Ada", f.Value)
		}
	}

	_, err = run(t, fs, "fill", "form.pdf")
	assert.Error(t, err, "--out is required")
}

func TestMergeCommand(t *testing.T) {
	fs := testFS(t)

	out, err := run(t, fs, "merge", "-o", "all.pdf", "form.pdf", "missing.pdf", "blank.pdf")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote all.pdf (3 pages from 2 files)")
	assert.Contains(t, out, "skipped missing.pdf")

	data, err := afero.ReadFile(fs, "all.pdf")
	require.NoError(t, err)
	doc, err := pdf.Open(data)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.PageCount())

	_, err = run(t, fs, "merge", "-o", "none.pdf", "missing.pdf")
	assert.Error(t, err)
}
