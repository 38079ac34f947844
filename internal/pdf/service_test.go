package pdf

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usnistgov/NEMO-custom-forms/internal/pdf/pdftest"
)

func newTestService(t *testing.T) (*Service, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/templates/request.pdf", sampleForm(), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/templates/cover.pdf", pdftest.Blank(1, 612, 792), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/notes.txt", []byte("not a pdf"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/broken.pdf", []byte("%PDF-1.7 garbage"), 0o644))

	svc, err := NewService(fs, "/srv/output", NewPipeline(Options{}), 0, nil)
	require.NoError(t, err)
	return svc, fs
}

func TestNewService(t *testing.T) {
	_, err := NewService(nil, "", NewPipeline(Options{}), 0, nil)
	assert.Error(t, err)

	_, err = NewService(afero.NewMemMapFs(), "", nil, 0, nil)
	assert.Error(t, err)

	svc, err := NewService(afero.NewMemMapFs(), "", NewPipeline(Options{}), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxFileSize, svc.GetMaxFileSize())
}

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a.pdf", "/a.pdf"},
		{"/dir/a.pdf", "/dir/a.pdf"},
		{"../../etc/passwd", "/etc/passwd"},
		{`dir\a.pdf`, "/dir/a.pdf"},
		{" x/./y.pdf ", "/x/y.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := cleanPath(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := cleanPath("  ")
	assert.Error(t, err)
}

func TestService_PDFFieldsFile(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.PDFFieldsFile(PDFFieldsFileRequest{Path: "templates/request.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "/templates/request.pdf", result.Path)
	assert.Equal(t, 2, result.Pages)
	assert.ElementsMatch(t, []string{"name", "agree", "sig1"}, FieldNames(result.Fields))

	tests := []struct {
		name    string
		path    string
		message string
	}{
		{"empty", "", "path cannot be empty"},
		{"missing", "missing.pdf", "file does not exist"},
		{"directory", "templates", "path is a directory"},
		{"not a pdf", "notes.txt", "not a PDF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PDFFieldsFile(PDFFieldsFileRequest{Path: tt.path})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestService_PDFFillFile(t *testing.T) {
	svc, fs := newTestService(t)

	result, err := svc.PDFFillFile(context.Background(), PDFFillFileRequest{
		Path:       "/templates/request.pdf",
		Output:     "filled/request",
		Fields:     map[string]string{"name": "Jane Doe", "agree": "true"},
		Signatures: map[string]string{"sig1": "Jane Doe"},
		Stamp:      "DENIED",
		Flatten:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "/filled/request.pdf", result.Output)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 2, result.FieldsSet)
	assert.Equal(t, []string{"sig1"}, result.Placed)
	assert.True(t, result.Stamped)
	assert.True(t, result.Flattened)

	data, err := afero.ReadFile(fs, "/filled/request.pdf")
	require.NoError(t, err)
	assert.Equal(t, result.Size, int64(len(data)))

	fields, err := Inspect(data)
	require.NoError(t, err)
	for _, f := range fields {
		assert.True(t, f.ReadOnly, f.Name)
	}

	_, err = svc.PDFFillFile(context.Background(), PDFFillFileRequest{Path: "/templates/request.pdf"})
	assert.ErrorContains(t, err, "output cannot be empty")
}

func TestService_PDFMergeFiles(t *testing.T) {
	svc, fs := newTestService(t)

	result, err := svc.PDFMergeFiles(context.Background(), PDFMergeFilesRequest{
		Paths:  []string{"templates/cover.pdf", "missing.pdf", "templates/request.pdf", "broken.pdf"},
		Output: "merged.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "/merged.pdf", result.Output)
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, []string{"templates/cover.pdf", "templates/request.pdf"}, result.Merged)
	assert.Equal(t, []string{"missing.pdf", "broken.pdf"}, result.Skipped)

	exists, err := afero.Exists(fs, "/merged.pdf")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = svc.PDFMergeFiles(context.Background(), PDFMergeFilesRequest{Paths: []string{"missing.pdf"}, Output: "none.pdf"})
	assert.ErrorContains(t, err, "could be merged")

	_, err = svc.PDFMergeFiles(context.Background(), PDFMergeFilesRequest{Output: "none.pdf"})
	assert.Error(t, err)
}

func TestService_PDFValidateFile(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.PDFValidateFile(PDFValidateFileRequest{Path: "templates/cover.pdf"})
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = svc.PDFValidateFile(PDFValidateFileRequest{Path: "broken.pdf"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Message)

	result, err = svc.PDFValidateFile(PDFValidateFileRequest{})
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestService_PDFStatsFile(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.PDFStatsFile(PDFStatsFileRequest{Path: "templates/request.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 3, result.Fields)
	assert.NotEmpty(t, result.ModifiedDate)
	assert.Positive(t, result.Size)
}

func TestService_PDFSearchDirectory(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.PDFSearchDirectory(PDFSearchDirectoryRequest{})
	require.NoError(t, err)
	assert.Equal(t, "/", result.Directory)
	assert.Equal(t, 3, result.TotalCount)

	result, err = svc.PDFSearchDirectory(PDFSearchDirectoryRequest{Directory: "templates", Query: "req"})
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	assert.Equal(t, "request.pdf", result.Files[0].Name)

	_, err = svc.PDFSearchDirectory(PDFSearchDirectoryRequest{Directory: "nowhere"})
	assert.ErrorContains(t, err, "directory does not exist")
}

func TestService_PDFServerInfo(t *testing.T) {
	svc, _ := newTestService(t)

	tools := []ToolInfo{{Name: "pdf_fill", Description: "fill"}}
	info, err := svc.PDFServerInfo("forms", "1.2.3", tools)
	require.NoError(t, err)
	assert.Equal(t, "forms", info.ServerName)
	assert.Equal(t, "/srv/output", info.DefaultDirectory)
	assert.Equal(t, tools, info.AvailableTools)
	assert.Equal(t, 3, info.TotalFiles)
	assert.Len(t, info.DirectoryContents, 3)
}

func TestService_WriteFile(t *testing.T) {
	svc, fs := newTestService(t)

	out, err := svc.WriteFile("../reports/form 1", pdftest.Blank(1, 612, 792))
	require.NoError(t, err)
	assert.Equal(t, "/reports/form 1.pdf", out)

	exists, err := afero.Exists(fs, out)
	require.NoError(t, err)
	assert.True(t, exists)
}
