package pdf

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesQuery(t *testing.T) {
	tests := []struct {
		filename string
		query    string
		want     bool
	}{
		{"Purchase_Request-2024.pdf", "", true},
		{"Purchase_Request-2024.pdf", "request", true},
		{"Purchase_Request-2024.pdf", "purch 2024", true},
		{"Purchase_Request-2024.pdf", "request 2023", false},
		{"badge (draft).pdf", "draft", true},
		{"badge (draft).pdf", "final", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.filename, tt.query), func(t *testing.T) {
			assert.Equal(t, tt.want, matchesQuery(tt.filename, tt.query))
		})
	}
}

func TestSplitIntoWords(t *testing.T) {
	assert.Equal(t, []string{"purchase", "request", "2024"}, splitIntoWords("Purchase_Request-2024"))
	assert.Empty(t, splitIntoWords("__"))
}

func TestSearch_FindPDFsInDirectoryLimited(t *testing.T) {
	fs := afero.NewMemMapFs()
	for i := 0; i < 5; i++ {
		require.NoError(t, afero.WriteFile(fs, fmt.Sprintf("/out/form-%d.pdf", i), []byte("%PDF-1.4"), 0o644))
	}
	require.NoError(t, afero.WriteFile(fs, "/out/empty.pdf", nil, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/out/huge.pdf", make([]byte, 64), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/out/readme.md", []byte("#"), 0o644))

	s := NewSearch(fs, 32)

	files, err := s.FindPDFsInDirectoryLimited("/out", 0, nil)
	require.NoError(t, err)
	assert.Len(t, files, 5, "empty, oversized and non-pdf files are ignored")
	assert.Equal(t, "/out/form-0.pdf", files[0].Path)

	files, err = s.FindPDFsInDirectoryLimited("/out", 2, nil)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	count, err := s.CountPDFsInDirectory("/out")
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	_, err = s.FindPDFsInDirectoryLimited("/out/readme.md", 0, nil)
	assert.ErrorContains(t, err, "not a directory")

	_, err = s.SearchDirectory(PDFSearchDirectoryRequest{})
	assert.ErrorContains(t, err, "directory cannot be empty")
}
