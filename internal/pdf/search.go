package pdf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

var errLimitReached = errors.New("file limit reached")

// Search finds PDF files on a filesystem
type Search struct {
	fs          afero.Fs
	maxFileSize int64
}

// NewSearch creates a search over fs. Files larger than maxFileSize are
// not reported.
func NewSearch(fs afero.Fs, maxFileSize int64) *Search {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Search{fs: fs, maxFileSize: maxFileSize}
}

// SearchDirectory lists the PDF files below req.Directory whose names match
// req.Query. Matching is fuzzy: every word of the query must appear in a
// word of the file name.
func (s *Search) SearchDirectory(req PDFSearchDirectoryRequest) (*PDFSearchDirectoryResult, error) {
	directory := req.Directory
	if directory == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}
	query := strings.ToLower(strings.TrimSpace(req.Query))

	files, err := s.FindPDFsInDirectoryLimited(directory, 0, func(name string) bool {
		return matchesQuery(name, query)
	})
	if err != nil {
		return nil, err
	}

	return &PDFSearchDirectoryResult{
		Files:       files,
		TotalCount:  len(files),
		Directory:   directory,
		SearchQuery: req.Query,
	}, nil
}

// FindPDFsInDirectoryLimited walks directory and returns at most limit PDF
// files accepted by keep, sorted by path. A limit of zero means no limit.
func (s *Search) FindPDFsInDirectoryLimited(directory string, limit int, keep func(name string) bool) ([]FileInfo, error) {
	info, err := s.fs.Stat(directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory does not exist: %s", directory)
		}
		return nil, fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", directory)
	}

	files := []FileInfo{}
	err = afero.Walk(s.fs, directory, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if info.IsDir() || !isPDFFile(info.Name()) {
			return nil
		}
		if info.Size() == 0 || info.Size() > s.maxFileSize {
			return nil
		}
		if keep != nil && !keep(info.Name()) {
			return nil
		}
		files = append(files, FileInfo{
			Path:         filepath.ToSlash(path),
			Name:         info.Name(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format("2006-01-02 15:04:05"),
		})
		if limit > 0 && len(files) >= limit {
			return errLimitReached
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimitReached) {
		return nil, fmt.Errorf("error walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// CountPDFsInDirectory counts the PDF files below directory
func (s *Search) CountPDFsInDirectory(directory string) (int, error) {
	files, err := s.FindPDFsInDirectoryLimited(directory, 0, nil)
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

func isPDFFile(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}

// matchesQuery performs fuzzy matching on the filename
func matchesQuery(filename, query string) bool {
	if query == "" {
		return true
	}

	fileName := strings.ToLower(filename)
	if strings.Contains(fileName, query) {
		return true
	}

	words := splitIntoWords(strings.TrimSuffix(fileName, ".pdf"))
	for _, queryWord := range splitIntoWords(query) {
		found := false
		for _, word := range words {
			if strings.Contains(word, queryWord) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// splitIntoWords splits a string into words using common separators
func splitIntoWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		switch r {
		case ' ', '_', '-', '.', '(', ')', '[', ']':
			return true
		}
		return false
	})
}
