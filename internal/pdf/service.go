package pdf

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// serverInfoFileLimit caps the directory listing of PDFServerInfo
const serverInfoFileLimit = 100

// Service runs the pipeline against PDF files. Every path is resolved
// inside fs, which is normally rooted at the output directory.
type Service struct {
	fs          afero.Fs
	root        string
	maxFileSize int64
	pipeline    *Pipeline
	validator   *Validator
	search      *Search
	logger      *zap.Logger
}

// NewService creates a file service over fs. root is only used to describe
// the directory to clients.
func NewService(fs afero.Fs, root string, pipeline *Pipeline, maxFileSize int64, logger *zap.Logger) (*Service, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem cannot be nil")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		fs:          fs,
		root:        root,
		maxFileSize: maxFileSize,
		pipeline:    pipeline,
		validator:   NewValidator(maxFileSize),
		search:      NewSearch(fs, maxFileSize),
		logger:      logger,
	}, nil
}

// cleanPath maps a client path onto fs. Parent references cannot climb
// above the root.
func cleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	return path.Clean("/" + strings.ReplaceAll(p, "\\", "/")), nil
}

func (s *Service) readPDF(p string) (string, []byte, os.FileInfo, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return "", nil, nil, err
	}
	info, err := s.fs.Stat(clean)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, nil, fmt.Errorf("file does not exist: %s", p)
		}
		return "", nil, nil, fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return "", nil, nil, fmt.Errorf("path is a directory, not a file: %s", p)
	}
	if info.Size() > s.maxFileSize {
		return "", nil, nil, fmt.Errorf("file too large: %d bytes (max: %d bytes)", info.Size(), s.maxFileSize)
	}
	data, err := afero.ReadFile(s.fs, clean)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	if err := s.validator.ValidateBytes(data); err != nil {
		return "", nil, nil, err
	}
	return clean, data, info, nil
}

// ReadPDF returns the validated contents of the PDF at p
func (s *Service) ReadPDF(p string) ([]byte, error) {
	_, data, _, err := s.readPDF(p)
	return data, err
}

// WriteFile stores data under name and returns the cleaned path
func (s *Service) WriteFile(name string, data []byte) (string, error) {
	clean, err := cleanPath(name)
	if err != nil {
		return "", err
	}
	if !isPDFFile(clean) {
		clean += ".pdf"
	}
	if err := s.fs.MkdirAll(path.Dir(clean), 0o750); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", name, err)
	}
	if err := afero.WriteFile(s.fs, clean, data, 0o640); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	s.logger.Debug("pdf written", zap.String("path", clean), zap.Int("size", len(data)))
	return clean, nil
}

// PDFFieldsFile lists the form fields of a PDF file
func (s *Service) PDFFieldsFile(req PDFFieldsFileRequest) (*PDFFieldsFileResult, error) {
	clean, data, _, err := s.readPDF(req.Path)
	if err != nil {
		return nil, err
	}
	doc, err := Open(data)
	if err != nil {
		return nil, err
	}
	fields, err := doc.Fields()
	if err != nil {
		return nil, err
	}
	return &PDFFieldsFileResult{Path: clean, Pages: doc.PageCount(), Fields: fields}, nil
}

// PDFFillFile fills a PDF file and writes the result to req.Output
func (s *Service) PDFFillFile(ctx context.Context, req PDFFillFileRequest) (*PDFFillFileResult, error) {
	if strings.TrimSpace(req.Output) == "" {
		return nil, fmt.Errorf("output cannot be empty")
	}
	_, data, _, err := s.readPDF(req.Path)
	if err != nil {
		return nil, err
	}

	filled, err := s.pipeline.Fill(ctx, FillRequest{
		PDF:        data,
		Fields:     req.Fields,
		Signatures: req.Signatures,
		StampText:  req.Stamp,
		StampColor: req.StampColor,
		Flatten:    req.Flatten,
	})
	if err != nil {
		return nil, err
	}
	output, err := s.WriteFile(req.Output, filled.PDF)
	if err != nil {
		return nil, err
	}

	return &PDFFillFileResult{
		Output:    output,
		Size:      int64(len(filled.PDF)),
		Pages:     filled.PageCount,
		FieldsSet: filled.FieldsSet,
		Placed:    filled.Placed,
		Skipped:   filled.Skipped,
		Stamped:   filled.Stamped,
		Flattened: filled.Flattened,
	}, nil
}

// PDFMergeFiles concatenates the given files. Unreadable inputs are skipped;
// at least one input must be readable.
func (s *Service) PDFMergeFiles(ctx context.Context, req PDFMergeFilesRequest) (*PDFMergeFilesResult, error) {
	if len(req.Paths) == 0 {
		return nil, fmt.Errorf("at least one path is required")
	}
	if strings.TrimSpace(req.Output) == "" {
		return nil, fmt.Errorf("output cannot be empty")
	}

	sources := make([]Source, 0, len(req.Paths))
	for _, p := range req.Paths {
		_, data, _, err := s.readPDF(p)
		if err != nil {
			s.logger.Warn("merge input unreadable", zap.String("path", p), zap.Error(err))
		}
		sources = append(sources, Source{Name: p, Data: data})
	}

	report, err := s.pipeline.Merge(ctx, sources)
	if err != nil {
		return nil, err
	}
	if len(report.Merged) == 0 {
		return nil, fmt.Errorf("none of the %d input files could be merged", len(req.Paths))
	}
	output, err := s.WriteFile(req.Output, report.PDF)
	if err != nil {
		return nil, err
	}

	return &PDFMergeFilesResult{
		Output:  output,
		Size:    int64(len(report.PDF)),
		Pages:   report.Pages,
		Merged:  report.Merged,
		Skipped: report.Skipped,
	}, nil
}

// PDFValidateFile performs validation on a PDF file
func (s *Service) PDFValidateFile(req PDFValidateFileRequest) (*ValidationResult, error) {
	clean, err := cleanPath(req.Path)
	if err != nil {
		return &ValidationResult{Path: req.Path, Message: err.Error()}, nil //nolint:nilerr // reported in the result
	}
	return s.validator.ValidateFile(s.fs, clean)
}

// PDFStatsFile returns detailed statistics about a single PDF file
func (s *Service) PDFStatsFile(req PDFStatsFileRequest) (*PDFStatsFileResult, error) {
	clean, data, info, err := s.readPDF(req.Path)
	if err != nil {
		return nil, err
	}
	return fileStats(clean, data, info.ModTime().Format("2006-01-02 15:04:05"))
}

// PDFSearchDirectory searches for PDF files in a directory
func (s *Service) PDFSearchDirectory(req PDFSearchDirectoryRequest) (*PDFSearchDirectoryResult, error) {
	if req.Directory == "" {
		req.Directory = "/"
	}
	clean, err := cleanPath(req.Directory)
	if err != nil {
		return nil, err
	}
	req.Directory = clean
	return s.search.SearchDirectory(req)
}

// PDFServerInfo describes the server, its tools and the first files of the
// output directory
func (s *Service) PDFServerInfo(serverName, version string, tools []ToolInfo) (*PDFServerInfoResult, error) {
	files, err := s.search.FindPDFsInDirectoryLimited("/", serverInfoFileLimit, nil)
	if err != nil {
		s.logger.Warn("failed to list output directory", zap.Error(err))
		files = []FileInfo{}
	}
	total := len(files)
	if total >= serverInfoFileLimit {
		if n, err := s.search.CountPDFsInDirectory("/"); err == nil {
			total = n
		}
	}

	return &PDFServerInfoResult{
		ServerName:        serverName,
		Version:           version,
		DefaultDirectory:  s.root,
		MaxFileSize:       s.maxFileSize,
		AvailableTools:    tools,
		DirectoryContents: files,
		TotalFiles:        total,
	}, nil
}

// GetMaxFileSize returns the maximum file size limit
func (s *Service) GetMaxFileSize() int64 {
	return s.maxFileSize
}
