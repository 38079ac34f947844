// Package storage keeps template PDFs and supplementary documents and
// resolves document references for the merge pipeline.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/usnistgov/NEMO-custom-forms/internal/pdf"
)

// DefaultFetchTimeout bounds remote document downloads
const DefaultFetchTimeout = 30 * time.Second

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DocumentStore stores files under a base directory
type DocumentStore struct {
	fs     afero.Fs
	logger *zap.Logger
}

// NewDocumentStore confines fs to base. An empty base uses fs as is.
func NewDocumentStore(fs afero.Fs, base string, logger *zap.Logger) (*DocumentStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if base != "" {
		if err := fs.MkdirAll(base, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", base, err)
		}
		fs = afero.NewBasePathFs(fs, base)
	}
	return &DocumentStore{fs: fs, logger: logger}, nil
}

// NewDiskStore stores documents in dir on the local filesystem
func NewDiskStore(dir string, logger *zap.Logger) (*DocumentStore, error) {
	return NewDocumentStore(afero.NewOsFs(), dir, logger)
}

// Fs exposes the confined filesystem
func (s *DocumentStore) Fs() afero.Fs {
	return s.fs
}

// SanitizeName keeps only the base name with filesystem-safe characters
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "document"
	}
	return name
}

func cleanKey(key string) (string, error) {
	if key == "" {
		return "", apperrors.New("document key cannot be empty", apperrors.CategoryBadInput)
	}
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", apperrors.New(fmt.Sprintf("invalid document key %q", key), apperrors.CategoryBadInput)
	}
	return clean, nil
}

// Put writes r under a new uuid-prefixed key derived from name
func (s *DocumentStore) Put(dir, name string, r io.Reader) (string, error) {
	key := path.Join("/", dir, uuid.NewString()+"_"+SanitizeName(name))
	if err := s.fs.MkdirAll(path.Dir(key), 0o755); err != nil {
		return "", apperrors.Wrap(err, apperrors.CategoryInternal, "failed to create document directory")
	}
	f, err := s.fs.Create(key)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CategoryInternal, "failed to create document")
	}
	_, err = io.Copy(f, r)
	err = multierr.Append(err, f.Close())
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CategoryInternal, "failed to write document")
	}
	s.logger.Debug("stored document", zap.String("key", key))
	return strings.TrimPrefix(key, "/"), nil
}

// Open returns the document stored under key
func (s *DocumentStore) Open(key string) (io.ReadCloser, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(clean)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.New(fmt.Sprintf("document %s not found", key), apperrors.CategoryNotFound)
		}
		return nil, apperrors.Wrap(err, apperrors.CategoryInternal, "failed to open document")
	}
	return f, nil
}

// Read returns the bytes stored under key
func (s *DocumentStore) Read(key string) ([]byte, error) {
	f, err := s.Open(key)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Delete removes every key. Missing keys are ignored; other failures are
// combined into one error.
func (s *DocumentStore) Delete(keys ...string) error {
	var errs error
	for _, key := range keys {
		clean, err := cleanKey(key)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := s.fs.Remove(clean); err != nil && !os.IsNotExist(err) {
			errs = multierr.Append(errs, fmt.Errorf("failed to delete %s: %w", key, err))
		}
	}
	return errs
}

// URLFetcher downloads remote documents
type URLFetcher struct {
	client  *http.Client
	timeout time.Duration
	maxSize int64
}

// NewURLFetcher creates a fetcher. A nil client uses http.DefaultClient.
func NewURLFetcher(client *http.Client, timeout time.Duration, maxSize int64) *URLFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if maxSize <= 0 {
		maxSize = pdf.DefaultMaxFileSize
	}
	return &URLFetcher{client: client, timeout: timeout, maxSize: maxSize}
}

// Fetch downloads url and returns its body
func (f *URLFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, apperrors.New(fmt.Sprintf("unsupported document url %q", url), apperrors.CategoryBadInput)
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryBadInput, "invalid document url")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryExternal, "failed to fetch document")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.New(fmt.Sprintf("fetching %s returned %s", url, resp.Status), apperrors.CategoryExternal).
			WithMetadata(map[string]any{"status": resp.StatusCode})
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryExternal, "failed to read document")
	}
	if int64(len(data)) > f.maxSize {
		return nil, apperrors.New(fmt.Sprintf("document at %s exceeds %d bytes", url, f.maxSize), apperrors.CategoryBadInput)
	}
	return data, nil
}

// Resolver loads pdf.DocumentRef values from the store or over HTTP
type Resolver struct {
	store   *DocumentStore
	fetcher *URLFetcher
}

// NewResolver combines a store and a fetcher. Either may be nil.
func NewResolver(store *DocumentStore, fetcher *URLFetcher) *Resolver {
	return &Resolver{store: store, fetcher: fetcher}
}

// Resolve implements pdf.Resolver
func (r *Resolver) Resolve(ctx context.Context, ref pdf.DocumentRef) ([]byte, error) {
	switch {
	case ref.Key != "" && r.store != nil:
		return r.store.Read(ref.Key)
	case ref.URL != "" && r.fetcher != nil:
		return r.fetcher.Fetch(ctx, ref.URL)
	}
	return nil, apperrors.New("document reference cannot be resolved", apperrors.CategoryBadInput).
		WithMetadata(map[string]any{"key": ref.Key, "url": ref.URL})
}
