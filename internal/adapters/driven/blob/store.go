package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	getter "github.com/hashicorp/go-getter"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.BlobStore = (*Store)(nil)

const processedDir = "processed"

// Config holds configuration for the blob store
type Config struct {
	// Root is the directory holding raw uploads and processed text
	Root string

	// FetchTimeout bounds a remote raw fetch (default: 2m)
	FetchTimeout time.Duration

	Logger *slog.Logger
}

// Store keeps processed text under a filesystem root. Raw locations are
// either paths inside the root or remote sources understood by go-getter
// (https://, s3::, gcs::, git::).
type Store struct {
	root         string
	fetchTimeout time.Duration
	logger       *slog.Logger
}

// NewStore creates the root and processed directories if needed
func NewStore(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("%w: blob root is required", domain.ErrInvalidInput)
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve blob root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, processedDir), 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}

	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		root:         root,
		fetchTimeout: timeout,
		logger:       logger,
	}, nil
}

// Root returns the absolute root directory
func (s *Store) Root() string {
	return s.root
}

// ReadRaw returns the bytes at a raw location
func (s *Store) ReadRaw(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, fmt.Errorf("%w: raw location is empty", domain.ErrInvalidInput)
	}

	if isRemote(location) {
		if namesLocalFile(location) {
			return nil, fmt.Errorf("%w: raw location %q must be a path inside the blob root", domain.ErrInvalidInput, location)
		}
		return s.fetch(ctx, location)
	}

	path, err := s.resolve(strings.TrimPrefix(location, "file://"))
	if err != nil {
		return nil, err
	}
	return readFile(path)
}

// PutProcessed writes normalized text and returns its root-relative location.
// The write goes through a temp file so readers never see partial text.
func (s *Store) PutProcessed(ctx context.Context, itemID string, text string) (string, error) {
	if itemID == "" || strings.ContainsAny(itemID, `/\`) || itemID == "." || itemID == ".." {
		return "", fmt.Errorf("%w: invalid item id %q", domain.ErrInvalidInput, itemID)
	}

	location := processedDir + "/" + itemID + ".txt"
	path := filepath.Join(s.root, processedDir, itemID+".txt")

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+itemID+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write processed text: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close processed text: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("store processed text: %w", err)
	}

	return location, nil
}

// ReadProcessed returns normalized text stored with PutProcessed
func (s *Store) ReadProcessed(ctx context.Context, location string) (string, error) {
	path, err := s.resolve(location)
	if err != nil {
		return "", err
	}
	data, err := readFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DeleteProcessed removes normalized text. Missing files are ignored.
func (s *Store) DeleteProcessed(ctx context.Context, location string) error {
	if location == "" {
		return nil
	}
	path, err := s.resolve(location)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete processed text: %w", err)
	}
	return nil
}

// fetch downloads a remote raw source into a scratch directory and reads it
func (s *Store) fetch(ctx context.Context, location string) ([]byte, error) {
	tempDir, err := os.MkdirTemp("", "sercha-ingest-fetch-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	dst := filepath.Join(tempDir, "raw")
	client := &getter.Client{
		Ctx:     fetchCtx,
		Src:     location,
		Dst:     dst,
		Pwd:     s.root,
		Mode:    getter.ClientModeFile,
		Getters: fetchGetters(),
	}

	s.logger.Debug("fetching raw source", "location", location)
	if err := client.Get(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: fetch %s: %v", domain.ErrServiceUnavailable, location, err)
	}

	return readFile(dst)
}

// fetchGetters returns a fresh getter set per fetch. There is no file getter;
// local paths go through resolve. Client.Get configures
// each getter with its client, so the shared getter.Getters map is not safe
// for concurrent fetches.
func fetchGetters() map[string]getter.Getter {
	httpGetter := &getter.HttpGetter{Netrc: true}
	return map[string]getter.Getter{
		"git":   new(getter.GitGetter),
		"gcs":   new(getter.GCSGetter),
		"hg":    new(getter.HgGetter),
		"s3":    new(getter.S3Getter),
		"http":  httpGetter,
		"https": httpGetter,
	}
}

// resolve maps a root-relative location to a path that cannot escape the root
func (s *Store) resolve(location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("%w: location is empty", domain.ErrInvalidInput)
	}

	path := location
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, filepath.FromSlash(location))
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: location %q is outside the blob root", domain.ErrInvalidInput, location)
	}
	return path, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

// isRemote reports whether location names a go-getter source rather than a
// local path. Forced getters use the "getter::" prefix.
func isRemote(location string) bool {
	if strings.Contains(location, "::") {
		return true
	}
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || u.Scheme == "file" {
		return false
	}
	// Single letter schemes are drive letters
	return len(u.Scheme) > 1
}

// namesLocalFile reports whether a go-getter source would read the local
// filesystem, e.g. "file::/etc/passwd" or "git::file:///srv/repo".
func namesLocalFile(location string) bool {
	src := location
	if forced, rest, ok := strings.Cut(location, "::"); ok {
		if strings.EqualFold(forced, "file") {
			return true
		}
		src = rest
	}
	u, err := url.Parse(src)
	if err != nil {
		return true
	}
	if u.Scheme == "" {
		return filepath.IsAbs(src) || strings.HasPrefix(src, ".")
	}
	return strings.EqualFold(u.Scheme, "file")
}
