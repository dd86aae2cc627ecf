package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docmentor/docmentor/internal/config"
)

// Loader reads documents from disk and extracts their text
type Loader struct {
	config  config.LoaderConfig
	scanner *Scanner
}

// NewLoader creates a new loader
func NewLoader(cfg config.LoaderConfig) *Loader {
	return &Loader{
		config:  cfg,
		scanner: NewScanner(cfg),
	}
}

// LoadFile reads a single file. The cleaned path becomes the document id.
func (l *Loader) LoadFile(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("document not readable: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory: %s", path)
	}

	format := GetFormat(filepath.Ext(path))
	if format == FormatUnknown {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	text, err := ExtractText(format, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", path, err)
	}

	return &Document{
		ID:     filepath.Clean(path),
		Path:   path,
		Format: format,
		Text:   text,
		Size:   info.Size(),
	}, nil
}

// LoadDir loads every supported file under root. Files that fail to load
// are reported in LoadResult.Errors and do not fail the whole load.
func (l *Loader) LoadDir(ctx context.Context, root string) (*LoadResult, error) {
	startTime := time.Now()

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root)
	}

	files, err := l.scanner.Scan(root)
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	docs := make([]*Document, len(files))
	var errs []string
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(10)

	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := l.LoadFile(file.Path)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Sprintf("%s: %v", file.RelPath, err))
				mu.Unlock()
				return nil
			}
			docs[i] = doc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &LoadResult{
		Root:        root,
		Errors:      errs,
		ElapsedTime: time.Since(startTime).String(),
	}
	for _, doc := range docs {
		if doc != nil {
			result.Documents = append(result.Documents, doc)
		}
	}

	return result, nil
}

// Load loads path, which may be a file or a directory.
func (l *Loader) Load(ctx context.Context, path string) (*LoadResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %w", err)
	}
	if info.IsDir() {
		return l.LoadDir(ctx, path)
	}

	doc, err := l.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return &LoadResult{Root: path, Documents: []*Document{doc}}, nil
}
