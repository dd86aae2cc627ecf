package ingest

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docmentor/docmentor/internal/config"
)

// Scanner scans a directory for loadable documents
type Scanner struct {
	config config.LoaderConfig
}

// NewScanner creates a new file scanner
func NewScanner(cfg config.LoaderConfig) *Scanner {
	return &Scanner{config: cfg}
}

// Scan scans a directory and returns all matching files sorted by path
func (s *Scanner) Scan(rootPath string) ([]*FileInfo, error) {
	var files []*FileInfo

	// Create extension map for quick lookup
	extMap := make(map[string]bool)
	for _, ext := range s.config.Extensions {
		extMap[strings.ToLower(ext)] = true
	}

	// Create ignore dirs map
	ignoreMap := make(map[string]bool)
	for _, dir := range s.config.IgnoreDirs {
		ignoreMap[dir] = true
	}

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Skip ignored directories
		if info.IsDir() {
			if path != rootPath && ignoreMap[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !extMap[ext] {
			return nil
		}

		relPath, err := filepath.Rel(rootPath, path)
		if err != nil {
			relPath = path
		}

		files = append(files, &FileInfo{
			Path:      path,
			RelPath:   relPath,
			Extension: ext,
			Size:      info.Size(),
		})

		return nil
	})

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, err
}

// GetFormat returns the text format based on file extension
func GetFormat(ext string) Format {
	switch strings.ToLower(ext) {
	case ".txt", ".text", ".log":
		return FormatText
	case ".md", ".markdown":
		return FormatMarkdown
	case ".html", ".htm", ".xhtml":
		return FormatHTML
	default:
		return FormatUnknown
	}
}
