package api

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

var errPathNotAllowed = errors.New("path is outside the ingest root")

// resolveIngestPath maps a requested path onto the configured ingest root.
// Relative paths are taken from the root. Symlinks are followed before the
// containment check so a link cannot point outside the root.
func (s *Server) resolveIngestPath(requested string) (string, error) {
	root := s.config.Server.IngestRoot
	if root == "" {
		return "", fmt.Errorf("%w: path ingestion is disabled", errPathNotAllowed)
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("ingest root not readable: %v", err)
	}

	path := requested
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	if !within(root, path) && !within(realRoot, path) {
		return "", fmt.Errorf("%w: %s", errPathNotAllowed, requested)
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("document not readable: %w", err)
		}
		return "", err
	}
	if !within(realRoot, resolved) {
		return "", fmt.Errorf("%w: %s", errPathNotAllowed, requested)
	}
	return path, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
