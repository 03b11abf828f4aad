package entity

import (
	"path/filepath"
	"strings"

	"go.lsp.dev/uri"
)

// Project is a workspace root with its own configuration and at most one live build-agent client.
type Project struct {
	Root string `json:"root"`
}

// URI returns the file URI of the project root.
func (p Project) URI() uri.URI {
	return uri.File(p.Root)
}

// Contains reports whether path is the project root or lies beneath it.
func (p Project) Contains(path string) bool {
	rel, err := filepath.Rel(p.Root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
