package configresolver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	dlsperrors "github.com/uber/doc-lsp/src/dlsp/internal/errors"
	"github.com/uber/doc-lsp/src/dlsp/internal/fs"
	"gopkg.in/yaml.v3"
)

const _section = "dlsp"

type projectFile struct {
	name  string
	parse func(data []byte) (map[string]any, error)
}

// _projectFiles are read in order; a later file overrides an earlier one.
var _projectFiles = []projectFile{
	{name: "pyproject.toml", parse: parsePyproject},
	{name: ".dlsp.yaml", parse: parseYAML},
	{name: ".dlsp.jsonc", parse: parseJSONC},
}

// ProjectFileNames lists the names of the configuration files looked up in a project root.
func ProjectFileNames() []string {
	names := make([]string, 0, len(_projectFiles))
	for _, f := range _projectFiles {
		names = append(names, f.name)
	}
	return names
}

// readProjectFiles returns one layer per configuration file present in the root.
func readProjectFiles(fsys fs.DlspFS, root string) ([]Layer, error) {
	var layers []Layer
	for _, f := range _projectFiles {
		path := filepath.Join(root, f.name)
		exists, err := fsys.FileExists(path)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", path, err)
		}
		if !exists {
			continue
		}

		data, err := fsys.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		values, err := f.parse(data)
		if err != nil {
			return nil, &dlsperrors.ConfigurationError{Root: root, Reason: fmt.Sprintf("parsing %s: %v", f.name, err)}
		}
		if values == nil {
			continue
		}
		layers = append(layers, Layer{Source: entity.SourceProjectFile, Values: values})
	}
	return layers, nil
}

// parsePyproject reads the [tool.dlsp] table.
func parsePyproject(data []byte) (map[string]any, error) {
	var doc map[string]any
	if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, err
	}
	tool, _ := doc["tool"].(map[string]any)
	table, ok := tool[_section].(map[string]any)
	if !ok {
		return nil, nil
	}
	return map[string]any{_section: table}, nil
}

func parseYAML(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return section(doc), nil
}

func parseJSONC(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return nil, err
	}
	return section(doc), nil
}

// section accepts documents written either with or without a top level "dlsp" key.
func section(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	if _, ok := doc[_section]; ok {
		return doc
	}
	for key := range doc {
		if len(key) > len(_section) && key[:len(_section)+1] == _section+"." {
			return doc
		}
	}
	return map[string]any{_section: doc}
}
