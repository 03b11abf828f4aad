package configresolver

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/uber/doc-lsp/src/dlsp/entity"
)

// Layer holds the option values supplied by a single source.
// Values may be nested ({"dlsp": {"preview": {"bind": ...}}}) or use dotted keys ({"dlsp.preview.bind": ...}).
type Layer struct {
	Source entity.ConfigSource
	Values map[string]any
}

// Vars supplies the values substituted for placeholders in string options.
type Vars struct {
	ProjectRoot     string
	ProjectURI      string
	DefaultBuildDir string
	// Env resolves ${env:NAME}. A nil Env leaves every env placeholder undefined.
	Env func(name string) (string, bool)
}

var _placeholder = regexp.MustCompile(`\$\{([^}]*)\}`)

// Merge resolves every option of the given scope from the layers.
// For each option the value from the highest ranked source that defines it wins; options no layer defines take the built-in default.
// Placeholders are expanded once after merging. Problems never fail the merge, they are recorded as warnings.
func Merge(scope entity.ConfigScope, layers []Layer, vars Vars) entity.Configuration {
	ranked := make([]Layer, len(layers))
	copy(ranked, layers)
	// Lowest rank first, so the last assignment wins. Stable, so later layers of the same source override earlier ones.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Source < ranked[j].Source
	})

	result := entity.Configuration{Values: make(map[string]entity.ConfigValue)}
	if scope == entity.ScopeProject {
		for _, layer := range ranked {
			if layer.Source != entity.SourceProjectFile {
				continue
			}
			for _, key := range optionKeys(entity.ScopeGlobal) {
				if _, ok := lookup(layer.Values, key); ok {
					result.Warnings = append(result.Warnings, fmt.Sprintf("%s cannot be set in a project file, ignored", key))
				}
			}
		}
	}

	for _, key := range optionKeys(scope) {
		opt := _options[key]
		value := entity.ConfigValue{Value: copyValue(opt.def), Source: entity.SourceDefault, Scope: opt.scope}

		for _, layer := range ranked {
			raw, ok := lookup(layer.Values, key)
			if !ok {
				continue
			}
			if opt.scope == entity.ScopeGlobal && layer.Source == entity.SourceProjectFile {
				continue
			}
			v, ok := opt.kind.normalize(raw)
			if !ok {
				result.Warnings = append(result.Warnings, fmt.Sprintf("%s from %s must be a %s, ignored", key, layer.Source, opt.kind))
				continue
			}
			value.Value = v
			value.Source = layer.Source
		}

		result.Values[key] = value
	}

	for _, key := range optionKeys(scope) {
		v := result.Values[key]
		v.Value = expandValue(v.Value, vars, func(name string) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: undefined placeholder ${%s}", key, name))
		})
		result.Values[key] = v
	}

	return result
}

func optionKeys(scope entity.ConfigScope) []string {
	keys := make([]string, 0, len(_options))
	for key, opt := range _options {
		if opt.scope == scope {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// lookup finds a dotted key in a possibly nested map, accepting any mix of nesting and dotted names.
func lookup(values map[string]any, key string) (any, bool) {
	if values == nil {
		return nil, false
	}
	if v, ok := values[key]; ok {
		return v, true
	}
	for i := 0; i < len(key); i++ {
		if key[i] != '.' {
			continue
		}
		sub, ok := values[key[:i]].(map[string]any)
		if !ok {
			continue
		}
		if v, ok := lookup(sub, key[i+1:]); ok {
			return v, true
		}
	}
	return nil, false
}

func expandValue(v any, vars Vars, undefined func(string)) any {
	switch val := v.(type) {
	case string:
		return expandString(val, vars, undefined)
	case []string:
		out := make([]string, len(val))
		for i, s := range val {
			out[i] = expandString(s, vars, undefined)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandValue(item, vars, undefined)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandValue(item, vars, undefined)
		}
		return out
	}
	return v
}

// expandString substitutes placeholders in a single pass; substituted text is not scanned again.
func expandString(s string, vars Vars, undefined func(string)) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return _placeholder.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if v, ok := placeholderValue(name, vars); ok {
			return v
		}
		undefined(name)
		return match
	})
}

func placeholderValue(name string, vars Vars) (string, bool) {
	switch name {
	case "projectRoot":
		return vars.ProjectRoot, vars.ProjectRoot != ""
	case "projectUri":
		return vars.ProjectURI, vars.ProjectURI != ""
	case "defaultBuildDir":
		return vars.DefaultBuildDir, vars.DefaultBuildDir != ""
	}
	if envName, ok := strings.CutPrefix(name, "env:"); ok && envName != "" && vars.Env != nil {
		return vars.Env(envName)
	}
	return "", false
}
