package configresolver

import (
	"github.com/uber/doc-lsp/src/dlsp/entity"
)

type kind int

const (
	kindString kind = iota
	kindStrings
	kindBool
	kindInt
	kindObject
)

func (k kind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindStrings:
		return "list of strings"
	case kindBool:
		return "boolean"
	case kindInt:
		return "integer"
	case kindObject:
		return "object"
	}
	return "unknown"
}

type option struct {
	scope entity.ConfigScope
	kind  kind
	def   any
}

// _options lists every recognized option with its scope and built-in default.
var _options = map[string]option{
	entity.OptionBuildCommand:    {scope: entity.ScopeProject, kind: kindStrings, def: []string{}},
	entity.OptionAgentCommand:    {scope: entity.ScopeProject, kind: kindStrings, def: []string{"python", "-m", "dlsp.agent"}},
	entity.OptionCwd:             {scope: entity.ScopeProject, kind: kindString, def: "${projectRoot}"},
	entity.OptionEnvPassthrough:  {scope: entity.ScopeProject, kind: kindStrings, def: []string{}},
	entity.OptionConfigOverrides: {scope: entity.ScopeProject, kind: kindObject, def: map[string]any{}},
	entity.OptionBuildDir:        {scope: entity.ScopeProject, kind: kindString, def: "${defaultBuildDir}"},
	entity.OptionRestartOnCrash:  {scope: entity.ScopeProject, kind: kindBool, def: false},
	entity.OptionBuildOnSave:     {scope: entity.ScopeProject, kind: kindBool, def: true},
	entity.OptionBuildOnChange:   {scope: entity.ScopeProject, kind: kindBool, def: true},

	entity.OptionPreviewBind:        {scope: entity.ScopeGlobal, kind: kindString, def: "127.0.0.1"},
	entity.OptionPreviewHTTPPort:    {scope: entity.ScopeGlobal, kind: kindInt, def: 0},
	entity.OptionPreviewWSPort:      {scope: entity.ScopeGlobal, kind: kindInt, def: 0},
	entity.OptionPreviewShowOnBuild: {scope: entity.ScopeGlobal, kind: kindBool, def: false},
}

// normalize converts a decoded value to the canonical Go type of the option kind.
// Values decoded from JSON, YAML and TOML differ in their number and list types.
func (k kind) normalize(v any) (any, bool) {
	switch k {
	case kindString:
		s, ok := v.(string)
		return s, ok
	case kindStrings:
		switch list := v.(type) {
		case []string:
			return append([]string{}, list...), true
		case []any:
			out := make([]string, 0, len(list))
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return nil, false
				}
				out = append(out, s)
			}
			return out, true
		}
		return nil, false
	case kindBool:
		b, ok := v.(bool)
		return b, ok
	case kindInt:
		switch n := v.(type) {
		case int:
			return n, true
		case int64:
			return int(n), true
		case float64:
			if n != float64(int(n)) {
				return nil, false
			}
			return int(n), true
		}
		return nil, false
	case kindObject:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		return copyObject(m), true
	}
	return nil, false
}

func copyObject(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyObject(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		return append([]string{}, val...)
	}
	return v
}
