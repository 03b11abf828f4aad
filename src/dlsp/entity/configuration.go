package entity

import (
	"reflect"
)

// ConfigScope determines whether an option applies to the whole process or to one project.
type ConfigScope string

const (
	// ScopeGlobal options are resolved once per process.
	ScopeGlobal ConfigScope = "global"
	// ScopeProject options are resolved per project root.
	ScopeProject ConfigScope = "project"
)

// ConfigSource identifies where a value came from. Higher values take priority.
type ConfigSource int

const (
	// SourceDefault is the built-in default.
	SourceDefault ConfigSource = iota
	// SourceProjectFile is a configuration file persisted in the project.
	SourceProjectFile
	// SourceConfigService is the IDE's live configuration service.
	SourceConfigService
	// SourceStartup is the set of parameters supplied when the session was initialized.
	SourceStartup
)

var _configSourceNames = map[ConfigSource]string{
	SourceDefault:       "default",
	SourceProjectFile:   "projectFile",
	SourceConfigService: "configService",
	SourceStartup:       "startup",
}

// String implements fmt.Stringer.
func (s ConfigSource) String() string {
	if name, ok := _configSourceNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the source by name.
func (s ConfigSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Option names.
const (
	OptionBuildCommand    = "dlsp.buildCommand"
	OptionAgentCommand    = "dlsp.agentCommand"
	OptionCwd             = "dlsp.cwd"
	OptionEnvPassthrough  = "dlsp.envPassthrough"
	OptionConfigOverrides = "dlsp.configOverrides"
	OptionBuildDir        = "dlsp.buildDir"
	OptionRestartOnCrash  = "dlsp.restartOnCrash"
	OptionBuildOnSave     = "dlsp.buildOnSave"
	OptionBuildOnChange   = "dlsp.buildOnChange"

	OptionPreviewBind        = "dlsp.preview.bind"
	OptionPreviewHTTPPort    = "dlsp.preview.httpPort"
	OptionPreviewWSPort      = "dlsp.preview.wsPort"
	OptionPreviewShowOnBuild = "dlsp.preview.showOnBuild"
)

// ConfigValue is a resolved option value tagged with where it came from.
type ConfigValue struct {
	Value  any          `json:"value"`
	Source ConfigSource `json:"source"`
	Scope  ConfigScope  `json:"scope"`
}

// Configuration is the merged result of every configuration source for one scope.
type Configuration struct {
	Values   map[string]ConfigValue `json:"values"`
	Warnings []string               `json:"warnings,omitempty"`
}

// Get returns the value of an option.
func (c Configuration) Get(key string) (any, bool) {
	v, ok := c.Values[key]
	if !ok {
		return nil, false
	}
	return v.Value, true
}

// Source reports which source supplied an option.
func (c Configuration) Source(key string) ConfigSource {
	return c.Values[key].Source
}

// String returns a string option, or "" when unset or of another type.
func (c Configuration) String(key string) string {
	v, _ := c.Get(key)
	s, _ := v.(string)
	return s
}

// Strings returns a list of strings option. Non-string items are skipped.
func (c Configuration) Strings(key string) []string {
	v, _ := c.Get(key)
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Bool returns a boolean option, or false when unset.
func (c Configuration) Bool(key string) bool {
	v, _ := c.Get(key)
	b, _ := v.(bool)
	return b
}

// Int returns an integer option. Numbers decoded from JSON, YAML or TOML are all accepted.
func (c Configuration) Int(key string) int {
	v, _ := c.Get(key)
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// Object returns a nested object option.
func (c Configuration) Object(key string) map[string]any {
	v, _ := c.Get(key)
	m, _ := v.(map[string]any)
	return m
}

// Plain flattens the configuration to option name and value, as sent to the IDE.
func (c Configuration) Plain() map[string]any {
	out := make(map[string]any, len(c.Values))
	for k, v := range c.Values {
		out[k] = v.Value
	}
	return out
}

// Equal reports whether both configurations resolve to the same values, regardless of where they came from.
func (c Configuration) Equal(other Configuration) bool {
	return reflect.DeepEqual(c.Plain(), other.Plain())
}
