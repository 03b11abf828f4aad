package buildagent

import (
	"github.com/uber/doc-lsp/src/dlsp/entity"
)

// Methods spoken with the agent subprocess.
const (
	// MethodCreateApp is the handshake request. The agent replies with the created app once its configuration is accepted.
	MethodCreateApp = "agent/createApp"
	// MethodBuild runs one build. A JSON-RPC error response is a failed build, not a failed agent.
	MethodBuild = "agent/build"
	// MethodDiagnostics is sent by the agent with the problems found in one source file.
	MethodDiagnostics = "agent/diagnostics"
	// MethodExit asks the agent to exit.
	MethodExit = "exit"
)

// CreateAppParams are the parameters of MethodCreateApp.
type CreateAppParams struct {
	Command         []string       `json:"command"`
	ConfigOverrides map[string]any `json:"configOverrides"`
	BuildDir        string         `json:"buildDir"`
}

// BuildParams are the parameters of MethodBuild.
type BuildParams struct {
	Reasons []string `json:"reasons,omitempty"`
	// ContentOverrides maps source paths to unsaved editor content.
	ContentOverrides map[string]string `json:"contentOverrides,omitempty"`
}

// BuildReply is the result of MethodBuild.
type BuildReply struct {
	Warnings int               `json:"warnings"`
	FileMap  map[string]string `json:"fileMap,omitempty"`
}

func createAppParams(cfg entity.Configuration) CreateAppParams {
	return CreateAppParams{
		Command:         cfg.Strings(entity.OptionBuildCommand),
		ConfigOverrides: cfg.Object(entity.OptionConfigOverrides),
		BuildDir:        cfg.String(entity.OptionBuildDir),
	}
}
