package entity

import (
	"time"
)

// ClientState is the lifecycle state of a build-agent client.
type ClientState int

const (
	// ClientStarting means the agent process is running but has not completed its handshake.
	ClientStarting ClientState = iota
	// ClientReady means the agent accepted its configuration and can build.
	ClientReady
	// ClientBuilding means a build request is in flight.
	ClientBuilding
	// ClientErrored means the agent failed to start or exited; it stays here until restarted.
	ClientErrored
	// ClientDestroyed is terminal.
	ClientDestroyed
)

var _clientStateNames = map[ClientState]string{
	ClientStarting:  "Starting",
	ClientReady:     "Ready",
	ClientBuilding:  "Building",
	ClientErrored:   "Errored",
	ClientDestroyed: "Destroyed",
}

// String implements fmt.Stringer.
func (s ClientState) String() string {
	if name, ok := _clientStateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// MarshalText encodes the state by name.
func (s ClientState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AppInfo describes the build tool instance created by an agent.
type AppInfo struct {
	Version     string   `json:"version"`
	ConfDir     string   `json:"confDir"`
	SrcDir      string   `json:"srcDir"`
	BuildDir    string   `json:"buildDir"`
	BuilderName string   `json:"builderName"`
	Command     []string `json:"command"`
}

// BuildResult is an immutable snapshot of a completed build. It is replaced, never modified.
type BuildResult struct {
	Generation int64 `json:"generation"`
	// Success is false when the build tool reported an error. This does not affect the client state.
	Success  bool    `json:"success"`
	Warnings int     `json:"warnings"`
	Error    string  `json:"error,omitempty"`
	App      AppInfo `json:"app"`
	// FileMap maps source file paths to the output pages generated from them.
	FileMap   map[string]string `json:"fileMap,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// ClientSummary is the externally visible view of a client.
type ClientSummary struct {
	ID         string      `json:"id"`
	Root       string      `json:"root"`
	State      ClientState `json:"state"`
	Generation int64       `json:"generation"`
	App        *AppInfo    `json:"app,omitempty"`
}

// LifecycleEventKind names a client lifecycle notification sent to the IDE.
type LifecycleEventKind string

const (
	// EventClientCreated is emitted once a client has been registered for a project.
	EventClientCreated LifecycleEventKind = "dlsp/clientCreated"
	// EventAppCreated is emitted when the agent completes its handshake and the client becomes Ready.
	EventAppCreated LifecycleEventKind = "dlsp/appCreated"
	// EventClientErrored is emitted when the client enters Errored.
	EventClientErrored LifecycleEventKind = "dlsp/clientErrored"
	// EventClientDestroyed is emitted when the client is torn down.
	EventClientDestroyed LifecycleEventKind = "dlsp/clientDestroyed"
)

// LifecycleEvent carries the identity of a client and, where applicable, its configuration, app or error detail.
type LifecycleEvent struct {
	Kind     LifecycleEventKind `json:"-"`
	ClientID string             `json:"id"`
	Root     string             `json:"scope"`
	Config   map[string]any     `json:"config,omitempty"`
	App      *AppInfo           `json:"app,omitempty"`
	Error    string             `json:"error,omitempty"`

	// Restarting marks the Errored transition of a requested restart, as opposed to a failure.
	Restarting bool `json:"restarting,omitempty"`
}

const (
	// MethodBuildStart is the notification sent to the IDE when a build is dispatched.
	MethodBuildStart = "dlsp/buildStart"
	// MethodBuildComplete is the notification sent to the IDE when a build finishes.
	MethodBuildComplete = "dlsp/buildComplete"
)

// BuildStartEvent is the payload of MethodBuildStart.
type BuildStartEvent struct {
	ClientID string   `json:"id"`
	Reasons  []string `json:"reasons,omitempty"`
}

// BuildCompleteConfig combines the build tool metadata with the server side configuration used for a build.
type BuildCompleteConfig struct {
	App    AppInfo        `json:"app"`
	Server map[string]any `json:"server"`
}

// BuildCompleteEvent is the payload of MethodBuildComplete.
type BuildCompleteEvent struct {
	ClientID string              `json:"id"`
	Config   BuildCompleteConfig `json:"config"`
	Error    bool                `json:"error"`
	Warnings int                 `json:"warnings"`
}
