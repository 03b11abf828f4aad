// Package configresolver merges configuration from the editor and the project into one tagged configuration per scope.
package configresolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/uber-go/tally"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	ideclient "github.com/uber/doc-lsp/src/dlsp/gateway/ide-client"
	"github.com/uber/doc-lsp/src/dlsp/internal/fs"
	"github.com/uber/doc-lsp/src/dlsp/mapper"
	"github.com/uber/doc-lsp/src/dlsp/repository/session"
	"go.lsp.dev/protocol"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Resolver resolves configuration for the process and for each project.
type Resolver interface {
	// ResolveGlobal returns the process wide configuration. It is resolved once and cached until Invalidate.
	ResolveGlobal(ctx context.Context) (entity.Configuration, error)
	// ResolveProject resolves the configuration of a project from every source, on every call.
	ResolveProject(ctx context.Context, project entity.Project) (entity.Configuration, error)
	// Invalidate drops the cached global configuration.
	Invalidate()
	// ProjectFiles returns the paths of the configuration files that may exist in the project root.
	ProjectFiles(project entity.Project) []string
}

// Params are inbound parameters to initialize a new resolver.
type Params struct {
	fx.In

	Sessions   session.Repository
	IdeGateway ideclient.Gateway
	FS         fs.DlspFS
	Logger     *zap.SugaredLogger
	Stats      tally.Scope
}

type resolver struct {
	sessions   session.Repository
	ideGateway ideclient.Gateway
	fs         fs.DlspFS
	logger     *zap.SugaredLogger
	stats      tally.Scope
	cacheDir   string
	lookupEnv  func(string) (string, bool)

	globalMu sync.Mutex
	global   *entity.Configuration
}

// New creates a new configuration resolver.
func New(p Params) Resolver {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}

	return &resolver{
		sessions:   p.Sessions,
		ideGateway: p.IdeGateway,
		fs:         p.FS,
		logger:     p.Logger.With("plugin", "config-resolver"),
		stats:      p.Stats.SubScope("config"),
		cacheDir:   cacheDir,
		lookupEnv:  os.LookupEnv,
	}
}

func (r *resolver) ResolveGlobal(ctx context.Context) (entity.Configuration, error) {
	r.globalMu.Lock()
	defer r.globalMu.Unlock()

	if r.global != nil {
		return *r.global, nil
	}

	var layers []Layer
	sessions, err := r.sessions.GetAll(ctx)
	if err != nil {
		return entity.Configuration{}, fmt.Errorf("listing sessions: %w", err)
	}
	if s := r.pickSession(ctx, sessions); s != nil {
		layers = append(layers, r.sessionLayers(ctx, s, "")...)
	}

	cfg := Merge(entity.ScopeGlobal, layers, Vars{Env: r.lookupEnv})
	r.report(entity.ScopeGlobal, "", cfg)

	// An editor that has not connected yet has not supplied its settings.
	if len(sessions) > 0 {
		r.global = &cfg
	}
	return cfg, nil
}

func (r *resolver) ResolveProject(ctx context.Context, project entity.Project) (entity.Configuration, error) {
	layers, err := readProjectFiles(r.fs, project.Root)
	if err != nil {
		return entity.Configuration{}, err
	}

	sessions, err := r.sessions.GetAllContaining(ctx, project.Root)
	if err != nil {
		return entity.Configuration{}, fmt.Errorf("listing sessions for %q: %w", project.Root, err)
	}
	if s := r.pickSession(ctx, sessions); s != nil {
		layers = append(layers, r.sessionLayers(ctx, s, project.URI())...)
	}

	cfg := Merge(entity.ScopeProject, layers, Vars{
		ProjectRoot:     project.Root,
		ProjectURI:      string(project.URI()),
		DefaultBuildDir: r.defaultBuildDir(project.Root),
		Env:             r.lookupEnv,
	})
	r.report(entity.ScopeProject, project.Root, cfg)
	return cfg, nil
}

func (r *resolver) Invalidate() {
	r.globalMu.Lock()
	defer r.globalMu.Unlock()
	r.global = nil
}

func (r *resolver) ProjectFiles(project entity.Project) []string {
	paths := make([]string, 0, len(_projectFiles))
	for _, name := range ProjectFileNames() {
		paths = append(paths, filepath.Join(project.Root, name))
	}
	return paths
}

// pickSession prefers the session that issued the request, and otherwise the first candidate.
func (r *resolver) pickSession(ctx context.Context, candidates []*entity.Session) *entity.Session {
	if len(candidates) == 0 {
		return nil
	}
	if id, err := mapper.ContextToSessionUUID(ctx); err == nil {
		for _, s := range candidates {
			if s.UUID == id {
				return s
			}
		}
	}
	return candidates[0]
}

// sessionLayers returns the startup parameters and the live settings of an editor session.
func (r *resolver) sessionLayers(ctx context.Context, s *entity.Session, scopeURI protocol.URI) []Layer {
	var layers []Layer
	if len(s.InitializationOptions) > 0 {
		layers = append(layers, Layer{Source: entity.SourceStartup, Values: s.InitializationOptions})
	}

	if !supportsConfiguration(s) {
		return layers
	}

	result, err := r.ideGateway.Configuration(mapper.SessionUUIDToContext(ctx, s.UUID), &protocol.ConfigurationParams{
		Items: []protocol.ConfigurationItem{{ScopeURI: scopeURI, Section: _section}},
	})
	if err != nil {
		r.stats.Counter("configuration_request_errors").Inc(1)
		r.logger.Warnw("requesting configuration from editor", "session", s.UUID.String(), zap.Error(err))
		return layers
	}
	if len(result) > 0 {
		if values, ok := result[0].(map[string]any); ok {
			layers = append(layers, Layer{Source: entity.SourceConfigService, Values: map[string]any{_section: values}})
		}
	}
	return layers
}

func (r *resolver) report(scope entity.ConfigScope, root string, cfg entity.Configuration) {
	r.stats.Tagged(map[string]string{"scope": string(scope)}).Counter("resolved").Inc(1)
	for _, w := range cfg.Warnings {
		r.logger.Warnw("configuration warning", "scope", scope, "root", root, "warning", w)
	}
}

// defaultBuildDir places build output in the user cache, keyed by the project root.
func (r *resolver) defaultBuildDir(root string) string {
	sum := sha256.Sum256([]byte(root))
	return filepath.Join(r.cacheDir, "dlsp", hex.EncodeToString(sum[:])[:16])
}

func supportsConfiguration(s *entity.Session) bool {
	return s.InitializeParams != nil &&
		s.InitializeParams.Capabilities.Workspace != nil &&
		s.InitializeParams.Capabilities.Workspace.Configuration
}
