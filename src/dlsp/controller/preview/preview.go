// Package preview serves the build output of each project over HTTP and keeps preview pages in sync with the editors.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	buildagent "github.com/uber/doc-lsp/src/dlsp/controller/build-agent"
	configresolver "github.com/uber/doc-lsp/src/dlsp/controller/config-resolver"
	"github.com/uber/doc-lsp/src/dlsp/controller/registry"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	dlspplugin "github.com/uber/doc-lsp/src/dlsp/entity/dlsp-plugin"
	ideclient "github.com/uber/doc-lsp/src/dlsp/gateway/ide-client"
	dlsperrors "github.com/uber/doc-lsp/src/dlsp/internal/errors"
	"github.com/uber/doc-lsp/src/dlsp/internal/serverinfofile"
	"github.com/uber/doc-lsp/src/dlsp/mapper"
	"github.com/uber/doc-lsp/src/dlsp/repository/session"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	_nameKey = "preview"

	_configKeyMarkerCacheSize = "preview.markerCacheSize"
	_infoFileKey              = "previews"
	_configPath               = "/_dlsp/config.json"
	_wsPath                   = "/ws"
	_defaultBind              = "127.0.0.1"
	_readHeaderTimeout        = 10 * time.Second
)

// Info describes a running preview server.
type Info struct {
	ID     string `json:"id"`
	Root   string `json:"root"`
	Port   int    `json:"port"`
	WSPort int    `json:"wsPort"`
	URL    string `json:"url"`
}

// Controller runs preview servers and relays scroll positions between editors and preview pages.
type Controller interface {
	StartupInfo(ctx context.Context) (dlspplugin.PluginInfo, error)

	// StartPreview starts the HTTP server of a project, or returns the running one.
	StartPreview(ctx context.Context, root string) (Info, error)
	// Preview starts the preview of the project of the given or active document and optionally opens it in a browser.
	Preview(ctx context.Context, params *entity.PreviewParams) (*entity.PreviewResult, error)
	// EditorScrolled scrolls every page showing the document to the given source line.
	EditorScrolled(ctx context.Context, u uri.URI, line int) error
	// ViewerScrolled maps a page offset of a document to a source line and scrolls the editors to it.
	ViewerScrolled(ctx context.Context, u uri.URI, offset float64) (int, bool)
	// Previews lists the running preview servers, ordered by root.
	Previews() []Info
}

// Params are inbound parameters to initialize a new preview controller.
type Params struct {
	fx.In

	Sessions       session.Repository
	IdeGateway     ideclient.Gateway
	Registry       registry.Controller
	Resolver       configresolver.Resolver
	ServerInfoFile serverinfofile.ServerInfoFile
	Config         config.Provider
	Lifecycle      fx.Lifecycle
	Logger         *zap.SugaredLogger
	Stats          tally.Scope
}

type server struct {
	info Info
	http *http.Server
}

type controller struct {
	sessions        session.Repository
	ideGateway      ideclient.Gateway
	registry        registry.Controller
	resolver        configresolver.Resolver
	serverInfo      serverinfofile.ServerInfoFile
	logger          *zap.SugaredLogger
	stats           tally.Scope
	markerCacheSize int

	mu      sync.Mutex
	servers map[string]*server
	byID    map[string]*server
	hub     *hub
	closed  bool
	// active is the document most recently opened by each editor session.
	active map[uuid.UUID]uri.URI

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the preview controller. Servers start on demand and are closed when the application stops.
func New(p Params) (Controller, error) {
	var cacheSize int
	if err := p.Config.Get(_configKeyMarkerCacheSize).Populate(&cacheSize); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKeyMarkerCacheSize, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &controller{
		sessions:        p.Sessions,
		ideGateway:      p.IdeGateway,
		registry:        p.Registry,
		resolver:        p.Resolver,
		serverInfo:      p.ServerInfoFile,
		logger:          p.Logger.With("plugin", _nameKey),
		stats:           p.Stats.SubScope("preview"),
		markerCacheSize: cacheSize,
		servers:         make(map[string]*server),
		byID:            make(map[string]*server),
		active:          make(map[uuid.UUID]uri.URI),
		ctx:             ctx,
		cancel:          cancel,
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.registry.Subscribe(c)
			return nil
		},
		OnStop: c.stop,
	})
	return c, nil
}

// StartupInfo returns PluginInfo for this controller.
func (c *controller) StartupInfo(ctx context.Context) (dlspplugin.PluginInfo, error) {
	priorities := map[string]dlspplugin.Priority{
		protocol.MethodTextDocumentDidOpen: dlspplugin.PriorityRegular,
		dlspplugin.MethodEndSession:        dlspplugin.PriorityRegular,
	}

	methods := &dlspplugin.Methods{
		PluginNameKey: _nameKey,

		DidOpen:    c.didOpen,
		EndSession: c.endSession,
	}

	return dlspplugin.PluginInfo{
		Priorities: priorities,
		Methods:    methods,
		NameKey:    _nameKey,
	}, nil
}

func (c *controller) didOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	id, err := mapper.ContextToSessionUUID(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[id] = params.TextDocument.URI
	return nil
}

func (c *controller) endSession(ctx context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, id)
	return nil
}

func (c *controller) StartPreview(ctx context.Context, root string) (Info, error) {
	root = filepath.Clean(root)

	if info, ok, err := c.runningPreview(root); ok || err != nil {
		return info, err
	}

	// Resolving may wait on the editor, so it runs unlocked.
	global, err := c.resolver.ResolveGlobal(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("resolving preview configuration: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if info, ok, err := c.runningPreviewLocked(root); ok || err != nil {
		return info, err
	}
	bind := global.String(entity.OptionPreviewBind)
	if bind == "" {
		bind = _defaultBind
	}

	if c.hub == nil {
		h, err := c.startHub(bind, global.Int(entity.OptionPreviewWSPort))
		if err != nil {
			return Info{}, err
		}
		c.hub = h
	}

	ln, err := c.listen(bind, global.Int(entity.OptionPreviewHTTPPort))
	if err != nil {
		return Info{}, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		ln.Close()
		return Info{}, fmt.Errorf("generating preview id: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	s := &server{
		info: Info{
			ID:     id.String(),
			Root:   root,
			Port:   port,
			WSPort: c.hub.port,
			URL:    fmt.Sprintf("http://%s/", net.JoinHostPort(bind, strconv.Itoa(port))),
		},
	}
	s.http = &http.Server{
		Handler:           c.pageHandler(s.info),
		ReadHeaderTimeout: _readHeaderTimeout,
	}
	c.servers[root] = s
	c.byID[s.info.ID] = s

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Errorw("preview server stopped", "root", root, zap.Error(err))
		}
	}()

	c.stats.Counter("servers_started").Inc(1)
	c.stats.Gauge("servers").Update(float64(len(c.servers)))
	c.logger.Infow("preview server started", "root", root, "url", s.info.URL)
	c.recordInfoLocked()
	return s.info, nil
}

func (c *controller) runningPreview(root string) (Info, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runningPreviewLocked(root)
}

// runningPreviewLocked returns the server already started for a root. c.mu must be held.
func (c *controller) runningPreviewLocked(root string) (Info, bool, error) {
	if c.closed {
		return Info{}, false, errors.New("preview servers are shut down")
	}
	if s, ok := c.servers[root]; ok {
		return s.info, true, nil
	}
	return Info{}, false, nil
}

// listen binds the configured port, falling back to a random one when it is taken by another preview.
func (c *controller) listen(bind string, port int) (net.Listener, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(bind, strconv.Itoa(port)))
	if err != nil && port != 0 && len(c.servers) > 0 {
		c.logger.Warnw("preview port in use, using a random port", "port", port, zap.Error(err))
		ln, err = net.Listen("tcp", net.JoinHostPort(bind, "0"))
	}
	if err != nil {
		return nil, fmt.Errorf("listening for previews on %s: %w", bind, err)
	}
	return ln, nil
}

// pageHandler serves the current build output of a project, resolved per request.
func (c *controller) pageHandler(info Info) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(_configPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(pageConfig{ID: info.ID, WSPort: info.WSPort, WSPath: _wsPath})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		dir, ok := c.buildDir(info.Root)
		if !ok {
			http.Error(w, "the documentation has not been built yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		http.FileServer(http.Dir(dir)).ServeHTTP(w, r)
	})
	return mux
}

// buildDir returns the output directory of the latest build of a project.
func (c *controller) buildDir(root string) (string, bool) {
	client, err := c.registry.Find(root)
	if err != nil {
		return "", false
	}
	if last := client.LastBuild(); last != nil && last.App.BuildDir != "" {
		return last.App.BuildDir, true
	}
	if app := client.App(); app != nil && app.BuildDir != "" {
		return app.BuildDir, true
	}
	return "", false
}

func (c *controller) Preview(ctx context.Context, params *entity.PreviewParams) (*entity.PreviewResult, error) {
	if params == nil {
		params = &entity.PreviewParams{}
	}

	doc := params.URI
	if doc == "" {
		if id, err := mapper.ContextToSessionUUID(ctx); err == nil {
			c.mu.Lock()
			doc = c.active[id]
			c.mu.Unlock()
		}
	}

	root, err := c.rootFor(ctx, doc)
	if err != nil {
		return nil, err
	}
	client, err := c.registry.GetOrCreate(ctx, root)
	if client == nil {
		return nil, err
	}

	info, err := c.StartPreview(ctx, root)
	if err != nil {
		return nil, err
	}

	if params.Show {
		if err := c.show(ctx, info, client, doc); err != nil {
			return nil, err
		}
	}
	return &entity.PreviewResult{Port: info.Port}, nil
}

// rootFor returns the project of a document, or the first workspace folder of the calling session.
func (c *controller) rootFor(ctx context.Context, doc uri.URI) (string, error) {
	if doc != "" {
		project, err := c.registry.ProjectForURI(ctx, doc)
		if err != nil {
			return "", err
		}
		return project.Root, nil
	}

	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return "", err
	}
	if len(s.WorkspaceFolders) == 0 {
		return "", dlsperrors.NoProjectRootError
	}
	return s.WorkspaceFolders[0], nil
}

// show asks the editor to open the page of a document, or the index, in a browser.
func (c *controller) show(ctx context.Context, info Info, client buildagent.Client, doc uri.URI) error {
	target := info.URL + pagePath(client, doc)
	result, err := c.ideGateway.ShowDocument(ctx, &protocol.ShowDocumentParams{
		URI:      uri.URI(target),
		External: true,
	})
	if err != nil {
		return fmt.Errorf("opening preview: %w", err)
	}
	if result != nil && !result.Success {
		c.logger.Warnw("editor did not open the preview", "url", target)
	}
	return nil
}

// pagePath returns the output page generated from a document, relative to the build directory.
func pagePath(client buildagent.Client, doc uri.URI) string {
	last := client.LastBuild()
	if doc == "" || last == nil {
		return ""
	}
	path, err := mapper.URIToPath(doc)
	if err != nil {
		return ""
	}
	page, ok := last.FileMap[path]
	if !ok {
		return ""
	}
	if filepath.IsAbs(page) {
		rel, err := filepath.Rel(last.App.BuildDir, page)
		if err != nil || strings.HasPrefix(rel, "..") {
			return ""
		}
		page = rel
	}
	return filepath.ToSlash(page)
}

func (c *controller) EditorScrolled(ctx context.Context, u uri.URI, line int) error {
	viewers := c.hubViewers(func(v *viewer) bool { return v.showing(u) })
	for _, v := range viewers {
		params := viewScrollParams{URI: u, Line: line}
		if offset, ok := v.markers.OffsetForLine(string(u), line); ok {
			params.Offset = &offset
		}
		v.push(outbound{Method: MethodViewScroll, Params: params})
	}
	c.stats.Counter("editor_scrolls").Inc(1)
	return nil
}

func (c *controller) ViewerScrolled(ctx context.Context, u uri.URI, offset float64) (int, bool) {
	for _, v := range c.hubViewers(func(v *viewer) bool { return v.showing(u) }) {
		if line, ok := c.viewerScrolled(ctx, v, u, offset); ok {
			return line, true
		}
	}
	return 0, false
}

// viewerScrolled maps an offset with the markers reported by one page and scrolls the editors with the document open.
func (c *controller) viewerScrolled(ctx context.Context, v *viewer, u uri.URI, offset float64) (int, bool) {
	line, ok := v.markers.LineForOffset(string(u), offset)
	if !ok {
		return 0, false
	}
	c.stats.Counter("viewer_scrolls").Inc(1)

	path, err := mapper.URIToPath(u)
	if err != nil {
		return line, true
	}
	sessions, err := c.sessions.GetAllContaining(ctx, path)
	if err != nil {
		c.logger.Warnw("listing sessions", zap.Error(err))
		return line, true
	}
	for _, s := range sessions {
		sctx := mapper.SessionUUIDToContext(ctx, s.UUID)
		if err := c.ideGateway.Notify(sctx, entity.MethodEditorScroll, entity.ScrollParams{URI: u, Line: line}); err != nil {
			c.logger.Debugw("scrolling editor", "session", s.UUID, zap.Error(err))
		}
	}
	return line, true
}

// BuildCompleted reloads the pages of a project after a successful build.
func (c *controller) BuildCompleted(client buildagent.Client, result entity.BuildResult) {
	if !result.Success {
		return
	}
	root := client.Project().Root

	c.mu.Lock()
	s, running := c.servers[root]
	c.mu.Unlock()

	var id string
	if running {
		id = s.info.ID
	}
	viewers := c.hubViewers(func(v *viewer) bool { return running && v.previewID == id })
	for _, v := range viewers {
		v.push(outbound{Method: MethodViewReload, Params: struct{}{}})
	}
	if len(viewers) > 0 {
		c.stats.Counter("reloads").Inc(int64(len(viewers)))
		return
	}

	global, err := c.resolver.ResolveGlobal(c.ctx)
	if err != nil || !global.Bool(entity.OptionPreviewShowOnBuild) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.showOnBuild(client)
	}()
}

// showOnBuild opens the preview in the editors of a project that no page is showing yet.
func (c *controller) showOnBuild(client buildagent.Client) {
	info, err := c.StartPreview(c.ctx, client.Project().Root)
	if err != nil {
		c.logger.Warnw("starting preview after build", "root", client.Project().Root, zap.Error(err))
		return
	}
	sessions, err := c.sessions.GetAllContaining(c.ctx, client.Project().Root)
	if err != nil {
		return
	}
	for _, s := range sessions {
		ctx := mapper.SessionUUIDToContext(c.ctx, s.UUID)
		c.mu.Lock()
		doc := c.active[s.UUID]
		c.mu.Unlock()
		if err := c.show(ctx, info, client, doc); err != nil {
			c.logger.Debugw("showing preview after build", "session", s.UUID, zap.Error(err))
		}
	}
}

func (c *controller) Previews() []Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previewsLocked()
}

func (c *controller) previewsLocked() []Info {
	infos := make([]Info, 0, len(c.servers))
	for _, s := range c.servers {
		infos = append(infos, s.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Root < infos[j].Root })
	return infos
}

// recordInfoLocked writes the running previews to the server info file.
func (c *controller) recordInfoLocked() {
	if err := c.serverInfo.UpdateField(_infoFileKey, c.previewsLocked()); err != nil {
		c.logger.Warnw("recording preview servers", zap.Error(err))
	}
}

func (c *controller) hubViewers(match func(v *viewer) bool) []*viewer {
	c.mu.Lock()
	h := c.hub
	c.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.viewers(match)
}

// stop closes every preview server and page connection.
func (c *controller) stop(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	servers := make([]*server, 0, len(c.servers))
	for _, s := range c.servers {
		servers = append(servers, s)
	}
	c.servers = make(map[string]*server)
	c.byID = make(map[string]*server)
	h := c.hub
	c.hub = nil
	c.mu.Unlock()

	c.cancel()

	var errs error
	for _, s := range servers {
		errs = multierr.Append(errs, s.http.Shutdown(ctx))
	}
	if h != nil {
		errs = multierr.Append(errs, h.close(ctx))
	}
	c.wg.Wait()
	if len(servers) > 0 {
		errs = multierr.Append(errs, c.serverInfo.RemoveField(_infoFileKey))
	}
	return errs
}

func (c *controller) lookupPreview(id string) (Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byID[id]
	if !ok {
		return Info{}, false
	}
	return s.info, true
}
