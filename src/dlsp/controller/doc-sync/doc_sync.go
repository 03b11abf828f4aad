// Package docsync keeps the editor's view of open documents so builds can see unsaved text.
package docsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	dlspplugin "github.com/uber/doc-lsp/src/dlsp/entity/dlsp-plugin"
	dlsperrors "github.com/uber/doc-lsp/src/dlsp/internal/errors"
	"github.com/uber/doc-lsp/src/dlsp/mapper"
	"github.com/uber/doc-lsp/src/dlsp/repository/session"
	"go.lsp.dev/protocol"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_nameKey        = "doc-sync"
	_maxFileSizeKey = "maxFileSizeBytes"
)

// Controller defines the interface for a document sync controller.
type Controller interface {
	StartupInfo(ctx context.Context) (dlspplugin.PluginInfo, error)

	// GetTextDocument returns the current version of the text document as of the last received DidChange event.
	GetTextDocument(ctx context.Context, doc protocol.TextDocumentIdentifier) (protocol.TextDocumentItem, error)

	// ContentOverrides returns the unsaved text of every edited document under the project, keyed by path.
	// When several sessions edit the same file, the highest version wins.
	ContentOverrides(project entity.Project) map[string]string
}

// Params are inbound parameters to initialize a new plugin.
type Params struct {
	fx.In

	Sessions session.Repository
	Logger   *zap.SugaredLogger
	Stats    tally.Scope
	Config   config.Provider
}

type documentStoreEntry struct {
	Document            protocol.TextDocumentItem
	Path                string
	EditedSinceLastSave bool
}

type documentStore map[uuid.UUID]map[protocol.TextDocumentIdentifier]*documentStoreEntry

type controller struct {
	sessions         session.Repository
	logger           *zap.SugaredLogger
	documents        documentStore
	documentsMu      sync.RWMutex
	stats            tally.Scope
	maxFileSizeBytes int64
}

// New creates a new controller for document sync.
func New(p Params) (Controller, error) {
	var maxFileSizeBytes int64
	if err := p.Config.Get(_maxFileSizeKey).Populate(&maxFileSizeBytes); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _maxFileSizeKey, err)
	}
	if maxFileSizeBytes <= 0 {
		return nil, fmt.Errorf("config field %q must be positive", _maxFileSizeKey)
	}

	c := &controller{
		sessions:         p.Sessions,
		logger:           p.Logger.With("plugin", _nameKey),
		documents:        make(documentStore),
		stats:            p.Stats.SubScope("doc_sync"),
		maxFileSizeBytes: maxFileSizeBytes,
	}
	c.updateMetrics()
	return c, nil
}

// StartupInfo returns PluginInfo for this controller.
func (c *controller) StartupInfo(ctx context.Context) (dlspplugin.PluginInfo, error) {
	// Document contents must be current before any other plugin reacts to the same notification.
	priorities := map[string]dlspplugin.Priority{
		protocol.MethodInitialize: dlspplugin.PriorityHigh,
		protocol.MethodShutdown:   dlspplugin.PriorityAsync,

		protocol.MethodTextDocumentDidOpen:   dlspplugin.PriorityHigh,
		protocol.MethodTextDocumentDidChange: dlspplugin.PriorityHigh,
		protocol.MethodTextDocumentDidClose:  dlspplugin.PriorityRegular,
		protocol.MethodTextDocumentDidSave:   dlspplugin.PriorityHigh,
		dlspplugin.MethodEndSession:          dlspplugin.PriorityRegular,
	}

	methods := &dlspplugin.Methods{
		PluginNameKey: _nameKey,

		Initialize: c.initialize,
		Shutdown:   c.shutdown,

		DidOpen:   c.didOpen,
		DidChange: c.didChange,
		DidClose:  c.didClose,
		DidSave:   c.didSave,

		EndSession: c.endSession,
	}

	return dlspplugin.PluginInfo{
		Priorities: priorities,
		Methods:    methods,
		NameKey:    _nameKey,
	}, nil
}

func (c *controller) GetTextDocument(ctx context.Context, doc protocol.TextDocumentIdentifier) (protocol.TextDocumentItem, error) {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return protocol.TextDocumentItem{}, err
	}

	c.documentsMu.RLock()
	defer c.documentsMu.RUnlock()

	if _, ok := c.documents[s.UUID]; !ok {
		return protocol.TextDocumentItem{}, &dlsperrors.UUIDNotFoundError{UUID: s.UUID}
	}
	entry, ok := c.documents[s.UUID][doc]
	if !ok {
		return protocol.TextDocumentItem{}, &dlsperrors.DocumentNotFoundError{Document: doc}
	}
	return entry.Document, nil
}

func (c *controller) ContentOverrides(project entity.Project) map[string]string {
	c.documentsMu.RLock()
	defer c.documentsMu.RUnlock()

	overrides := make(map[string]string)
	versions := make(map[string]int32)
	for _, sessionDocs := range c.documents {
		for _, entry := range sessionDocs {
			if !entry.EditedSinceLastSave || !project.Contains(entry.Path) {
				continue
			}
			if v, ok := versions[entry.Path]; ok && v >= entry.Document.Version {
				continue
			}
			versions[entry.Path] = entry.Document.Version
			overrides[entry.Path] = entry.Document.Text
		}
	}
	return overrides
}

// initialize adds an entry to keep track of this session's documents.
func (c *controller) initialize(ctx context.Context, params *protocol.InitializeParams, result *protocol.InitializeResult) error {
	defer c.updateMetrics()
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return err
	}

	c.documentsMu.Lock()
	defer c.documentsMu.Unlock()
	c.documents[s.UUID] = make(map[protocol.TextDocumentIdentifier]*documentStoreEntry)

	if result.Capabilities.TextDocumentSync == nil {
		result.Capabilities.TextDocumentSync = protocol.TextDocumentSyncOptions{
			OpenClose: true,
			Change:    protocol.TextDocumentSyncKindIncremental,
			Save:      &protocol.SaveOptions{IncludeText: true},
		}
	}
	return nil
}

// shutdown removes this session's documents.
func (c *controller) shutdown(ctx context.Context) error {
	defer c.updateMetrics()
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return err
	}
	c.disposeSession(s.UUID)
	return nil
}

// endSession removes this session's documents in the event that no shutdown request is received.
func (c *controller) endSession(ctx context.Context, uuid uuid.UUID) error {
	defer c.updateMetrics()
	c.disposeSession(uuid)
	return nil
}

// didOpen adds an entry for a newly opened document and stores its initial contents.
func (c *controller) didOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	defer c.updateMetrics()
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return err
	}

	path, err := mapper.URIToPath(params.TextDocument.URI)
	if err != nil {
		return err
	}

	c.documentsMu.Lock()
	defer c.documentsMu.Unlock()
	if c.documents[s.UUID] == nil {
		return &dlsperrors.UUIDNotFoundError{UUID: s.UUID}
	}

	if err := c.validateSize(params.TextDocument.Text); err != nil {
		// Oversized documents are expected now and then. Builds read them from disk instead.
		c.logger.Warnf("unable to track open document %q: %v", params.TextDocument.URI, err)
		return nil
	}

	c.documents[s.UUID][protocol.TextDocumentIdentifier{URI: params.TextDocument.URI}] = &documentStoreEntry{
		Document: params.TextDocument,
		Path:     path,
	}
	return nil
}

// didClose deletes the entry for a closed document.
func (c *controller) didClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	defer c.updateMetrics()
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return err
	}

	c.documentsMu.Lock()
	defer c.documentsMu.Unlock()
	delete(c.documents[s.UUID], params.TextDocument)
	return nil
}

// didChange updates the document with the latest incoming changes.
func (c *controller) didChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error {
	defer c.updateMetrics()
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return err
	}

	c.documentsMu.Lock()
	defer c.documentsMu.Unlock()
	entry, ok := c.documents[s.UUID][params.TextDocument.TextDocumentIdentifier]
	if !ok {
		return &dlsperrors.DocumentNotFoundError{Document: params.TextDocument.TextDocumentIdentifier}
	}

	doc := entry.Document
	doc.Text, err = mapper.ApplyContentChanges(doc.Text, params.ContentChanges)
	if err != nil {
		return fmt.Errorf("adding changes to document: %w", err)
	}
	if err := c.validateSize(doc.Text); err != nil {
		return fmt.Errorf("unable to add changes to document %q: %w", doc.URI, err)
	}
	doc.Version = params.TextDocument.Version

	c.documents[s.UUID][params.TextDocument.TextDocumentIdentifier] = &documentStoreEntry{
		Document:            doc,
		Path:                entry.Path,
		EditedSinceLastSave: true,
	}
	return nil
}

func (c *controller) didSave(ctx context.Context, params *protocol.DidSaveTextDocumentParams) error {
	defer c.updateMetrics()
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return err
	}

	c.documentsMu.Lock()
	defer c.documentsMu.Unlock()
	entry, ok := c.documents[s.UUID][params.TextDocument]
	if !ok {
		return &dlsperrors.DocumentNotFoundError{Document: params.TextDocument}
	}

	doc := entry.Document
	// Text should already be current from didChange, but this reconciles it in case something got out of sync.
	if params.Text != "" {
		doc.Text = params.Text
	}
	c.documents[s.UUID][params.TextDocument] = &documentStoreEntry{
		Document: doc,
		Path:     entry.Path,
	}
	return nil
}

// disposeSession removes a session's documents based on the session UUID.
func (c *controller) disposeSession(uuid uuid.UUID) {
	c.documentsMu.Lock()
	defer c.documentsMu.Unlock()
	delete(c.documents, uuid)
}

func (c *controller) updateMetrics() {
	c.documentsMu.RLock()
	defer c.documentsMu.RUnlock()

	openDocs := 0
	dirtyDocs := 0
	openBytes := 0
	for _, sessionDocs := range c.documents {
		openDocs += len(sessionDocs)
		for _, entry := range sessionDocs {
			openBytes += len(entry.Document.Text)
			if entry.EditedSinceLastSave {
				dirtyDocs++
			}
		}
	}
	c.stats.Gauge("open_docs").Update(float64(openDocs))
	c.stats.Gauge("dirty_docs").Update(float64(dirtyDocs))
	c.stats.Gauge("open_bytes").Update(float64(openBytes))
}

func (c *controller) validateSize(text string) error {
	size := int64(len(text))
	if size > c.maxFileSizeBytes {
		return &dlsperrors.DocumentSizeLimitError{Size: size, Limit: c.maxFileSizeBytes}
	}
	return nil
}
