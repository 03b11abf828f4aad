// Package userguidance shows one-time hints about dlsp to the user when an editor connects.
package userguidance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	configresolver "github.com/uber/doc-lsp/src/dlsp/controller/config-resolver"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	dlspplugin "github.com/uber/doc-lsp/src/dlsp/entity/dlsp-plugin"
	ideclient "github.com/uber/doc-lsp/src/dlsp/gateway/ide-client"
	"github.com/uber/doc-lsp/src/dlsp/internal/fs"
	"github.com/uber/doc-lsp/src/dlsp/repository/session"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type messageKind string

const (
	// messageKindOutput writes to the output window of the editor.
	messageKindOutput messageKind = "output"
	// messageKindNotification shows an editor notification.
	messageKindNotification messageKind = "notification"
)

// Conditions under which a message applies to a session.
const (
	// WhenAlways applies to every session.
	WhenAlways = ""
	// WhenNoProjectFile applies to sessions with a workspace folder that has no dlsp project file.
	WhenNoProjectFile = "noProjectFile"
)

type guidance struct {
	Messages []Message `yaml:"messages"`
}

// Message is a hint shown at most once per user, unless it has actions and none was saved.
type Message struct {
	Key     string      `yaml:"key"`
	Kind    messageKind `yaml:"kind"`
	Message string      `yaml:"message"`
	Type    string      `yaml:"type"`
	When    string      `yaml:"when"`
	Actions []Action    `yaml:"actions"`
}

// Action is a button offered with a notification.
type Action struct {
	Title    string       `yaml:"title"`
	URI      protocol.URI `yaml:"uri"`
	External bool         `yaml:"external"`
	Save     bool         `yaml:"save"`
}

const (
	_nameKey               = "userGuidance"
	_configKey             = "guidance"
	_shownMessagesCacheDir = "dlsp/shown-messages"

	// VS Code based editors report a cancelled request as an internal error.
	_canceledRequestMessage = "Request window/showMessageRequest failed with message: Canceled"
)

var errNeverShownMessage = errors.New("never shown message")

// Controller shows guidance messages.
type Controller interface {
	StartupInfo(ctx context.Context) (dlspplugin.PluginInfo, error)
	OutputMessage(ctx context.Context, msg Message) error
	NotifyMessage(ctx context.Context, msg Message) (*Action, error)
}

// Params are inbound parameters to initialize a new plugin.
type Params struct {
	fx.In

	Sessions   session.Repository
	IdeGateway ideclient.Gateway
	Resolver   configresolver.Resolver
	Config     config.Provider
	FS         fs.DlspFS
	Logger     *zap.SugaredLogger
}

type controller struct {
	sessions   session.Repository
	ideGateway ideclient.Gateway
	resolver   configresolver.Resolver
	fs         fs.DlspFS
	logger     *zap.SugaredLogger
	guidance   guidance
}

// New creates the guidance plugin from the messages in the daemon configuration.
func New(p Params) (Controller, error) {
	c := &controller{
		sessions:   p.Sessions,
		ideGateway: p.IdeGateway,
		resolver:   p.Resolver,
		fs:         p.FS,
		logger:     p.Logger.With("plugin", _nameKey),
	}
	if err := p.Config.Get(_configKey).Populate(&c.guidance); err != nil {
		return nil, fmt.Errorf("configure guidance: %w", err)
	}
	for _, msg := range c.guidance.Messages {
		if msg.When != WhenAlways && msg.When != WhenNoProjectFile {
			return nil, fmt.Errorf("guidance message %q: unknown condition %q", msg.Key, msg.When)
		}
	}
	return c, nil
}

// StartupInfo returns PluginInfo for this controller.
func (c *controller) StartupInfo(ctx context.Context) (dlspplugin.PluginInfo, error) {
	priorities := map[string]dlspplugin.Priority{
		protocol.MethodInitialized: dlspplugin.PriorityAsync,
	}

	methods := &dlspplugin.Methods{
		PluginNameKey: _nameKey,

		Initialized: c.initialized,
	}
	return dlspplugin.PluginInfo{
		Priorities: priorities,
		Methods:    methods,
		NameKey:    _nameKey,
	}, nil
}

func (c *controller) initialized(ctx context.Context, params *protocol.InitializedParams) error {
	if err := c.displayApplicableMessages(ctx); err != nil {
		return fmt.Errorf("display applicable messages: %w", err)
	}
	return nil
}

func (c *controller) displayApplicableMessages(ctx context.Context) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return fmt.Errorf("getting session from context: %w", err)
	}
	missing := c.missingProjectFile(s)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, msg := range c.guidance.Messages {
		if msg.When == WhenNoProjectFile && !missing {
			continue
		}

		wg.Add(1)
		go func(msg Message) {
			defer wg.Done()

			var err error
			switch msg.Kind {
			case messageKindOutput:
				if err = c.OutputMessage(ctx, msg); err != nil {
					err = fmt.Errorf("output message '%s': %w", msg.Key, err)
				}
			case messageKindNotification:
				if _, err = c.NotifyMessage(ctx, msg); err != nil {
					err = fmt.Errorf("notify message '%s': %w", msg.Key, err)
				}
			}
			mu.Lock()
			errs = multierr.Append(errs, err)
			mu.Unlock()
		}(msg)
	}
	wg.Wait()
	return errs
}

// missingProjectFile reports whether any workspace folder of the session lacks every dlsp project file.
func (c *controller) missingProjectFile(s *entity.Session) bool {
	for _, folder := range s.WorkspaceFolders {
		found := false
		for _, candidate := range c.resolver.ProjectFiles(entity.Project{Root: folder}) {
			ok, err := c.fs.FileExists(candidate)
			if err != nil {
				c.logger.Debugw("checking project file", "path", candidate, zap.Error(err))
				continue
			}
			if ok {
				found = true
				break
			}
		}
		if !found {
			return true
		}
	}
	return false
}

func (c *controller) OutputMessage(ctx context.Context, msg Message) error {
	if _, err := c.statShownMessage(msg); err == nil {
		return nil
	} else if !errors.Is(err, errNeverShownMessage) {
		return fmt.Errorf("stat shown message: %w", err)
	}

	if err := c.ideGateway.LogMessage(ctx, &protocol.LogMessageParams{
		Type:    protocol.ToMessageType(msg.Type),
		Message: msg.Message,
	}); err != nil {
		return fmt.Errorf("log message: %w", err)
	}

	if err := c.markMessageAsShown(msg, nil); err != nil {
		return fmt.Errorf("mark message as shown: %w", err)
	}
	return nil
}

func (c *controller) NotifyMessage(ctx context.Context, msg Message) (*Action, error) {
	selection, err := c.statShownMessage(msg)
	if err != nil && !errors.Is(err, errNeverShownMessage) {
		return nil, fmt.Errorf("stat shown message: %w", err)
	}

	if len(msg.Actions) == 0 {
		if err == nil {
			return nil, nil
		}

		if err := c.ideGateway.ShowMessage(ctx, &protocol.ShowMessageParams{
			Type:    protocol.ToMessageType(msg.Type),
			Message: msg.Message,
		}); err != nil {
			return nil, fmt.Errorf("show message: %w", err)
		}

		if err := c.markMessageAsShown(msg, nil); err != nil {
			return nil, fmt.Errorf("mark message as shown: %w", err)
		}
		return nil, nil
	}

	if selection == nil {
		request := protocol.ShowMessageRequestParams{
			Type:    protocol.ToMessageType(msg.Type),
			Message: msg.Message,
			Actions: make([]protocol.MessageActionItem, 0, len(msg.Actions)),
		}
		for _, action := range msg.Actions {
			request.Actions = append(request.Actions, protocol.MessageActionItem{Title: action.Title})
		}

		selection, err = c.ideGateway.ShowMessageRequest(ctx, &request)
		if err != nil {
			// The editor cancels pending requests when it disconnects.
			var rpcError *jsonrpc2.Error
			if errors.As(err, &rpcError) && (rpcError.Code == protocol.CodeRequestCancelled ||
				rpcError.Code == jsonrpc2.InternalError && rpcError.Message == _canceledRequestMessage) {
				return nil, nil
			}
			return nil, fmt.Errorf("show message request: %w", err)
		}
		if selection == nil {
			return nil, nil
		}
	}

	for _, action := range msg.Actions {
		if selection.Title != action.Title {
			continue
		}

		if action.Save {
			if err := c.markMessageAsShown(msg, selection); err != nil {
				return nil, fmt.Errorf("mark message as shown: %w", err)
			}
		}

		if action.URI == "" {
			return &action, nil
		}

		if _, err = c.ideGateway.ShowDocument(ctx, &protocol.ShowDocumentParams{
			URI:       action.URI,
			External:  action.External,
			TakeFocus: true,
		}); err != nil {
			return &action, fmt.Errorf("show document: %w", err)
		}
		return &action, nil
	}

	return nil, fmt.Errorf("no action matches selection '%s'", selection.Title)
}

func (c *controller) statShownMessage(msg Message) (*protocol.MessageActionItem, error) {
	sentinel, err := c.sentinelPath(msg)
	if err != nil {
		return nil, fmt.Errorf("build sentinel file path: %w", err)
	}

	title, err := c.fs.ReadFile(sentinel)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNeverShownMessage
	}
	if err != nil {
		return nil, fmt.Errorf("read sentinel file: %w", err)
	}

	return &protocol.MessageActionItem{Title: string(title)}, nil
}

func (c *controller) markMessageAsShown(msg Message, selection *protocol.MessageActionItem) error {
	sentinel, err := c.sentinelPath(msg)
	if err != nil {
		return fmt.Errorf("build sentinel file path: %w", err)
	}

	if err := c.fs.MkdirAll(filepath.Dir(sentinel)); err != nil {
		return fmt.Errorf("mkdir all sentinel: %w", err)
	}

	title := ""
	if selection != nil {
		title = selection.Title
	}
	if err := c.fs.WriteFile(sentinel, title); err != nil {
		return fmt.Errorf("write sentinel file: %w", err)
	}
	return nil
}

func (c *controller) sentinelPath(msg Message) (string, error) {
	cache, err := c.fs.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("user cache dir: %w", err)
	}
	return path.Join(cache, _shownMessagesCacheDir, msg.Key), nil
}
