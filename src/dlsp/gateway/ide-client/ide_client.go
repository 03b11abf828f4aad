// Package ideclient routes outbound notifications and calls to the IDE session that owns the request context.
package ideclient

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/uber/doc-lsp/src/dlsp/mapper"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

const (
	_errSendToClient = "sending call/notification to IDE: %w"

	_promptHintDelay   = 5 * time.Second
	_promptMaxDuration = 2 * time.Minute

	_promptTitle   = "User Input Needed"
	_promptMessage = "Please make a selection from the prompt."
	_promptHint    = "Waiting for a selection. Click here to expand notifications if you don't see a prompt."
)

// Gateway is used to send outbound notifications and calls to the IDE.
// All calls to the gateway should include a context with a session UUID, which will be used to route outbound calls and notifications to the correct IDE session.
type Gateway interface {
	// RegisterClient registers a new client with the gateway. Should be called each time a new IDE connection is initialized.
	RegisterClient(ctx context.Context, id uuid.UUID, conn *jsonrpc2.Conn) error
	// DeregisterClient removes a client from the gateway. Should be called each time an IDE connection is closed.
	DeregisterClient(ctx context.Context, id uuid.UUID) error
	// Sessions lists the ids of every registered client, in a stable order.
	Sessions() []uuid.UUID

	// Methods from protocol.Client interface.
	Progress(ctx context.Context, params *protocol.ProgressParams) (err error)
	WorkDoneProgressCreate(ctx context.Context, params *protocol.WorkDoneProgressCreateParams) (err error)
	LogMessage(ctx context.Context, params *protocol.LogMessageParams) (err error)
	ShowMessage(ctx context.Context, params *protocol.ShowMessageParams) (err error)
	ShowMessageRequest(ctx context.Context, params *protocol.ShowMessageRequestParams) (result *protocol.MessageActionItem, err error)
	Configuration(ctx context.Context, params *protocol.ConfigurationParams) (result []interface{}, err error)
	ShowDocument(ctx context.Context, params *protocol.ShowDocumentParams) (result *protocol.ShowDocumentResult, err error)

	// Notify sends a notification outside of the LSP protocol, such as client lifecycle events.
	Notify(ctx context.Context, method string, params interface{}) error

	// GetLogMessageWriter returns an io.Writer that can be used to log messages to the IDE client.
	// Do not store or use across requests, get a new one each time as needed.
	GetLogMessageWriter(ctx context.Context, prefix string) (io.Writer, error)
}

// ideSession pairs the typed LSP client of a connection with the raw connection,
// which carries the methods protocol.Client does not cover.
type ideSession struct {
	client protocol.Client
	conn   jsonrpc2.Conn
}

type gateway struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]ideSession
	logger   *zap.Logger
}

// New returns a Gateway for sending IDE notifications and calls.
func New(logger *zap.Logger) Gateway {
	return &gateway{
		sessions: make(map[uuid.UUID]ideSession),
		logger:   logger,
	}
}

func (g *gateway) RegisterClient(ctx context.Context, id uuid.UUID, conn *jsonrpc2.Conn) error {
	if conn == nil || *conn == nil {
		return fmt.Errorf("registering session %q: missing connection", id)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[id] = ideSession{
		client: protocol.ClientDispatcher(*conn, g.logger),
		conn:   *conn,
	}
	return nil
}

func (g *gateway) DeregisterClient(ctx context.Context, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, id)
	return nil
}

func (g *gateway) Sessions() []uuid.UUID {
	g.mu.RLock()
	ids := make([]uuid.UUID, 0, len(g.sessions))
	for id := range g.sessions {
		ids = append(ids, id)
	}
	g.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func (g *gateway) Progress(ctx context.Context, params *protocol.ProgressParams) error {
	s, err := g.session(ctx)
	if err != nil {
		return err
	}
	return s.client.Progress(ctx, params)
}

func (g *gateway) WorkDoneProgressCreate(ctx context.Context, params *protocol.WorkDoneProgressCreateParams) error {
	s, err := g.session(ctx)
	if err != nil {
		return err
	}
	return s.client.WorkDoneProgressCreate(ctx, params)
}

func (g *gateway) LogMessage(ctx context.Context, params *protocol.LogMessageParams) error {
	s, err := g.session(ctx)
	if err != nil {
		return err
	}
	return s.client.LogMessage(ctx, params)
}

func (g *gateway) ShowMessage(ctx context.Context, params *protocol.ShowMessageParams) error {
	s, err := g.session(ctx)
	if err != nil {
		return err
	}
	return s.client.ShowMessage(ctx, params)
}

func (g *gateway) ShowMessageRequest(ctx context.Context, params *protocol.ShowMessageRequestParams) (*protocol.MessageActionItem, error) {
	s, err := g.session(ctx)
	if err != nil {
		return nil, err
	}

	// Editors hide anything below error level while notifications are silenced.
	if params.Type > protocol.MessageTypeError {
		p, err := startPromptProgress(ctx, s.client)
		if err != nil {
			return nil, fmt.Errorf(_errSendToClient, err)
		}
		defer p.done()
	}

	return s.client.ShowMessageRequest(ctx, params)
}

func (g *gateway) Configuration(ctx context.Context, params *protocol.ConfigurationParams) ([]interface{}, error) {
	s, err := g.session(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.Configuration(ctx, params)
}

func (g *gateway) ShowDocument(ctx context.Context, params *protocol.ShowDocumentParams) (*protocol.ShowDocumentResult, error) {
	s, err := g.session(ctx)
	if err != nil {
		return nil, err
	}

	result := &protocol.ShowDocumentResult{}
	if err := protocol.Call(ctx, s.conn, protocol.MethodShowDocument, params, result); err != nil {
		return nil, fmt.Errorf(_errSendToClient, err)
	}
	return result, nil
}

func (g *gateway) Notify(ctx context.Context, method string, params interface{}) error {
	s, err := g.session(ctx)
	if err != nil {
		return err
	}
	if err := s.conn.Notify(ctx, method, params); err != nil {
		return fmt.Errorf(_errSendToClient, err)
	}
	return nil
}

func (g *gateway) GetLogMessageWriter(ctx context.Context, prefix string) (io.Writer, error) {
	s, err := g.session(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting IDE log message writer: %w", err)
	}
	return &logMessageWriter{client: s.client, ctx: ctx, prefix: prefix}, nil
}

// session returns the IDE session owning ctx.
func (g *gateway) session(ctx context.Context) (ideSession, error) {
	id, err := mapper.ContextToSessionUUID(ctx)
	if err != nil {
		return ideSession{}, fmt.Errorf(_errSendToClient, err)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sessions[id]
	if !ok {
		return ideSession{}, fmt.Errorf(_errSendToClient, fmt.Errorf("client with id %q not found", id))
	}
	return s, nil
}

// promptProgress is a work done progress shown while a prompt waits for the user,
// in case the editor has notifications hidden.
type promptProgress struct {
	client protocol.Client
	ctx    context.Context
	token  protocol.ProgressToken
	hint   *time.Timer
	expiry *time.Timer
}

func startPromptProgress(ctx context.Context, client protocol.Client) (*promptProgress, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	p := &promptProgress{
		client: client,
		ctx:    ctx,
		token:  *protocol.NewProgressToken(id.String()),
	}
	if err := client.WorkDoneProgressCreate(ctx, &protocol.WorkDoneProgressCreateParams{Token: p.token}); err != nil {
		return nil, fmt.Errorf("creating user input progress: %w", err)
	}
	if err := p.send(&protocol.WorkDoneProgressBegin{
		Kind:        protocol.WorkDoneProgressKindBegin,
		Title:       _promptTitle,
		Message:     _promptMessage,
		Cancellable: true,
	}); err != nil {
		return nil, fmt.Errorf("starting user input progress: %w", err)
	}

	p.hint = time.AfterFunc(_promptHintDelay, func() {
		p.send(&protocol.WorkDoneProgressReport{
			Kind:    protocol.WorkDoneProgressKindReport,
			Message: _promptHint,
		})
	})
	// A prompt may be ignored entirely.
	p.expiry = time.AfterFunc(_promptMaxDuration, p.end)
	return p, nil
}

func (p *promptProgress) send(value interface{}) error {
	return p.client.Progress(p.ctx, &protocol.ProgressParams{Token: p.token, Value: value})
}

func (p *promptProgress) end() {
	p.send(&protocol.WorkDoneProgressEnd{Kind: protocol.WorkDoneProgressKindEnd})
}

// done ends the progress unless it already expired.
func (p *promptProgress) done() {
	p.hint.Stop()
	if p.expiry.Stop() {
		p.end()
	}
}

// logMessageWriter implements io.Writer to allow logging to the IDE client in situations that require an io.Writer.
type logMessageWriter struct {
	client protocol.Client
	ctx    context.Context
	prefix string
}

func (w *logMessageWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSuffix(string(p), "\n")
	if err := w.client.LogMessage(w.ctx, &protocol.LogMessageParams{
		Message: fmt.Sprintf("[%s] %s", w.prefix, msg),
		Type:    protocol.MessageTypeLog,
	}); err != nil {
		return 0, fmt.Errorf("writing to IDE log message writer: %w", err)
	}
	return len(p), nil
}
