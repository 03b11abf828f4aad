package registry

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/uuid"
	buildagent "github.com/uber/doc-lsp/src/dlsp/controller/build-agent"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	"github.com/uber/doc-lsp/src/dlsp/mapper"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

const (
	_buildTitle      = "Building documentation"
	_erroredMessage  = "Documentation build agent for %s stopped: %s"
	_buildEndMessage = "%d warning(s)"
)

var _ buildagent.Listener = (*controller)(nil)

// ClientEvent relays a lifecycle event to every session with the project open.
func (c *controller) ClientEvent(event entity.LifecycleEvent) {
	c.notify(event.Root, string(event.Kind), event)

	switch event.Kind {
	case entity.EventAppCreated:
		c.scheduler.ClientReady(event.ClientID)
		c.resumeInterrupted(event.ClientID)
	case entity.EventClientErrored:
		interrupted := c.scheduler.Cancel(event.ClientID)
		if event.Restarting {
			return
		}
		c.stats.Counter("errored").Inc(1)
		if interrupted {
			c.mu.Lock()
			c.interrupted[event.ClientID] = struct{}{}
			c.mu.Unlock()
		}
		c.promptRestart(event)
	case entity.EventClientDestroyed:
		c.scheduler.Cancel(event.ClientID)
	}
}

// resumeInterrupted requests again the build a crash cancelled, once the client is back.
func (c *controller) resumeInterrupted(id string) {
	c.mu.Lock()
	_, ok := c.interrupted[id]
	delete(c.interrupted, id)
	c.mu.Unlock()
	if !ok {
		return
	}

	client, err := c.Get(id)
	if err != nil {
		return
	}
	c.logger.Infow("resuming build interrupted by a crash", "client", id)
	c.scheduler.RequestBuild(client, ReasonRestart)
}

// promptRestart offers each session with the project open to restart an errored client.
func (c *controller) promptRestart(event entity.LifecycleEvent) {
	for _, s := range c.sessionsFor(event.Root) {
		c.background.Add(1)
		go func(id uuid.UUID) {
			defer c.background.Done()
			ctx := mapper.SessionUUIDToContext(c.ctx, id)
			item, err := c.ideGateway.ShowMessageRequest(ctx, &protocol.ShowMessageRequestParams{
				Type:    protocol.MessageTypeError,
				Message: fmt.Sprintf(_erroredMessage, filepath.Base(event.Root), event.Error),
				Actions: []protocol.MessageActionItem{{Title: _actionRestart}},
			})
			if err != nil {
				c.logger.Debugw("restart prompt", "session", id, zap.Error(err))
				return
			}
			if item == nil || item.Title != _actionRestart {
				return
			}
			if err := c.Restart(ctx, []string{event.ClientID}); err != nil {
				c.logger.Warnw("restart requested from prompt", "client", event.ClientID, zap.Error(err))
			}
		}(s.UUID)
	}
}

// BuildStarted notifies editors and opens a work done progress for the build.
func (c *controller) BuildStarted(client buildagent.Client, reasons []string) {
	root := client.Project().Root
	c.notify(root, entity.MethodBuildStart, entity.BuildStartEvent{ClientID: client.ID(), Reasons: reasons})

	token := protocol.NewProgressToken(fmt.Sprintf("dlsp-build-%s-%d", client.ID(), client.Generation()))
	c.mu.Lock()
	c.progress[client.ID()] = *token
	c.mu.Unlock()

	for _, s := range c.sessionsFor(root) {
		ctx := mapper.SessionUUIDToContext(c.ctx, s.UUID)
		if err := c.ideGateway.WorkDoneProgressCreate(ctx, &protocol.WorkDoneProgressCreateParams{Token: *token}); err != nil {
			c.logger.Debugw("creating build progress", "session", s.UUID, zap.Error(err))
			continue
		}
		c.ideGateway.Progress(ctx, &protocol.ProgressParams{
			Token: *token,
			Value: protocol.WorkDoneProgressBegin{
				Kind:  protocol.WorkDoneProgressKindBegin,
				Title: _buildTitle,
			},
		})
	}
}

// BuildCompleted notifies editors, closes the build progress and hands the result to subscribers.
func (c *controller) BuildCompleted(client buildagent.Client, result entity.BuildResult) {
	root := client.Project().Root
	c.notify(root, entity.MethodBuildComplete, entity.BuildCompleteEvent{
		ClientID: client.ID(),
		Config: entity.BuildCompleteConfig{
			App:    result.App,
			Server: client.Config().Plain(),
		},
		Error:    !result.Success,
		Warnings: result.Warnings,
	})

	c.mu.Lock()
	token, ok := c.progress[client.ID()]
	delete(c.progress, client.ID())
	listeners := append([]BuildListener{}, c.listeners...)
	c.mu.Unlock()

	if ok {
		message := fmt.Sprintf(_buildEndMessage, result.Warnings)
		if !result.Success {
			message = result.Error
		}
		c.progressAll(root, &protocol.ProgressParams{
			Token: token,
			Value: protocol.WorkDoneProgressEnd{
				Kind:    protocol.WorkDoneProgressKindEnd,
				Message: message,
			},
		})
	}

	for _, l := range listeners {
		l.BuildCompleted(client, result)
	}
}

// AgentLog forwards a log event of the agent to the editors.
func (c *controller) AgentLog(client buildagent.Client, params *protocol.LogMessageParams) {
	for _, s := range c.sessionsFor(client.Project().Root) {
		ctx := mapper.SessionUUIDToContext(c.ctx, s.UUID)
		if err := c.ideGateway.LogMessage(ctx, params); err != nil {
			c.logger.Debugw("forwarding agent log", "session", s.UUID, zap.Error(err))
		}
	}
}

// AgentProgress reports the progress of the running build under the token opened in BuildStarted.
func (c *controller) AgentProgress(client buildagent.Client, params *protocol.ProgressParams) {
	c.mu.RLock()
	token, ok := c.progress[client.ID()]
	c.mu.RUnlock()
	if !ok {
		return
	}

	c.progressAll(client.Project().Root, &protocol.ProgressParams{Token: token, Value: params.Value})
}

// AgentDiagnostics publishes the diagnostics reported by the agent.
func (c *controller) AgentDiagnostics(client buildagent.Client, params *protocol.PublishDiagnosticsParams) {
	c.notify(client.Project().Root, protocol.MethodTextDocumentPublishDiagnostics, params)
}

func (c *controller) progressAll(root string, params *protocol.ProgressParams) {
	for _, s := range c.sessionsFor(root) {
		ctx := mapper.SessionUUIDToContext(c.ctx, s.UUID)
		if err := c.ideGateway.Progress(ctx, params); err != nil {
			c.logger.Debugw("reporting build progress", "session", s.UUID, zap.Error(err))
		}
	}
}

// notify sends a notification to every session with the project open.
func (c *controller) notify(root string, method string, params any) {
	for _, s := range c.sessionsFor(root) {
		ctx := mapper.SessionUUIDToContext(c.ctx, s.UUID)
		if err := c.ideGateway.Notify(ctx, method, params); err != nil {
			c.logger.Debugw("notifying session", "session", s.UUID, "method", method, zap.Error(err))
		}
	}
}

func (c *controller) sessionsFor(root string) []*entity.Session {
	sessions, err := c.sessions.GetAllContaining(c.ctx, root)
	if err != nil {
		c.logger.Warnw("listing sessions", "root", root, zap.Error(err))
		return nil
	}
	return sessions
}
