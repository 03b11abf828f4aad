// Package buildscheduler runs at most one build per client and coalesces the requests that arrive meanwhile.
package buildscheduler

import (
	"context"
	"sync"

	"github.com/uber-go/tally"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Decision is what RequestBuild did with a request.
type Decision int

const (
	// Started means the build was dispatched immediately.
	Started Decision = iota
	// Queued means a follow-up build was scheduled behind the running one, or until the client is ready.
	Queued
	// Coalesced means the request was merged into an already queued follow-up.
	Coalesced
	// Dropped means the client cannot build and the request was discarded.
	Dropped
)

var _decisionNames = map[Decision]string{
	Started:   "started",
	Queued:    "queued",
	Coalesced: "coalesced",
	Dropped:   "dropped",
}

func (d Decision) String() string {
	return _decisionNames[d]
}

// Target is a client that can run builds.
type Target interface {
	ID() string
	State() entity.ClientState
	Build(ctx context.Context, reasons []string) (*entity.BuildResult, error)
}

// Scheduler decides when each client builds.
type Scheduler interface {
	// RequestBuild asks for a build of the target. It never blocks on the build itself.
	RequestBuild(target Target, reason string) Decision
	// ClientReady releases a build queued while the client was starting.
	ClientReady(id string)
	// Cancel stops the running build of a client and discards its queued follow-up.
	// It reports whether a build was running or queued.
	Cancel(id string) bool
	// Wait blocks until no build is running.
	Wait()
}

// Params are inbound parameters to initialize a new Scheduler.
type Params struct {
	fx.In

	Logger *zap.SugaredLogger
	Stats  tally.Scope
}

type entry struct {
	target  Target
	running bool
	cancel  context.CancelFunc
	queued  bool
	// reasons of the queued follow-up, distinct and most recent last.
	reasons []string
}

type scheduler struct {
	logger *zap.SugaredLogger
	stats  tally.Scope

	mu      sync.Mutex
	entries map[string]*entry
	wg      sync.WaitGroup
}

// New creates a Scheduler.
func New(p Params) Scheduler {
	return &scheduler{
		logger:  p.Logger.With("plugin", "build-scheduler"),
		stats:   p.Stats.SubScope("builds"),
		entries: make(map[string]*entry),
	}
}

func (s *scheduler) RequestBuild(target Target, reason string) Decision {
	s.stats.Counter("requested").Inc(1)
	id := target.ID()
	state := target.State()

	s.mu.Lock()
	defer s.mu.Unlock()

	if state == entity.ClientErrored || state == entity.ClientDestroyed {
		s.dropLocked(id)
		s.stats.Counter("dropped").Inc(1)
		s.logger.Debugw("build dropped", "client", id, "state", state.String(), "reason", reason)
		return Dropped
	}

	e, ok := s.entries[id]
	if !ok {
		e = &entry{target: target}
		s.entries[id] = e
	}
	e.target = target

	if e.running || state != entity.ClientReady {
		decision := Queued
		if e.queued {
			decision = Coalesced
			s.stats.Counter("coalesced").Inc(1)
		} else {
			s.stats.Counter("queued").Inc(1)
		}
		e.queued = true
		e.reasons = appendReason(e.reasons, reason)
		s.logger.Debugw("build "+decision.String(), "client", id, "state", state.String(), "reasons", e.reasons)
		return decision
	}

	s.startLocked(e, []string{reason})
	return Started
}

func (s *scheduler) ClientReady(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.running || !e.queued {
		return
	}
	if e.target.State() != entity.ClientReady {
		return
	}
	reasons := e.reasons
	e.queued, e.reasons = false, nil
	s.startLocked(e, reasons)
}

func (s *scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	pending := e.queued || e.running
	if e.queued {
		s.stats.Counter("dropped").Inc(1)
	}
	e.queued, e.reasons = false, nil
	if e.running {
		e.cancel()
		return pending
	}
	delete(s.entries, id)
	return pending
}

func (s *scheduler) Wait() {
	s.wg.Wait()
}

// startLocked dispatches a build. s.mu must be held.
func (s *scheduler) startLocked(e *entry, reasons []string) {
	ctx, cancel := context.WithCancel(context.Background())
	e.running = true
	e.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx, e, reasons)
}

// run builds until the target has no queued follow-up.
func (s *scheduler) run(ctx context.Context, e *entry, reasons []string) {
	defer s.wg.Done()
	id := e.target.ID()

	for {
		s.stats.Counter("started").Inc(1)
		s.logger.Infow("build started", "client", id, "reasons", reasons)

		result, err := e.target.Build(ctx, reasons)
		switch {
		case err != nil:
			s.stats.Counter("failed").Inc(1)
			s.logger.Warnw("build did not complete", "client", id, zap.Error(err))
		case !result.Success:
			s.stats.Counter("failed").Inc(1)
			s.logger.Infow("build failed", "client", id, "error", result.Error)
		default:
			s.stats.Counter("succeeded").Inc(1)
			s.logger.Infow("build succeeded", "client", id, "warnings", result.Warnings)
		}

		s.mu.Lock()
		state := e.target.State()
		if !e.queued || ctx.Err() != nil || state != entity.ClientReady {
			e.running = false
			e.cancel()
			switch {
			case state == entity.ClientErrored || state == entity.ClientDestroyed:
				s.dropLocked(id)
			case !e.queued && s.entries[id] == e:
				delete(s.entries, id)
			case state == entity.ClientReady && s.entries[id] == e:
				// The run was cancelled and the client became ready again before it returned,
				// so ClientReady already passed over the follow-up.
				next := e.reasons
				e.queued, e.reasons = false, nil
				s.startLocked(e, next)
			}
			// Otherwise a follow-up queued while the client restarts waits for ClientReady.
			s.mu.Unlock()
			return
		}
		reasons = e.reasons
		e.queued, e.reasons = false, nil
		s.mu.Unlock()
	}
}

// dropLocked discards everything held for a client. s.mu must be held.
func (s *scheduler) dropLocked(id string) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	if e.queued {
		s.stats.Counter("dropped").Inc(1)
		s.logger.Debugw("queued build dropped", "client", id, "reasons", e.reasons)
	}
	e.queued, e.reasons = false, nil
	if !e.running {
		delete(s.entries, id)
	}
}

// appendReason adds reason to the list, moving it to the end if it is already present.
func appendReason(reasons []string, reason string) []string {
	out := make([]string, 0, len(reasons)+1)
	for _, r := range reasons {
		if r != reason {
			out = append(out, r)
		}
	}
	return append(out, reason)
}
