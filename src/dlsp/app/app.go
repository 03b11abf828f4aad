package app

import (
	"context"
	"time"

	"github.com/uber-go/tally"
	"github.com/uber/doc-lsp/src/dlsp/gateway"
	"github.com/uber/doc-lsp/src/dlsp/handler"
	"github.com/uber/doc-lsp/src/dlsp/internal/core"
	"github.com/uber/doc-lsp/src/dlsp/internal/executor"
	"github.com/uber/doc-lsp/src/dlsp/internal/fs"
	"github.com/uber/doc-lsp/src/dlsp/internal/jsonrpcfx"
	"github.com/uber/doc-lsp/src/dlsp/internal/serverinfofile"
	"go.uber.org/fx"
)

// Module defines the dlsp-daemon application module.
var Module = fx.Options(
	gateway.Module, // outbounds
	handler.Module, // inbounds
	jsonrpcfx.Module,
	fs.Module,
	executor.Module,
	serverinfofile.Module,
	core.ConfigModule,
	core.LoggerModule,
	fx.Provide(func(lc fx.Lifecycle) tally.Scope {
		rs, closer := tally.NewRootScope(tally.ScopeOptions{
			Tags: map[string]string{
				"service": "dlsp-daemon",
			},
		}, 1*time.Second)

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return closer.Close()
			},
		})

		return rs
	}),
	fx.Decorate(decorateEnvContext),
	fx.Decorate(decorateConfigProvider),
	fx.Provide(func() Context {
		return Context{
			Environment:        EnvLocal,
			RuntimeEnvironment: EnvLocal,
		}
	}),
)
