package controller

import (
	buildagent "github.com/uber/doc-lsp/src/dlsp/controller/build-agent"
	buildscheduler "github.com/uber/doc-lsp/src/dlsp/controller/build-scheduler"
	configresolver "github.com/uber/doc-lsp/src/dlsp/controller/config-resolver"
	dlspdaemon "github.com/uber/doc-lsp/src/dlsp/controller/dlsp-daemon"
	docsync "github.com/uber/doc-lsp/src/dlsp/controller/doc-sync"
	"github.com/uber/doc-lsp/src/dlsp/controller/preview"
	"github.com/uber/doc-lsp/src/dlsp/controller/registry"
	userguidance "github.com/uber/doc-lsp/src/dlsp/controller/user-guidance"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(dlspdaemon.New),
	fx.Provide(configresolver.New),
	fx.Provide(buildagent.NewFactory),
	fx.Provide(buildscheduler.New),
	fx.Provide(docsync.New),
	fx.Provide(registry.New),
	fx.Provide(preview.New),
	fx.Provide(userguidance.New),
)
