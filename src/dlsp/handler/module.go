package handler

import (
	controller "github.com/uber/doc-lsp/src/dlsp/controller"
	dlspdaemon "github.com/uber/doc-lsp/src/dlsp/controller/dlsp-daemon"
	handler "github.com/uber/doc-lsp/src/dlsp/handler/dlsp-daemon"
	"github.com/uber/doc-lsp/src/dlsp/repository/session"
	"go.uber.org/fx"
)

// Module provides the dlsp-daemon server into an Fx application.
var Module = fx.Options(
	controller.Module,
	fx.Provide(session.New),
	fx.Provide(handler.New),
	fx.Invoke(outputServiceInfo),
	fx.Invoke(func(m handler.Handler) {}),
	fx.Invoke(func(m dlspdaemon.Controller) {}),
)
