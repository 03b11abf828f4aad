// Package gateway holds the outbound connections of the daemon.
package gateway

import (
	ideclient "github.com/uber/doc-lsp/src/dlsp/gateway/ide-client"
	"go.uber.org/fx"
)

// Module provides the outbound gateways.
var Module = fx.Options(
	fx.Provide(ideclient.New),
)
