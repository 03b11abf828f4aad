package handler

import (
	"fmt"
	"os"

	"github.com/uber/doc-lsp/src/dlsp/internal/serverinfofile"
	"go.uber.org/config"
)

const (
	_errInvalidEntry = "type error or missing field for key %q"

	_fmtInfoFileKey = "%s-%s"

	_configKeyService = "service"
	_configKeyName    = "name"
	_infoKeyPID       = "pid"
)

// Output the identity of the running daemon from the service configuration block, so tools can find and signal it.
// Connection methods (JSON-RPC, preview servers) independently add their fields to the Server Info file.
func outputServiceInfo(cfg config.Provider, infofile serverinfofile.ServerInfoFile) error {
	var cfgData map[string]interface{}
	if err := cfg.Get(_configKeyService).Populate(&cfgData); err != nil {
		return fmt.Errorf("loading service config: %v", err)
	}

	name, ok := cfgData[_configKeyName].(string)
	if !ok || name == "" {
		return fmt.Errorf(_errInvalidEntry, _configKeyName)
	}

	fields := map[string]any{
		_configKeyName: name,
		_infoKeyPID:    os.Getpid(),
	}
	for key, value := range fields {
		if err := infofile.UpdateField(fmt.Sprintf(_fmtInfoFileKey, _configKeyService, key), value); err != nil {
			return fmt.Errorf("outputting service %s to info file: %w", key, err)
		}
	}

	return nil
}
