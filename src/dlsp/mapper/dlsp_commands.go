package mapper

import (
	"encoding/json"

	"github.com/uber/doc-lsp/src/dlsp/entity"
	"go.lsp.dev/jsonrpc2"
)

// RequestToRestartParams maps the parameters of a restart command. Missing params restart every client.
func RequestToRestartParams(req jsonrpc2.Request) (*entity.RestartParams, error) {
	params := entity.RestartParams{}
	if err := unmarshalOptional(req.Params(), &params); err != nil {
		return nil, wrapErrParse(err)
	}
	return &params, nil
}

// RequestToPreviewParams maps the optional parameters of a preview command.
func RequestToPreviewParams(req jsonrpc2.Request) (*entity.PreviewParams, error) {
	params := entity.PreviewParams{}
	if err := unmarshalOptional(req.Params(), &params); err != nil {
		return nil, wrapErrParse(err)
	}
	return &params, nil
}

// RequestToScrollParams maps the parameters of an editor scroll notification.
func RequestToScrollParams(req jsonrpc2.Request) (*entity.ScrollParams, error) {
	params := entity.ScrollParams{}
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return nil, wrapErrParse(err)
	}
	return &params, nil
}

// unmarshalOptional accepts absent, null, or single element array params.
func unmarshalOptional(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 || string(list[0]) == "null" {
			return nil
		}
		raw = list[0]
	}
	return json.Unmarshal(raw, out)
}
