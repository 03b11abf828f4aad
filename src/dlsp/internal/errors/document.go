package errors

import (
	"fmt"

	"go.lsp.dev/protocol"
)

// DocumentNotFoundError is returned for a change to a document the session never opened.
type DocumentNotFoundError struct {
	Document protocol.TextDocumentIdentifier
}

func (e *DocumentNotFoundError) Error() string {
	return fmt.Sprintf("document %q is not open", e.Document.URI)
}

// DocumentSizeLimitError rejects document content larger than maxFileSizeBytes.
type DocumentSizeLimitError struct {
	Size  int64
	Limit int64
}

func (e *DocumentSizeLimitError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("document of %d bytes exceeds the %d byte limit", e.Size, e.Limit)
	}
	return fmt.Sprintf("document of %d bytes exceeds the size limit", e.Size)
}
