package service

import "errors"

// Error taxonomy shared by the service layer. Handlers translate these into
// HTTP statuses; nothing else escapes to the client.
var (
	ErrMissingField       = errors.New("missing required field")
	ErrNotFound           = errors.New("not found")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrUpstreamRejected   = errors.New("upstream provider rejected request")
)
