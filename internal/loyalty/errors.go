package loyalty

import "errors"

// Error taxonomy shared by the loyalty services. Handlers map these onto
// HTTP status codes; anything unwrapped is a 500.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)
