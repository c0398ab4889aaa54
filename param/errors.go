package param

import "errors"

// ErrUnknownParameter is returned when a name cannot be resolved
// against a store.
var ErrUnknownParameter = errors.New("unknown parameter")
