package app

import "errors"

// ErrConfig is returned when the configuration cannot be loaded or is
// invalid.
var ErrConfig = errors.New("invalid configuration")

// ErrTLS is returned when the TLS certificate or key cannot be used.
var ErrTLS = errors.New("tls")
