package base

import "github.com/pkg/errors"

// ErrInvalidConfig is returned when a network or module is configured with
// values that cannot produce a consistent topology.
var ErrInvalidConfig = errors.New("invalid config")
