package shared

import "errors"

// ErrNotLive is returned when a key has no live instance.
var ErrNotLive = errors.New("no live instance")
