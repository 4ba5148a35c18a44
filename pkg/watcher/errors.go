package watcher

import "errors"

var (
	ErrNoPaths      = errors.New("no paths to watch")
	ErrNoTarget     = errors.New("no delivery callback registered")
	ErrNoActions    = errors.New("allowed actions set is empty")
	ErrStreamCreate = errors.New("failed to create event stream")
	ErrStreamStart  = errors.New("failed to start event stream")
	ErrDeviceLookup = errors.New("failed to resolve device event id")
	ErrUnsupported  = errors.New("fsevents is not available on this platform")
	ErrNoExclusions = errors.New("stream does not support exclusion paths")
)
