package graph

import "go.trai.ch/zerr"

var (
	// ErrDuplicateBuilder is returned when a second builder claims an output node.
	ErrDuplicateBuilder = zerr.New("node already has a builder")

	// ErrUnsupportedSource is returned when a link source is neither compilable nor an object.
	ErrUnsupportedSource = zerr.New("unsupported link source")

	// ErrUnknownDepsHandler is returned when restoring a dynamic source for an unregistered handler.
	ErrUnknownDepsHandler = zerr.New("unknown dependency handler")

	// ErrCycle is returned when the builder graph contains a cycle.
	ErrCycle = zerr.New("dependency cycle detected")

	// ErrCommandFailed is returned when an external command exits unsuccessfully.
	ErrCommandFailed = zerr.New("command failed")

	// ErrInputHashFailed is returned when an input of a builder cannot be hashed.
	ErrInputHashFailed = zerr.New("failed to hash builder input")
)
