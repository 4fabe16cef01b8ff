package engine

import "errors"

// Error sentinels for the codec/storage error classes the engine surfaces,
// plus the engine's own closed and read-only guards. The lifecycle errors a
// caller of a collection sees (closed, read-only, duplicate key, ...) are
// defined by the collection package, which governs them by option.
var (
	ErrStorageFailure         = errors.New("engine: storage failure")
	ErrSerializationFailure   = errors.New("engine: serialization failure")
	ErrDeserializationFailure = errors.New("engine: deserialization failure")
	ErrCorruptSlot            = errors.New("engine: corrupt slot state")
	ErrEngineClosed           = errors.New("engine: closed")
	ErrReadOnly               = errors.New("engine: read-only")
)
