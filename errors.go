package webcodecs

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrInvalidState is returned when an operation is attempted in a
	// session state that forbids it (encode before configure, anything
	// after close, use of a closed frame). Always synchronous; never
	// routed to the error callback.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotSupported is returned by Configure when no viable codec
	// implementation exists for the requested configuration.
	ErrNotSupported = errors.New("configuration not supported")

	// ErrCodecNotFound is returned when the codec runtime has no
	// implementation registered under any candidate name.
	ErrCodecNotFound = errors.New("codec not found")

	// ErrRuntimeUnavailable is returned when the libav shared libraries
	// could not be loaded.
	ErrRuntimeUnavailable = errors.New("libav runtime unavailable")

	// ErrKeyChunkRequired is returned by Decode when the stream position
	// requires a key chunk (after Configure or Flush) and a delta chunk
	// was submitted.
	ErrKeyChunkRequired = errors.New("key chunk required")
)

// CodecError reports a per-unit encode/decode failure. It is delivered
// through the session's Error callback and does not close the session;
// subsequent units may still succeed.
type CodecError struct {
	Op  string // "encode", "decode", "convert"
	Msg string
	Err error
}

func (e *CodecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *CodecError) Unwrap() error { return e.Err }
