package codec

import "errors"

var (
	// ErrBounds is returned when a read or write would run past the end of the frame.
	ErrBounds = errors.New("codec: out of frame bounds")

	// ErrProtocol marks a frame that is well-sized but not well-formed:
	// unknown Any tag, negative length, duplicate dict key, leftover bytes.
	ErrProtocol = errors.New("codec: protocol integrity violation")

	// ErrValue is returned by writers handed a Go value of the wrong shape.
	ErrValue = errors.New("codec: value does not match descriptor")
)
