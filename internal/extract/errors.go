package extract

import "errors"

var (
	// ErrUnreadable marks a file that could not be read or decoded.
	ErrUnreadable = errors.New("unreadable document")

	// ErrUnsupportedFormat marks a file extension the loader does not handle.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)
