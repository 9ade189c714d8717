//////////////////////////////////////////////////////////////////////////////
//
// Stream errors
//
//////////////////////////////////////////////////////////////////////////////

package stream

import "errors"

var (
	ErrInvalidResolution     = errors.New("invalid resolution")
	ErrInvalidFPS            = errors.New("fps out of range")
	ErrNonMonotonicTimestamp = errors.New("timestamp not after previous frame")
	ErrEmptyFrame            = errors.New("empty frame")
	ErrUnknownStreamType     = errors.New("unknown stream type")

	// Not a failure: the slot has never been written, so there is nothing to
	// serve or capture.
	ErrNoFrameAvailable = errors.New("no frame available")

	ErrNoSnapshotSink = errors.New("no snapshot sink configured")
)
