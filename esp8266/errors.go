package esp8266

import "errors"

var (
	// ErrNoDialer is returned when a Driver is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the module.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrInvalidTimeout is returned by ConfigBuilder.Build when the response
	// timeout is shorter than the per-read timeout, or either is not
	// positive.
	ErrInvalidTimeout = errors.New("response timeout must be at least the read timeout")

	// ErrNotInitialized is returned when the Dialer succeeded but produced
	// no Transport.
	ErrNotInitialized = errors.New("driver not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Driver that has
	// already been closed.
	ErrAlreadyClosed = errors.New("driver already closed")

	// errEmbeddedTerminator marks commands that would be split into several
	// lines on the wire. It never reaches callers, only the log.
	errEmbeddedTerminator = errors.New("command contains a line terminator")
)
