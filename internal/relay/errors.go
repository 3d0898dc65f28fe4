package relay

import "errors"

var (
	ErrRelayAlreadyRunning = errors.New("relay is already running")
	ErrRelayNotRunning     = errors.New("relay is not running")
	ErrInvalidFrame        = errors.New("invalid event frame")
	ErrEventChannelFull    = errors.New("event channel full")
)
