package defs

import (
	"time"
)

var (
	// SinkConnectionTimeout is for establishing a TCP connection to the source
	SinkConnectionTimeout = 60 * time.Second

	// SinkReconnectDelay is the default pause between reconnection attempts
	//
	// Used when the sink configuration leaves reconnectDelay unspecified
	SinkReconnectDelay = 500 * time.Millisecond

	// SinkMinBufferSize is the default capacity in bytes of the receive buffer, and the hint
	// for the TCP receive buffer of the sink socket
	//
	// The value must be large enough to hold a frame header plus the look-ahead of the next header;
	// excerpts larger than the buffer are streamed to the journal appender in buffer-sized steps
	SinkMinBufferSize = 256 * 1024
)

// For testing and experiments
const (
	TestReadTimeout = 5 * time.Second
)

// EnableTestMode turns on test mode with very short timeout and minimal retry delay
func EnableTestMode() {
	SinkConnectionTimeout = 1 * time.Second
	SinkReconnectDelay = 20 * time.Millisecond
}
