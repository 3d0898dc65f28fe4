package interfaces

// Conn is an opaque handle to one live network channel. The core only ever
// writes to it, closes it, and compares it for identity; transport details
// stay in internal/websocket.
type Conn interface {
	// WriteJSON serializes v and queues it for delivery to the peer.
	WriteJSON(v interface{}) error

	// Close terminates the connection. Safe to call more than once.
	Close() error
}
