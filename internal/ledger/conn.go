package ledger

import "context"

// StreamHandler receives every unsolicited message pushed by the node.
type StreamHandler func(data []byte)

type Conn interface {
	Request(ctx context.Context, command string, params map[string]any) (map[string]any, error)
	// Done is closed once the session is no longer usable.
	Done() <-chan struct{}
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, address string, onStream StreamHandler) (Conn, error)
}
