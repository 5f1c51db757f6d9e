// Package transport defines the persistent connection the notification
// client reads from. Implementations live in subpackages.
package transport

import "context"

// Control frame types. Notification payloads never carry a type field.
const (
	TypePing  = "ping"
	TypePong  = "pong"
	TypeAck   = "ack"
	TypeError = "error"
)

var (
	PingFrame = []byte(`{"type":"ping"}`)
	PongFrame = []byte(`{"type":"pong"}`)
)

// Dialer opens a connection authenticated with token. Authentication
// rejections must wrap errors.Unauthenticated so callers can tell them apart
// from plain network failures.
type Dialer interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// Conn is one established connection. Read is called from a single
// goroutine; Ping and Close may be called concurrently with it. Close
// unblocks a pending Read.
type Conn interface {
	Read() ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, token string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, token string) (Conn, error) {
	return f(ctx, token)
}
