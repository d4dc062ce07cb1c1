package port

import (
	"context"
	"encoding/json"
)

// TransportHandler receives lifecycle and inbound events from a Transport.
// Calls are made serially from the transport's read goroutine; handlers must not block for long.
type TransportHandler interface {
	OnConnected(sid string)
	OnReconnecting(attempt int)
	OnReconnected(sid string, attempt int)
	OnDisconnected(reason string)
	OnError(err error)
	OnReconnectError(err error)
	// OnReconnectFailed fires once when the attempt budget is spent; the transport stops afterwards.
	OnReconnectFailed()
	// OnStopped fires once when the transport ends on its own with reconnection disabled.
	OnStopped()
	OnEvent(name string, args json.RawMessage)
}

// Transport is a bidirectional event channel with built-in reconnection.
type Transport interface {
	// Connect starts the connection loop in the background and returns immediately.
	Connect(ctx context.Context, h TransportHandler) error
	Emit(ctx context.Context, event string, payload any) error
	// ID is the server-assigned session id of the live connection, empty when disconnected.
	ID() string
	Close() error
}
