package model

type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateReconnecting ConnectionState = "reconnecting"
	ConnectionStateClosed       ConnectionState = "closed"
)

// ConnectionStates lists every state, in lifecycle order.
var ConnectionStates = []ConnectionState{
	ConnectionStateDisconnected,
	ConnectionStateConnecting,
	ConnectionStateConnected,
	ConnectionStateReconnecting,
	ConnectionStateClosed,
}

// ConnectionStatus is the connection state plus the failure flag raised when
// the retry policy gives up.
type ConnectionStatus struct {
	State  ConnectionState `json:"state"`
	Failed bool            `json:"failed"`
}

func (s ConnectionStatus) IsConnected() bool {
	return s.State == ConnectionStateConnected
}
