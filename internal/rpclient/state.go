package rpclient

// State — состояние соединения.
//
//	Disconnected → Connecting → Connected → Reconnecting → Connecting → Connected
//	                                      ↘ Disconnected (без автореконнекта)
//	любое → Closed (Cancel или исчерпаны попытки реконнекта)
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// canConnect — Connect допустим только из этих состояний.
func (s State) canConnect() bool {
	return s == StateDisconnected || s == StateClosed
}
