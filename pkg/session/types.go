package session

import "fmt"

// ID is a session identifier: monotonically increasing, never reused
// within a process lifetime, starting at 1.
type ID uint32

func (id ID) String() string {
	return fmt.Sprintf("session-%d", uint32(id))
}

// Mode selects which kind of socket create_client_or_server produces.
type Mode int

const (
	// ModeRtspClient dials remote_host:remote_port over TCP and marks the
	// connection as RTSP-framed.
	ModeRtspClient Mode = iota
	// ModeRtspServer binds+listens on local_addr:local_port for RTSP
	// clients.
	ModeRtspServer
	// ModeTCPDatagramPassive binds+listens for length-prefixed TCP peers.
	ModeTCPDatagramPassive
	// ModeTCPDatagramActive dials a length-prefixed TCP peer.
	ModeTCPDatagramActive
	// ModeUDP creates a UDP socket, optionally connect()ed to a default
	// peer.
	ModeUDP
)

func (m Mode) String() string {
	switch m {
	case ModeRtspClient:
		return "RtspClient"
	case ModeRtspServer:
		return "RtspServer"
	case ModeTCPDatagramPassive:
		return "TcpDatagramPassive"
	case ModeTCPDatagramActive:
		return "TcpDatagramActive"
	case ModeUDP:
		return "Udp"
	default:
		return "Unknown"
	}
}

// State is one of the five externally visible session states.
type State string

const (
	StateConnecting            State = "connecting"
	StateConnected             State = "connected"
	StateListeningRtsp         State = "listening_rtsp"
	StateListeningTCPDatagrams State = "listening_tcp_datagrams"
	StateDatagram              State = "datagram"
	// stateFailed is a terminal state used internally by the FSM when a
	// Connecting session's connect() completes with a pending error;
	// it is not part of the public state vocabulary but is
	// needed to make the FSM's transition table exhaustive.
	stateFailed State = "failed"
)

// NotificationReason identifies which of the six notification shapes
// a Notification carries; only the fields relevant to that reason are
// populated.
type NotificationReason int

const (
	ReasonClientConnected NotificationReason = iota
	ReasonConnected
	ReasonData
	ReasonBinaryData
	ReasonDatagram
	ReasonError
)

func (r NotificationReason) String() string {
	switch r {
	case ReasonClientConnected:
		return "ClientConnected"
	case ReasonConnected:
		return "Connected"
	case ReasonData:
		return "Data"
	case ReasonBinaryData:
		return "BinaryData"
	case ReasonDatagram:
		return "Datagram"
	case ReasonError:
		return "Error"
	default:
		return "Unknown"
	}
}
