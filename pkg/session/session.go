package session

import (
	"github.com/looplab/fsm"
)

// Endpoint is an IPv4 dotted-quad address and port.
type Endpoint struct {
	IP   string
	Port int
}

// Session is a single engine-managed network endpoint: identity, socket,
// state, framing mode, buffers and a notification sink.
//
// Once inserted into the engine's session map, a Session is mutated only
// under the engine lock: by the I/O thread, and by the control API's
// SendRequest (outbound buffers) and ConnectUDPSession (default peer).
type Session struct {
	id       ID
	fd       int
	mode     Mode
	template Template

	sm *fsm.FSM

	// isRTSPConnection selects the stream framing discipline:
	// true -> RTSP message + $-interleaved binary; false -> 16-bit
	// length-prefixed frames. Meaningless for listeners and datagrams.
	isRTSPConnection bool

	local  Endpoint
	remote Endpoint

	// hasDefaultPeer is set once connect_udp_session (or Udp creation
	// with a remote host) has bound a default destination for send(),
	// mirroring the source's optional connect() on a UDP socket.
	hasDefaultPeer bool

	// Ровно один из исходящих буферов активен в зависимости от
	// режима сессии: outDatagrams для Datagram-сессий, outBuf иначе.
	inBuf  []byte
	outBuf []byte

	outDatagrams []outDatagram

	sawReceiveFailure bool
	sawSendFailure    bool

	// sawParseError remembers whether the last RTSP decode attempt on
	// this connection failed, purely for diagnostics; the leniency flag
	// passed into the message parser itself comes from the current
	// recv()'s error status, not from this field.
	sawParseError bool
}

// outDatagram is one queued outbound UDP payload. A Datagram
// session always sends via the connected socket (send(), not sendto()),
// mirroring the source's writeMore(): a Udp session with no default peer
// set by create_udp_session/connect_udp_session simply fails to send,
// surfaced the same way any other send errno would be.
type outDatagram struct {
	bytes []byte
}

func newSession(id ID, fd int, mode Mode, initial State, isRTSP bool, tmpl Template) *Session {
	s := &Session{
		id:               id,
		fd:               fd,
		mode:             mode,
		template:         tmpl,
		isRTSPConnection: isRTSP,
	}
	s.sm = newSessionFSM(initial, s.onStateTransition)
	return s
}

// State returns the session's current state.
func (s *Session) State() State { return State(s.sm.Current()) }

// ID returns the session's stable identifier.
func (s *Session) ID() ID { return s.id }

// FD returns the raw file descriptor, exposed for the readiness loop and
// for tests that need to poke the socket directly.
func (s *Session) FD() int { return s.fd }

func (s *Session) onStateTransition(from, to State) {
	logDebug(bgctx, "session state transition", logSession(s.id), "from", from, "to", to)
	if to == StateConnected {
		s.template.post(ReasonConnected, s.id, nil)
	}
}

// wantsRead reports true iff no receive failure has been seen
// and the session is not in Connecting (a connecting socket only ever
// requests write-readiness to detect connect completion).
func (s *Session) wantsRead() bool {
	return !s.sawReceiveFailure && s.State() != StateConnecting
}

// wantsWrite reports true iff no send failure has been seen and the
// session's current state has something queued to write (or is
// Connecting, which always wants write-readiness to detect completion).
func (s *Session) wantsWrite() bool {
	if s.sawSendFailure {
		return false
	}
	switch s.State() {
	case StateConnecting:
		return true
	case StateConnected:
		return len(s.outBuf) > 0
	case StateDatagram:
		return len(s.outDatagrams) > 0
	default:
		return false
	}
}

// isListener reports whether read-readiness on this session means
// "accept a child" rather than "decode a frame".
func (s *Session) isListener() bool {
	switch s.State() {
	case StateListeningRtsp, StateListeningTCPDatagrams:
		return true
	default:
		return false
	}
}

func (s *Session) markReceiveFailure() { s.sawReceiveFailure = true }
func (s *Session) markSendFailure()    { s.sawSendFailure = true }
