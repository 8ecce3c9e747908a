//go:build linux || darwin

package session

import "encoding/binary"

// Every control-API method below is safe to call from any goroutine:
// each acquires e.mu, performs its mutation against the
// session map, and pokes the wake pipe so the I/O thread re-evaluates
// its readiness set on the next iteration. Grounded on the Dialog
// type's RWMutex-guarded accessor pattern in pkg/dialog/dialog.go,
// adapted from a single dialog's fields to a whole session map.

// CreateRtspClient dials host:port over TCP, framed as RTSP.
func (e *Engine) CreateRtspClient(host string, port int, tmpl Template) (ID, error) {
	return e.createSession(createParams{
		Mode: ModeRtspClient, RemoteHost: host, RemotePort: port,
	}, tmpl)
}

// CreateRtspServer binds and listens
// on localAddr:localPort for RTSP clients.
func (e *Engine) CreateRtspServer(localAddr string, localPort int, tmpl Template) (ID, error) {
	return e.createSession(createParams{
		Mode: ModeRtspServer, LocalAddr: localAddr, LocalPort: localPort,
	}, tmpl)
}

// CreateTCPDatagramSession creates a length-prefixed TCP session: active
// selects dialing remoteHost:remotePort; passive selects binding and
// listening on localAddr:localPort.
func (e *Engine) CreateTCPDatagramSession(active bool, localAddr string, localPort int, remoteHost string, remotePort int, tmpl Template) (ID, error) {
	mode := ModeTCPDatagramPassive
	if active {
		mode = ModeTCPDatagramActive
	}
	return e.createSession(createParams{
		Mode: mode, LocalAddr: localAddr, LocalPort: localPort,
		RemoteHost: remoteHost, RemotePort: remotePort,
	}, tmpl)
}

// CreateUDPSession creates a UDP socket. remoteHost may be
// empty, in which case the socket is left unconnected until
// ConnectUDPSession is called.
func (e *Engine) CreateUDPSession(localAddr string, localPort int, remoteHost string, remotePort int, tmpl Template) (ID, error) {
	return e.createSession(createParams{
		Mode: ModeUDP, LocalAddr: localAddr, LocalPort: localPort,
		RemoteHost: remoteHost, RemotePort: remotePort,
	}, tmpl)
}

// createSession is the shared body of every create_* control-API call:
// resolve+build the socket (which may block on hostname resolution,
// but happens outside e.mu since the engine cannot be mutating its poll
// set concurrently), then insert it under the engine lock and poke the
// wake pipe.
func (e *Engine) createSession(p createParams, tmpl Template) (ID, error) {
	if !e.isRunning() {
		return 0, ErrEngineNotStarted
	}

	created, err := createSocket(p)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	id := e.allocID()
	s := newSession(id, created.FD, p.Mode, created.State, created.IsRTSP, tmpl)
	s.local = created.Local
	s.remote = created.Remote
	s.hasDefaultPeer = created.HasPeer
	e.insertLocked(s)
	wake := e.wake
	e.mu.Unlock()

	observeSessionCreated(p.Mode)
	if wake != nil {
		wake.poke()
	}
	return id, nil
}

// ConnectUDPSession implements connect_udp_session: sets a
// default peer on an existing Datagram session so send_request can use
// send() instead of requiring an explicit destination per call.
func (e *Engine) ConnectUDPSession(id ID, host string, port int) error {
	e.mu.Lock()
	s, ok := e.sessions[id]
	if !ok {
		e.mu.Unlock()
		return ErrSessionNotFound
	}
	if s.State() != StateDatagram {
		e.mu.Unlock()
		return ErrNotDatagram
	}
	e.mu.Unlock()

	ip, err := resolveIPv4(host)
	if err != nil {
		return newError("connect_udp_session", 0, "%v", err)
	}
	if err := connectAddr(s.fd, ip, port); err != nil {
		return newError("connect_udp_session", -errnoOf(err), "connect: %v", err)
	}

	e.mu.Lock()
	s.remote = remoteEndpoint(s.fd)
	s.hasDefaultPeer = true
	wake := e.wake
	e.mu.Unlock()

	if wake != nil {
		wake.poke()
	}
	return nil
}

// SendRequest implements send_request: the framing applied to
// payload depends on the target session's kind.
func (e *Engine) SendRequest(id ID, payload []byte) error {
	e.mu.Lock()
	wake := e.wake
	defer func() {
		e.mu.Unlock()
		if wake != nil {
			wake.poke()
		}
	}()

	s, ok := e.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	switch s.State() {
	case StateDatagram:
		buf := append([]byte(nil), payload...)
		s.outDatagrams = append(s.outDatagrams, outDatagram{bytes: buf})

	case StateConnected:
		if s.isRTSPConnection {
			s.outBuf = append(s.outBuf, payload...)
			return nil
		}
		if len(payload) > 0xffff {
			return ErrPayloadTooLarge
		}
		var header [2]byte
		binary.BigEndian.PutUint16(header[:], uint16(len(payload)))
		s.outBuf = append(s.outBuf, header[:]...)
		s.outBuf = append(s.outBuf, payload...)

	default:
		return newError("send_request", 0, "session %s is not writable (state=%s)", id, s.State())
	}

	return nil
}

// DestroySession implements destroy_session: remove the session
// from the map, closing its socket exactly once. Idempotent: a second
// call for the same id returns ErrSessionNotFound.
func (e *Engine) DestroySession(id ID) error {
	e.mu.Lock()
	removed := e.removeLocked(id)
	e.mu.Unlock()

	if !removed {
		return ErrSessionNotFound
	}
	observeSessionDestroyed()
	if e.wake != nil {
		e.wake.poke()
	}
	return nil
}

// State returns the current state of a session, or an error if id is
// unknown. Exposed mainly for tests and diagnostics; the control API
// itself never needs to poll state, since transitions are surfaced as
// notifications.
func (e *Engine) State(id ID) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return "", ErrSessionNotFound
	}
	return s.State(), nil
}

// LocalAddr returns the local endpoint a session is bound to, useful
// when a create call was given an ephemeral port (0) and the caller
// needs to know which port the kernel actually assigned.
func (e *Engine) LocalAddr(id ID) (Endpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return Endpoint{}, ErrSessionNotFound
	}
	return s.local, nil
}
