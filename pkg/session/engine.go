//go:build linux || darwin

package session

import (
	"sync"

	"golang.org/x/sys/unix"
)

// wakeSentinel is the pseudo session-ID slot buildPollSet reserves for
// the wake pipe's read end, so the dispatch loop below can tell it
// apart from real sessions (whose IDs start at 1) without a second
// slice.
const wakeSentinel ID = 0

// Engine is the I/O thread plus the shared state the control API
// mutates: a session map, an insertion-order list
// used to reproduce the source's reverse-iteration dispatch order, a
// monotonically increasing ID counter, and the self-pipe. Grounded on
// the Start/Stop/mutex/WaitGroup idiom of pkg/rtp/session.go's Session
// type, generalized from one RTP session to a dynamic session set.
type Engine struct {
	mu       sync.Mutex
	sessions map[ID]*Session
	order    []ID
	nextID   ID

	wake    *wakePipe
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewEngine constructs an idle Engine; Start spawns its I/O thread.
func NewEngine() *Engine {
	return &Engine{
		sessions: make(map[ID]*Session),
		nextID:   1,
	}
}

// Start creates the wake pipe and spawns the I/O thread. Idempotent:
// calling Start twice returns ErrEngineAlreadyUp.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrEngineAlreadyUp
	}

	wp, err := newWakePipe()
	if err != nil {
		return err
	}

	e.wake = wp
	e.stopCh = make(chan struct{})
	e.running = true
	e.wg.Add(1)
	go e.loop()
	return nil
}

// Stop signals the I/O thread to exit, wakes it, and joins it before
// closing every remaining session's socket. Idempotent: calling Stop on
// a non-running engine returns ErrEngineNotStarted.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrEngineNotStarted
	}
	close(e.stopCh)
	e.wake.poke()
	e.mu.Unlock()

	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range e.order {
		if s, ok := e.sessions[id]; ok {
			unix.Close(s.fd)
		}
	}
	e.sessions = make(map[ID]*Session)
	e.order = nil
	e.wake.close()
	e.wake = nil
	e.running = false
	return nil
}

// isRunning reports whether the I/O thread is up, used by the control
// API to reject mutations against a stopped engine.
func (e *Engine) isRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// allocID hands out the next session identifier; the caller must
// already hold e.mu.
func (e *Engine) allocID() ID {
	id := e.nextID
	e.nextID++
	return id
}

// insertLocked adds a freshly constructed session to the map and the
// iteration-order list. The caller must hold e.mu.
func (e *Engine) insertLocked(s *Session) {
	e.sessions[s.id] = s
	e.order = append(e.order, s.id)
}

// removeLocked drops a session from the map and iteration-order list
// and closes its socket exactly once. The caller must
// hold e.mu.
func (e *Engine) removeLocked(id ID) bool {
	s, ok := e.sessions[id]
	if !ok {
		return false
	}
	delete(e.sessions, id)
	for i, oid := range e.order {
		if oid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	unix.Close(s.fd)
	return true
}

// buildPollSet snapshots the session map into a pollfd array under the
// engine lock: the wake pipe's read end is always slot 0,
// followed by every session that currently wants read and/or write
// readiness, in insertion order.
func (e *Engine) buildPollSet() ([]unix.PollFd, []ID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fds := make([]unix.PollFd, 0, len(e.order)+1)
	ids := make([]ID, 0, len(e.order)+1)

	fds = append(fds, unix.PollFd{Fd: int32(e.wake.readFD), Events: unix.POLLIN})
	ids = append(ids, wakeSentinel)

	for _, id := range e.order {
		s, ok := e.sessions[id]
		if !ok {
			continue
		}

		var events int16
		if s.wantsRead() {
			events |= unix.POLLIN
		}
		if s.wantsWrite() {
			events |= unix.POLLOUT
		}
		if events == 0 {
			continue
		}

		fds = append(fds, unix.PollFd{Fd: int32(s.fd), Events: events})
		ids = append(ids, id)
	}

	return fds, ids
}

// loop is the I/O thread body: build the poll set, block with no
// timeout, drain the wake pipe if it fired, then dispatch readiness in
// reverse order over the snapshot taken at the top of the iteration.
func (e *Engine) loop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		fds, ids := e.buildPollSet()

		_, err := unix.Poll(fds, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			logError(bgctx, "poll failed", "err", err)
			continue
		}

		select {
		case <-e.stopCh:
			return
		default:
		}

		if fds[0].Revents&unix.POLLIN != 0 {
			e.wake.drainOne()
		}

		e.dispatch(fds, ids)
	}
}

// dispatch re-acquires the lock, walks the
// snapshot in reverse (index 0 is the wake pipe and is skipped), reads
// or writes each ready session, then drains accepted children into the
// map only after the walk completes.
func (e *Engine) dispatch(fds []unix.PollFd, ids []ID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var pending []*Session

	for i := len(ids) - 1; i >= 1; i-- {
		revents := fds[i].Revents
		if revents == 0 {
			continue
		}

		s, ok := e.sessions[ids[i]]
		if !ok {
			continue
		}

		// poll() sets POLLERR/POLLHUP in revents regardless of the
		// requested Events, so a Connecting session (POLLOUT only) must
		// still be excluded here explicitly; otherwise a failed
		// non-blocking connect's POLLERR would route through
		// handleReadable and consume SO_ERROR before completeConnect
		// sees it.
		if revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 && (s.wantsRead() || s.isListener()) {
			e.handleReadable(s, &pending)
		}
		if revents&unix.POLLOUT != 0 {
			e.handleWritable(s)
		}
	}

	for _, child := range pending {
		e.insertLocked(child)
		logDebug(bgctx, "accepted child session", logSession(child.id), "parent_mode", child.mode)
	}
}

// handleReadable dispatches one session's read-readiness:
// listeners accept, Datagram sessions drain to EAGAIN, everything else
// does a single scratch-buffer recv and decodes.
func (e *Engine) handleReadable(s *Session, pending *[]*Session) {
	if s.isListener() {
		e.acceptChild(s, pending)
		return
	}
	if s.State() == StateDatagram {
		e.readDatagrams(s)
		return
	}
	e.readStream(s)
}

// acceptChild implements the listener read-readiness branch. The source
// accepts at most one client per readiness notification (it relies on
// the next readiness wait to pick up any others still queued in the
// kernel's backlog), so this does the same rather than looping to
// EAGAIN.
func (e *Engine) acceptChild(s *Session, pending *[]*Session) {
	childFD, remote, err := acceptNonBlocking(s.fd)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		logWarn(bgctx, "accept failed", logSession(s.id), "err", err)
		return
	}

	isRTSP := s.State() == StateListeningRtsp
	child := newSession(e.allocID(), childFD, s.mode, StateConnected, isRTSP, s.template)
	child.local = localEndpoint(childFD)
	child.remote = remote

	child.template.post(ReasonClientConnected, child.id, func(n *Notification) {
		n.ServerIP = child.local.IP
		n.ServerPort = child.local.Port
		n.ClientIP = child.remote.IP
		n.ClientPort = child.remote.Port
	})

	*pending = append(*pending, child)
}

// readStream implements the stream-session read path: a single
// 512-byte recv, appended to the inbound buffer, then decoded. The
// decode runs before the error notification is posted so
// that any complete frames already sitting in the buffer are delivered
// even on a read that ends in EOF or an error, matching the source's
// readMore().
func (e *Engine) readStream(s *Session) {
	var buf [512]byte
	n, err := readRetryEINTR(s.fd, buf[:])

	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return
	}

	switch {
	case err == nil && n == 0:
		err = unix.ECONNRESET
	case err == nil:
		s.inBuf = append(s.inBuf, buf[:n]...)
		observeBytes(false, n)
	}

	decodeStream(s, err != nil)

	if err != nil {
		s.markReceiveFailure()
		observeIOError(false)
		s.template.post(ReasonError, s.id, func(no *Notification) {
			no.Send = false
			no.Err = -errnoOf(err)
			no.Detail = err.Error()
		})
	}
}

// readDatagrams implements the Datagram-session read path: drain
// recvfrom() to EAGAIN, framing each datagram independently.
func (e *Engine) readDatagrams(s *Session) {
	buf := make([]byte, maxUDPDatagram)
	for {
		n, from, err := recvfromNonBlocking(s.fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		if err != nil {
			s.markReceiveFailure()
			observeIOError(false)
			s.template.post(ReasonError, s.id, func(no *Notification) {
				no.Send = false
				no.Err = -errnoOf(err)
				no.Detail = err.Error()
			})
			return
		}
		observeBytes(false, n)
		postInboundDatagram(s, buf[:n], from)
	}
}

// handleWritable dispatches one session's write-readiness.
func (e *Engine) handleWritable(s *Session) {
	switch s.State() {
	case StateConnecting:
		e.completeConnect(s)
	case StateDatagram:
		e.writeDatagrams(s)
	case StateConnected:
		e.writeStream(s)
	}
}

// completeConnect implements the Connecting write-readiness branch: read
// SO_ERROR, transition to Connected on success or terminal failure
// otherwise.
func (e *Engine) completeConnect(s *Session) {
	if err := socketError(s.fd); err != nil {
		s.markSendFailure()
		observeIOError(true)
		_ = s.sm.Event(bgctx, evConnectFail)
		s.template.post(ReasonError, s.id, func(no *Notification) {
			no.Send = true
			no.Err = -errnoOf(err)
			no.Detail = err.Error()
		})
		return
	}

	s.local = localEndpoint(s.fd)
	s.remote = remoteEndpoint(s.fd)
	_ = s.sm.Event(bgctx, evConnectOK)
}

// writeStream implements the Connected/stream write path: one send
// of the whole outbound buffer, erasing the sent prefix.
func (e *Engine) writeStream(s *Session) {
	if len(s.outBuf) == 0 {
		return
	}

	n, err := writeRetryEINTR(s.fd, s.outBuf)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return
	}
	if err == nil && n == 0 {
		err = unix.ECONNRESET
	}
	if err != nil {
		s.markSendFailure()
		observeIOError(true)
		s.template.post(ReasonError, s.id, func(no *Notification) {
			no.Send = true
			no.Err = -errnoOf(err)
			no.Detail = err.Error()
		})
		return
	}

	observeBytes(true, n)
	s.outBuf = s.outBuf[n:]
}

// writeDatagrams implements the Datagram write path: pop the
// outbound queue head, RTP-stamp it if applicable, send, repeat until
// EAGAIN or the queue drains.
func (e *Engine) writeDatagrams(s *Session) {
	for len(s.outDatagrams) > 0 {
		head := s.outDatagrams[0].bytes
		stampRTPEgress(head)

		n, err := writeRetryEINTR(s.fd, head)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		if err == nil && n == 0 {
			err = unix.ECONNRESET
		}
		if err != nil {
			s.markSendFailure()
			observeIOError(true)
			s.template.post(ReasonError, s.id, func(no *Notification) {
				no.Send = true
				no.Err = -errnoOf(err)
				no.Detail = err.Error()
			})
			return
		}

		observeBytes(true, n)
		s.outDatagrams = s.outDatagrams[1:]
	}
}
