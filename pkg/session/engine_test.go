//go:build linux || darwin

package session

import (
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/arzzra/wfdsession/internal/rtspmsg"
)

func waitNotification(t *testing.T, ch <-chan *Notification, reason NotificationReason) *Notification {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-ch:
			if n.Reason == reason {
				return n
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s notification", reason)
		}
	}
}

// TestEndToEndRTSPAcceptAndMessage covers accept, then
// deliver a parsed RTSP message with the client's CSeq.
func TestEndToEndRTSPAcceptAndMessage(t *testing.T) {
	eng := NewEngine()
	require.NoError(t, eng.Start())
	defer eng.Stop()

	notifCh := make(chan *Notification, 16)
	serverID, err := eng.CreateRtspServer("127.0.0.1", 0, Template{
		Sink: PosterFunc(func(n *Notification) { notifCh <- n }),
	})
	require.NoError(t, err)

	local, err := eng.LocalAddr(serverID)
	require.NoError(t, err)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", local.Port))
	require.NoError(t, err)
	defer conn.Close()

	connected := waitNotification(t, notifCh, ReasonClientConnected)
	assert.Equal(t, local.Port, connected.ServerPort)
	assert.NotZero(t, connected.ClientPort)

	_, err = conn.Write([]byte("OPTIONS * RTSP/1.0\r\nCSeq: 1\r\n\r\n"))
	require.NoError(t, err)

	data := waitNotification(t, notifCh, ReasonData)
	assert.Equal(t, connected.SessionID, data.SessionID)
	msg, ok := data.Message.(*rtspmsg.Message)
	require.True(t, ok)
	assert.Equal(t, 1, msg.CSeq())
}

// TestEndToEndInterleavedBinary covers an interleaved binary frame
// arriving on an RTSP connection.
func TestEndToEndInterleavedBinary(t *testing.T) {
	eng := NewEngine()
	require.NoError(t, eng.Start())
	defer eng.Stop()

	notifCh := make(chan *Notification, 16)
	serverID, err := eng.CreateRtspServer("127.0.0.1", 0, Template{
		Sink: PosterFunc(func(n *Notification) { notifCh <- n }),
	})
	require.NoError(t, err)

	local, err := eng.LocalAddr(serverID)
	require.NoError(t, err)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", local.Port))
	require.NoError(t, err)
	defer conn.Close()

	waitNotification(t, notifCh, ReasonClientConnected)

	_, err = conn.Write([]byte{'$', 0x00, 0x00, 0x04, 'A', 'B', 'C', 'D'})
	require.NoError(t, err)

	bin := waitNotification(t, notifCh, ReasonBinaryData)
	assert.Equal(t, byte(0), bin.Channel)
	assert.Equal(t, "ABCD", string(bin.Data.Bytes))
}

// TestEndToEndConnectionRefused covers a client connect against a port
// with no listener.
func TestEndToEndConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	eng := NewEngine()
	require.NoError(t, eng.Start())
	defer eng.Stop()

	notifCh := make(chan *Notification, 4)
	_, err = eng.CreateRtspClient("127.0.0.1", port, Template{
		Sink: PosterFunc(func(n *Notification) { notifCh <- n }),
	})
	require.NoError(t, err)

	n := waitNotification(t, notifCh, ReasonError)
	assert.True(t, n.Send)
	assert.Equal(t, -int(unix.ECONNREFUSED), n.Err)
}

// TestSendRequestLengthPrefixEncoding is 's "on-wire byte sequence
// equals [size>>8, size&0xff, payload...]" invariant, exercised via an
// active TcpDatagram session against a plain net.Listener peer.
func TestSendRequestLengthPrefixEncoding(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptedCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		acceptedCh <- c
	}()

	eng := NewEngine()
	require.NoError(t, eng.Start())
	defer eng.Stop()

	port := ln.Addr().(*net.TCPAddr).Port
	id, err := eng.CreateTCPDatagramSession(true, "", 0, "127.0.0.1", port, Template{})
	require.NoError(t, err)

	var conn net.Conn
	select {
	case conn = <-acceptedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
	defer conn.Close()

	require.Eventually(t, func() bool {
		st, _ := eng.State(id)
		return st == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, eng.SendRequest(id, []byte("hello")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 7)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x05}, buf[:2])
	assert.Equal(t, "hello", string(buf[2:]))
}

// TestSendRequestPayloadTooLarge covers the boundary "65536 is
// rejected" for length-prefixed framing.
func TestSendRequestPayloadTooLarge(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, _ := ln.Accept()
		if c != nil {
			defer c.Close()
		}
	}()

	eng := NewEngine()
	require.NoError(t, eng.Start())
	defer eng.Stop()

	port := ln.Addr().(*net.TCPAddr).Port
	id, err := eng.CreateTCPDatagramSession(true, "", 0, "127.0.0.1", port, Template{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, _ := eng.State(id)
		return st == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	err = eng.SendRequest(id, make([]byte, 65536))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

// TestSessionIDsMonotonic covers the invariant that session IDs are unique and strictly
// monotonically increasing in creation order.
func TestSessionIDsMonotonic(t *testing.T) {
	eng := NewEngine()
	require.NoError(t, eng.Start())
	defer eng.Stop()

	var prev ID
	for i := 0; i < 5; i++ {
		id, err := eng.CreateRtspServer("127.0.0.1", 0, Template{})
		require.NoError(t, err)
		if i > 0 {
			assert.Greater(t, id, prev)
		}
		prev = id
	}
}

// TestDestroySessionIdempotent covers the round-trip property that a second
// destroy_session for the same id returns not-found.
func TestDestroySessionIdempotent(t *testing.T) {
	eng := NewEngine()
	require.NoError(t, eng.Start())
	defer eng.Stop()

	id, err := eng.CreateRtspServer("127.0.0.1", 0, Template{})
	require.NoError(t, err)

	require.NoError(t, eng.DestroySession(id))
	assert.ErrorIs(t, eng.DestroySession(id), ErrSessionNotFound)
}

func TestCreateBeforeStartFails(t *testing.T) {
	eng := NewEngine()
	_, err := eng.CreateRtspServer("127.0.0.1", 0, Template{})
	assert.ErrorIs(t, err, ErrEngineNotStarted)
}

func TestStartTwiceFails(t *testing.T) {
	eng := NewEngine()
	require.NoError(t, eng.Start())
	defer eng.Stop()
	assert.ErrorIs(t, eng.Start(), ErrEngineAlreadyUp)
}
