package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWantsReadWriteConnecting(t *testing.T) {
	s := newSession(1, -1, ModeRtspClient, StateConnecting, true, Template{})
	assert.False(t, s.wantsRead())
	assert.True(t, s.wantsWrite())
}

func TestWantsReadWriteConnectedIdle(t *testing.T) {
	s := newSession(1, -1, ModeRtspClient, StateConnected, true, Template{})
	assert.True(t, s.wantsRead())
	assert.False(t, s.wantsWrite())

	s.outBuf = []byte("x")
	assert.True(t, s.wantsWrite())
}

func TestWantsReadWriteDatagram(t *testing.T) {
	s := newSession(1, -1, ModeUDP, StateDatagram, false, Template{})
	assert.True(t, s.wantsRead())
	assert.False(t, s.wantsWrite())

	s.outDatagrams = append(s.outDatagrams, outDatagram{bytes: []byte("x")})
	assert.True(t, s.wantsWrite())
}

func TestWantsReadWriteListener(t *testing.T) {
	s := newSession(1, -1, ModeRtspServer, StateListeningRtsp, true, Template{})
	assert.True(t, s.wantsRead())
	assert.False(t, s.wantsWrite())
	assert.True(t, s.isListener())
}

// TestStickyFailuresSuppressReadiness covers the invariant that a sticky
// failure permanently suppresses readiness:
// saw_send_failure ⇒ ¬wants_to_write and saw_receive_failure ⇒
// ¬wants_to_read, regardless of buffered data.
func TestStickyFailuresSuppressReadiness(t *testing.T) {
	s := newSession(1, -1, ModeRtspClient, StateConnected, true, Template{})
	s.outBuf = []byte("pending")
	s.markSendFailure()
	assert.False(t, s.wantsWrite())

	s.markReceiveFailure()
	assert.False(t, s.wantsRead())
}

func TestSessionIDString(t *testing.T) {
	assert.Equal(t, "session-42", ID(42).String())
}
