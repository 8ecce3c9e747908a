//go:build linux || darwin

package session

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// TestEndToEndLengthPrefixSessionPair covers a length-prefixed exchange,
// run against two
// real engines end to end rather than a raw net.Listener stand-in.
func TestEndToEndLengthPrefixSessionPair(t *testing.T) {
	passive := NewEngine()
	require.NoError(t, passive.Start())
	defer passive.Stop()

	active := NewEngine()
	require.NoError(t, active.Start())
	defer active.Stop()

	notifCh := make(chan *Notification, 16)
	serverID, err := passive.CreateTCPDatagramSession(false, "127.0.0.1", 0, "", 0, Template{
		Sink: PosterFunc(func(n *Notification) { notifCh <- n }),
	})
	require.NoError(t, err)

	local, err := passive.LocalAddr(serverID)
	require.NoError(t, err)

	clientID, err := active.CreateTCPDatagramSession(true, "", 0, "127.0.0.1", local.Port, Template{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, _ := active.State(clientID)
		return st == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, active.SendRequest(clientID, []byte("hello")))

	n := waitNotification(t, notifCh, ReasonDatagram)
	assert.Equal(t, "hello", string(n.Data.Bytes))
}

// TestEndToEndUDPRTPStamp covers a Udp session with a
// default peer sends an RTP PT-33 datagram; the peer observes the
// timestamp field rewritten to the current 90kHz clock.
func TestEndToEndUDPRTPStamp(t *testing.T) {
	peer := NewEngine()
	require.NoError(t, peer.Start())
	defer peer.Stop()

	notifCh := make(chan *Notification, 4)
	peerID, err := peer.CreateUDPSession("127.0.0.1", 0, "", 0, Template{
		Sink: PosterFunc(func(n *Notification) { notifCh <- n }),
	})
	require.NoError(t, err)
	peerAddr, err := peer.LocalAddr(peerID)
	require.NoError(t, err)

	sender := NewEngine()
	require.NoError(t, sender.Start())
	defer sender.Stop()

	senderID, err := sender.CreateUDPSession("127.0.0.1", 0, "127.0.0.1", peerAddr.Port, Template{})
	require.NoError(t, err)

	before := nowMicros()
	datagram := []byte{0x80, 0x21, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0xDE, 0xAD, 0xBE, 0xEF}
	require.NoError(t, sender.SendRequest(senderID, datagram))

	// The stamp is applied by the sender's I/O thread when it actually
	// sends, which is after SendRequest returns, so the upper bound is
	// taken once the peer has received the datagram.
	n := waitNotification(t, notifCh, ReasonDatagram)
	after := nowMicros()
	require.Len(t, n.Data.Bytes, 12)
	assert.Equal(t, []byte{0x80, 0x21, 0x00, 0x01}, n.Data.Bytes[:4])
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, n.Data.Bytes[8:])

	got := binary.BigEndian.Uint32(n.Data.Bytes[4:8])
	lo := uint32((before * 9) / 100)
	hi := uint32((after * 9) / 100)
	assert.GreaterOrEqual(t, got, lo)
	assert.LessOrEqual(t, got, hi)
}

// TestEndToEndConcurrentControlCallsFromManyGoroutines exercises the
// the claim that every control-API call is safe from any thread: N
// goroutines each create and immediately destroy a session.
func TestEndToEndConcurrentControlCallsFromManyGoroutines(t *testing.T) {
	eng := NewEngine()
	require.NoError(t, eng.Start())
	defer eng.Stop()

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			id, err := eng.CreateUDPSession("127.0.0.1", 0, "", 0, Template{})
			if err != nil {
				return err
			}
			return eng.DestroySession(id)
		})
	}
	require.NoError(t, g.Wait())
}
