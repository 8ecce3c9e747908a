package session

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/wfdsession/internal/rtspmsg"
)

func newTestSink() (*Session, *[]*Notification) {
	var got []*Notification
	tmpl := Template{Sink: PosterFunc(func(n *Notification) {
		got = append(got, n)
	})}
	s := newSession(1, -1, ModeRtspServer, StateConnected, true, tmpl)
	return s, &got
}

func TestDecodeLengthPrefixedSingleFrame(t *testing.T) {
	s, got := newTestSink()
	s.isRTSPConnection = false

	frame := make([]byte, 2+5)
	binary.BigEndian.PutUint16(frame[:2], 5)
	copy(frame[2:], "hello")
	s.inBuf = frame

	decodeStream(s, false)

	require.Len(t, *got, 1)
	n := (*got)[0]
	assert.Equal(t, ReasonDatagram, n.Reason)
	assert.Equal(t, "hello", string(n.Data.Bytes))
	assert.Empty(t, s.inBuf)
}

func TestDecodeLengthPrefixedZeroLengthFrame(t *testing.T) {
	s, got := newTestSink()
	s.isRTSPConnection = false
	s.inBuf = []byte{0x00, 0x00}

	decodeStream(s, false)

	require.Len(t, *got, 1)
	assert.Empty(t, (*got)[0].Data.Bytes)
}

func TestDecodeLengthPrefixedWaitsForMoreBytes(t *testing.T) {
	s, got := newTestSink()
	s.isRTSPConnection = false
	s.inBuf = []byte{0x00, 0x05, 'h', 'e'}

	decodeStream(s, false)

	assert.Empty(t, *got)
	assert.Equal(t, []byte{0x00, 0x05, 'h', 'e'}, s.inBuf)
}

func TestDecodeInterleavedBinaryFrame(t *testing.T) {
	s, got := newTestSink()
	s.inBuf = []byte{'$', 0x00, 0x00, 0x04, 'A', 'B', 'C', 'D'}

	decodeStream(s, false)

	require.Len(t, *got, 1)
	n := (*got)[0]
	assert.Equal(t, ReasonBinaryData, n.Reason)
	assert.Equal(t, byte(0), n.Channel)
	assert.Equal(t, "ABCD", string(n.Data.Bytes))
	assert.Empty(t, s.inBuf)
}

func TestDecodeInterleavedBinaryFrameEmptyPayload(t *testing.T) {
	s, got := newTestSink()
	s.inBuf = []byte{'$', 0x02, 0x00, 0x00}

	decodeStream(s, false)

	require.Len(t, *got, 1)
	n := (*got)[0]
	assert.Equal(t, byte(2), n.Channel)
	assert.Empty(t, n.Data.Bytes)
}

func TestDecodeRTSPMessage(t *testing.T) {
	s, got := newTestSink()
	s.inBuf = []byte("OPTIONS * RTSP/1.0\r\nCSeq: 1\r\n\r\n")

	decodeStream(s, false)

	require.Len(t, *got, 1)
	n := (*got)[0]
	assert.Equal(t, ReasonData, n.Reason)
	msg, ok := n.Message.(*rtspmsg.Message)
	require.True(t, ok)
	assert.Equal(t, 1, msg.CSeq())
	assert.Empty(t, s.inBuf)
}

func TestDecodeInterleavedAndMessageInSameBuffer(t *testing.T) {
	s, got := newTestSink()
	s.inBuf = append([]byte{'$', 0x00, 0x00, 0x02, 'h', 'i'},
		[]byte("OPTIONS * RTSP/1.0\r\nCSeq: 1\r\n\r\n")...)

	decodeStream(s, false)

	require.Len(t, *got, 2)
	assert.Equal(t, ReasonBinaryData, (*got)[0].Reason)
	assert.Equal(t, ReasonData, (*got)[1].Reason)
}

// TestWfdIdrRequestQuirk reproduces 's compatibility quirk: a
// message whose body is the 17-byte "wfd_idr_request\r\n" literal but
// whose Content-Length advertises only 17 (not the 19 the sender
// actually transmitted, trailing CRLF included). The parser stops
// after 17 content bytes; the quirk must consume the extra 2 so the
// next message starts at the right offset.
func TestWfdIdrRequestQuirk(t *testing.T) {
	s, got := newTestSink()

	first := "SET_PARAMETER rtsp://host/media RTSP/1.0\r\n" +
		"CSeq: 5\r\n" +
		"Content-Length: 17\r\n" +
		"\r\n" +
		"wfd_idr_request\r\n" +
		"\r\n" // the two extra bytes the buggy sender actually appended

	second := "OPTIONS * RTSP/1.0\r\nCSeq: 6\r\n\r\n"

	s.inBuf = []byte(first + second)

	decodeStream(s, false)

	require.Len(t, *got, 2)
	msg1 := (*got)[0].Message.(*rtspmsg.Message)
	assert.Equal(t, 5, msg1.CSeq())
	msg2 := (*got)[1].Message.(*rtspmsg.Message)
	assert.Equal(t, 6, msg2.CSeq())
	assert.Empty(t, s.inBuf)
}

func TestApplyIdrQuirkRequiresTrailingCRLF(t *testing.T) {
	msg := &rtspmsg.Message{Body: []byte("wfd_idr_request\r\n")}
	buf := []byte("0123456789012345678XY") // length=19, buf[19:21] = "XY", not CRLF
	assert.False(t, applyIdrQuirk(msg, buf, 19))

	buf2 := []byte("0123456789012345678\r\n")
	assert.True(t, applyIdrQuirk(msg, buf2, 19))
}
