package session

import (
	"encoding/binary"
	"time"

	"github.com/arzzra/wfdsession/internal/rtspmsg"
)

// maxUDPDatagram is the receive-buffer size for a single recvfrom() on a
// Datagram session: large enough for any
// Wi-Fi Display control/RTP datagram, small enough to keep one stack
// buffer per readiness iteration.
const maxUDPDatagram = 1500

// nowMicros is the engine's monotonic-enough clock source, grounded on
// the source's ALooper::GetNowUs(): used both to timestamp arriving
// frames and to compute the RTP PT-33 egress stamp
// (rtp_stamp.go).
func nowMicros() int64 {
	return time.Now().UnixMicro()
}

// decodeStream drains s.inBuf according to the framing discipline fixed
// at session creation: RTSP connections speak the RTSP/binary
// discipline, everything else on a byte stream speaks 16-bit
// length-prefixed datagrams. hadRecvError mirrors the source's
// "err != OK" from the just-completed recv(): on RTSP connections it is
// forwarded to the RTSP message parser as the "prior decode errors"
// leniency flag and also caps decoding at a single RTSP message so a
// connection already known to be failing doesn't spin, decoding an
// unbounded backlog before the resulting error is reported.
// Length-prefixed decoding ignores it and drains every complete frame.
func decodeStream(s *Session, hadRecvError bool) {
	if s.isRTSPConnection {
		decodeRTSPStream(s, hadRecvError)
		return
	}
	decodeLengthPrefixed(s)
}

// decodeLengthPrefixed implements the TcpDatagramActive/Passive framing
// of stream framing used for length-prefixed datagram sessions: a
// 16-bit big-endian length header followed by that many
// payload bytes, repeated for as many complete frames as are already
// buffered.
func decodeLengthPrefixed(s *Session) {
	for len(s.inBuf) >= 2 {
		packetSize := int(binary.BigEndian.Uint16(s.inBuf[:2]))
		if len(s.inBuf) < packetSize+2 {
			return
		}

		payload := append([]byte(nil), s.inBuf[2:2+packetSize]...)
		s.template.post(ReasonDatagram, s.id, func(n *Notification) {
			n.Data = &Buffer{Bytes: payload, ArrivalTimeUs: nowMicros()}
		})

		s.inBuf = s.inBuf[2+packetSize:]
	}
}

// decodeRTSPStream implements RTSP connection framing: a
// leading '$' introduces a 4-byte interleaved binary frame header
// (channel, 16-bit big-endian length) per RFC 2326 §10.12; anything
// else is handed to the external RTSP message parser. Both branches
// keep decoding complete units out of s.inBuf until it runs out of
// data or the parser reports it needs more.
func decodeRTSPStream(s *Session, hadRecvError bool) {
	for {
		if len(s.inBuf) > 0 && s.inBuf[0] == '$' {
			if len(s.inBuf) < 4 {
				return
			}

			length := int(binary.BigEndian.Uint16(s.inBuf[2:4]))
			if len(s.inBuf) < 4+length {
				return
			}

			channel := s.inBuf[1]
			payload := append([]byte(nil), s.inBuf[4:4+length]...)
			arrivalTimeUs := nowMicros()

			s.template.post(ReasonBinaryData, s.id, func(n *Notification) {
				n.Channel = channel
				n.Data = &Buffer{Bytes: payload, ArrivalTimeUs: arrivalTimeUs}
			})

			s.inBuf = s.inBuf[4+length:]
			continue
		}

		msg, length, err := rtspmsg.Parse(s.inBuf, hadRecvError)
		if err != nil {
			// Either "need more data" or an unrecoverable parse
			// error; either way there is nothing more this pass
			// can extract from s.inBuf.
			if err != rtspmsg.ErrIncomplete {
				s.sawParseError = true
				logWarn(bgctx, "rtsp parse error", logSession(s.id), "err", err)
			}
			return
		}
		s.sawParseError = false

		if applyIdrQuirk(msg, s.inBuf, length) {
			length += 2
		}

		s.template.post(ReasonData, s.id, func(n *Notification) {
			n.Message = msg
		})

		s.inBuf = s.inBuf[length:]

		if hadRecvError {
			return
		}
	}
}

// applyIdrQuirk reproduces a dongle compatibility quirk: some
// hardware sends a SET_PARAMETER wfd_idr_request with a Content-Length
// two bytes short of the body it actually transmits. When the body is
// exactly that literal request and the two bytes immediately following
// the declared content are a trailing CRLF, they belong to this
// message, not the next one, and must be consumed here.
func applyIdrQuirk(msg *rtspmsg.Message, buf []byte, length int) bool {
	const marker = "wfd_idr_request\r\n"
	body := msg.Body
	if len(body) < len(marker) || string(body[:len(marker)]) != marker {
		return false
	}
	if length < 19 || len(buf) < length+2 {
		return false
	}
	return buf[length] == '\r' && buf[length+1] == '\n'
}

// postInboundDatagram implements the Udp session read path: one
// recvfrom() yields exactly one Datagram notification, tagged with the
// sender's address so a not-yet-connected socket can reply.
func postInboundDatagram(s *Session, payload []byte, from Endpoint) {
	buf := append([]byte(nil), payload...)
	arrivalTimeUs := nowMicros()
	s.template.post(ReasonDatagram, s.id, func(n *Notification) {
		n.Data = &Buffer{Bytes: buf, ArrivalTimeUs: arrivalTimeUs}
		n.FromAddr = from.IP
		n.FromPort = from.Port
	})
}
