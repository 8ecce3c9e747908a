package session

import (
	"encoding/binary"

	"github.com/pion/rtp"
)

// stampRTPEgress implements the RTP PT-33 egress timestamp rewrite,
// grounded on the source's writeMore(): a queued
// outbound datagram whose first two bytes mark it as RTP version 2,
// payload type 33 (MPEG2 Transport Stream, RFC 2250 §2) gets its
// 32-bit RTP timestamp overwritten with the current 90kHz clock value
// immediately before send(), so the timestamp reflects the moment the
// packet actually left the process rather than when it was queued.
//
// The version/marker/payload-type bytes are also checked the cheap way
// the source does (data[0] == 0x80 && data[1]&0x7f == 33) before
// paying for a full header parse; pion/rtp.Header.Unmarshal then
// confirms the buffer really is a well-formed RTP header of that shape
// before any byte is touched, since a raw byte match alone can't rule
// out a length-prefixed datagram that merely starts with those two
// bytes by coincidence.
func stampRTPEgress(data []byte) {
	if len(data) < 8 {
		return
	}
	if data[0] != 0x80 || data[1]&0x7f != 33 {
		return
	}

	var hdr rtp.Header
	if _, err := hdr.Unmarshal(data); err != nil {
		return
	}
	if hdr.Version != 2 || hdr.PayloadType != 33 {
		return
	}

	rtpTime := uint32((nowMicros() * 9) / 100)
	binary.BigEndian.PutUint32(data[4:8], rtpTime)
}
