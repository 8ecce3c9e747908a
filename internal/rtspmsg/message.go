// Package rtspmsg is the RTSP message parser consumed by the session
// engine as an external library: given a byte buffer it returns either a
// parsed message plus the number of bytes consumed, or ErrIncomplete when
// the buffer does not yet hold a full message.
//
// Пакет реализует только то подмножество RTSP (RFC 2326), которое нужно
// для управляющего канала Wi-Fi Display: request/response line, заголовки
// с продолжением строк, тело по Content-Length. Он не знает о фрейминге
// уровня TCP ($-interleaved, длина-префикс) — этим занимается движок сессий.
package rtspmsg

import (
	"fmt"
	"strconv"
	"strings"
)

// Message is either an RTSP request or an RTSP response.
type Message struct {
	IsResponse bool

	// Request line
	Method     string
	RequestURI string

	// Status line
	StatusCode int
	Reason     string

	Protocol string // "RTSP/1.0"
	Headers  Headers
	Body     []byte
}

// Headers is a case-insensitive multimap, matching the parser's own
// normalization pass (grounded on pkg/sip/core/parser's header table).
type Headers map[string][]string

func (h Headers) Get(name string) string {
	vals := h[normalizeHeaderName(name)]
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (h Headers) Add(name, value string) {
	key := normalizeHeaderName(name)
	h[key] = append(h[key], value)
}

// CSeq returns the parsed CSeq header, or -1 if absent/invalid.
func (m *Message) CSeq() int {
	v := m.Headers.Get("CSeq")
	if v == "" {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return -1
	}
	return n
}

func normalizeHeaderName(name string) string {
	parts := strings.Split(name, "-")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
		}
	}
	return strings.Join(parts, "-")
}

func (m *Message) String() string {
	if m.IsResponse {
		return fmt.Sprintf("RTSP/%d %s (cseq=%d)", m.StatusCode, m.Reason, m.CSeq())
	}
	return fmt.Sprintf("%s %s (cseq=%d)", m.Method, m.RequestURI, m.CSeq())
}
