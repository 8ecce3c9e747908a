package rtspmsg

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrIncomplete is returned when buf does not yet contain a full message.
// The caller (the session engine) must wait for more bytes to arrive and
// retry with the same, now-longer, buffer.
var ErrIncomplete = errors.New("rtspmsg: incomplete message")

const maxHeaderBlock = 64 * 1024

// Parse attempts to decode one RTSP message from the front of buf.
//
// hadPriorErrors mirrors the source parser's "previous frame failed to
// parse" flag: once a stream has produced garbage, the parser relaxes
// required-header validation so that resynchronizing on the next CRLF
// boundary doesn't cascade into an unbroken run of rejected messages.
//
// On success it returns the message and the number of bytes of buf that
// make up that message (headers + body); the caller advances its
// buffer by exactly that many bytes.
func Parse(buf []byte, hadPriorErrors bool) (*Message, int, error) {
	headerEnd, sepLen := findHeaderEnd(buf)
	if headerEnd < 0 {
		if len(buf) > maxHeaderBlock {
			return nil, 0, fmt.Errorf("rtspmsg: header block exceeds %d bytes without terminator", maxHeaderBlock)
		}
		return nil, 0, ErrIncomplete
	}

	lines := splitLines(buf[:headerEnd])
	if len(lines) == 0 {
		return nil, 0, fmt.Errorf("rtspmsg: empty message")
	}

	msg := &Message{Headers: make(Headers)}
	if err := parseStartLine(lines[0], msg); err != nil {
		return nil, 0, err
	}

	if err := parseHeaderLines(lines[1:], msg.Headers); err != nil {
		return nil, 0, err
	}

	contentLength := 0
	if cl := msg.Headers.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil {
			if !hadPriorErrors {
				return nil, 0, fmt.Errorf("rtspmsg: invalid Content-Length %q: %w", cl, err)
			}
			n = 0
		}
		if n < 0 {
			return nil, 0, fmt.Errorf("rtspmsg: negative Content-Length %d", n)
		}
		contentLength = n
	}

	bodyStart := headerEnd + sepLen
	total := bodyStart + contentLength
	if len(buf) < total {
		return nil, 0, ErrIncomplete
	}

	if contentLength > 0 {
		msg.Body = append([]byte(nil), buf[bodyStart:total]...)
	}

	if !hadPriorErrors {
		if err := validateRequired(msg); err != nil {
			return nil, 0, err
		}
	}

	return msg, total, nil
}

// findHeaderEnd locates the CRLF-CRLF (or LF-LF for lenient peers)
// terminator of the header block and reports its separator width.
func findHeaderEnd(buf []byte) (idx int, sepLen int) {
	if i := bytes.Index(buf, []byte("\r\n\r\n")); i >= 0 {
		return i, 4
	}
	if i := bytes.Index(buf, []byte("\n\n")); i >= 0 {
		return i, 2
	}
	return -1, 0
}

func splitLines(headerBlock []byte) []string {
	raw := strings.Split(string(headerBlock), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		lines = append(lines, strings.TrimRight(l, "\r"))
	}
	return lines
}

func parseStartLine(line string, msg *Message) error {
	if strings.HasPrefix(line, "RTSP/") {
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 2 {
			return fmt.Errorf("rtspmsg: invalid status line %q", line)
		}
		code, err := strconv.Atoi(parts[1])
		if err != nil {
			return fmt.Errorf("rtspmsg: invalid status code in %q: %w", line, err)
		}
		msg.IsResponse = true
		msg.Protocol = parts[0]
		msg.StatusCode = code
		if len(parts) == 3 {
			msg.Reason = parts[2]
		}
		return nil
	}

	parts := strings.Fields(line)
	if len(parts) != 3 {
		return fmt.Errorf("rtspmsg: invalid request line %q", line)
	}
	msg.Method = parts[0]
	msg.RequestURI = parts[1]
	msg.Protocol = parts[2]
	return nil
}

func parseHeaderLines(lines []string, headers Headers) error {
	var lastName string
	for _, line := range lines {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && lastName != "" {
			// Обертка заголовка: продолжение предыдущего значения.
			key := normalizeHeaderName(lastName)
			vals := headers[key]
			if n := len(vals); n > 0 {
				vals[n-1] = vals[n-1] + " " + strings.TrimSpace(line)
			}
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return fmt.Errorf("rtspmsg: header without colon: %q", line)
		}
		name := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])
		headers.Add(name, value)
		lastName = name
	}
	return nil
}

func validateRequired(msg *Message) error {
	if msg.Headers.Get("CSeq") == "" {
		return fmt.Errorf("rtspmsg: missing required CSeq header")
	}
	return nil
}
