// Package stomp implements the subset of STOMP 1.2 the chat broker speaks:
// framed commands over a WebSocket message stream, heart-beat frames, and
// header escaping. One WebSocket message carries exactly one frame.
package stomp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Frame commands used by the client and broker.
const (
	CmdConnect    = "CONNECT"
	CmdConnected  = "CONNECTED"
	CmdSubscribe  = "SUBSCRIBE"
	CmdSend       = "SEND"
	CmdMessage    = "MESSAGE"
	CmdError      = "ERROR"
	CmdDisconnect = "DISCONNECT"
)

// Well-known header names.
const (
	HdrAcceptVersion = "accept-version"
	HdrVersion       = "version"
	HdrHeartBeat     = "heart-beat"
	HdrLogin         = "login"
	HdrPasscode      = "passcode"
	HdrDestination   = "destination"
	HdrID            = "id"
	HdrContentType   = "content-type"
	HdrContentLength = "content-length"
	HdrMessage       = "message"
)

// HeartBeat is the body of a heart-beat frame.
var HeartBeat = []byte("\n")

// Header is a single STOMP header entry. Order is preserved; on duplicate
// names the first occurrence wins, as STOMP 1.2 requires.
type Header struct {
	Name  string
	Value string
}

// Frame is one STOMP frame.
type Frame struct {
	Command string
	Headers []Header
	Body    []byte
}

// NewFrame builds a frame from alternating header name/value pairs.
func NewFrame(command string, headers ...string) *Frame {
	f := &Frame{Command: command}
	for i := 0; i+1 < len(headers); i += 2 {
		f.Headers = append(f.Headers, Header{Name: headers[i], Value: headers[i+1]})
	}
	return f
}

// Header returns the value of the first header with the given name.
func (f *Frame) Header(name string) string {
	for _, h := range f.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

// Marshal encodes the frame for transmission, appending a content-length
// header when a body is present.
func (f *Frame) Marshal() []byte {
	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')
	escape := f.escaped()
	for _, h := range f.Headers {
		name, value := h.Name, h.Value
		if escape {
			name, value = escapeHeader(name), escapeHeader(value)
		}
		buf.WriteString(name)
		buf.WriteByte(':')
		buf.WriteString(value)
		buf.WriteByte('\n')
	}
	if len(f.Body) > 0 && f.Header(HdrContentLength) == "" {
		buf.WriteString(HdrContentLength)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(len(f.Body)))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// IsHeartBeat reports whether raw is a heart-beat frame rather than a
// command frame.
func IsHeartBeat(raw []byte) bool {
	trimmed := bytes.Trim(raw, "\r\n")
	return len(trimmed) == 0
}

// Unmarshal decodes a single frame. Heart-beat frames must be filtered out
// with IsHeartBeat first.
func Unmarshal(raw []byte) (*Frame, error) {
	head, body, ok := splitFrame(raw)
	if !ok {
		return nil, fmt.Errorf("stomp: frame has no header terminator")
	}
	body = bytes.TrimSuffix(body, []byte{0})

	lines := strings.Split(string(head), "\n")
	f := &Frame{Command: strings.TrimSpace(lines[0])}
	if f.Command == "" {
		return nil, fmt.Errorf("stomp: empty command")
	}
	escape := f.escaped()
	for _, line := range lines[1:] {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("stomp: malformed header %q", line)
		}
		if escape {
			name, value = unescapeHeader(name), unescapeHeader(value)
		}
		f.Headers = append(f.Headers, Header{Name: name, Value: value})
	}
	if n := f.Header(HdrContentLength); n != "" {
		length, err := strconv.Atoi(n)
		if err != nil || length < 0 || length > len(body) {
			return nil, fmt.Errorf("stomp: bad content-length %q", n)
		}
		body = body[:length]
	}
	f.Body = body
	return f, nil
}

// splitFrame cuts raw at the blank line separating headers from body.
// Lines may end in LF or CRLF, and the two may be mixed within one frame,
// so the terminator is an EOL immediately followed by another EOL.
func splitFrame(raw []byte) (head, body []byte, ok bool) {
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\n' {
			continue
		}
		j := i + 1
		if j < len(raw) && raw[j] == '\r' {
			j++
		}
		if j < len(raw) && raw[j] == '\n' {
			return raw[:i], raw[j+1:], true
		}
	}
	return nil, nil, false
}

// escaped reports whether header escaping applies; CONNECT and CONNECTED
// frames are exempt for backwards compatibility with STOMP 1.0.
func (f *Frame) escaped() bool {
	return f.Command != CmdConnect && f.Command != CmdConnected
}

var headerEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, ":", `\c`, "\r", `\r`)

var headerUnescaper = strings.NewReplacer(`\r`, "\r", `\n`, "\n", `\c`, ":", `\\`, `\`)

func escapeHeader(s string) string {
	return headerEscaper.Replace(s)
}

func unescapeHeader(s string) string {
	return headerUnescaper.Replace(s)
}
