package stomp

import (
	"bytes"
	"testing"
)

func TestMarshalAppendsContentLengthAndTerminator(t *testing.T) {
	f := NewFrame(CmdSend, HdrDestination, "/app/private.send", HdrContentType, "application/json")
	f.Body = []byte(`{"content":"hi"}`)

	raw := f.Marshal()
	if raw[len(raw)-1] != 0 {
		t.Fatalf("expected NUL terminator")
	}

	parsed, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.Command != CmdSend {
		t.Fatalf("expected SEND, got %s", parsed.Command)
	}
	if parsed.Header(HdrDestination) != "/app/private.send" {
		t.Fatalf("destination lost: %q", parsed.Header(HdrDestination))
	}
	if parsed.Header(HdrContentLength) != "16" {
		t.Fatalf("expected content-length 16, got %q", parsed.Header(HdrContentLength))
	}
	if !bytes.Equal(parsed.Body, f.Body) {
		t.Fatalf("body mismatch: %q", parsed.Body)
	}
}

func TestUnmarshalToleratesCRLFAndTrimsByContentLength(t *testing.T) {
	raw := []byte("MESSAGE\r\ndestination:/user/queue/messages\r\ncontent-length:2\r\n\r\nhi trailing junk\x00")

	f, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Command != CmdMessage {
		t.Fatalf("expected MESSAGE, got %s", f.Command)
	}
	if string(f.Body) != "hi" {
		t.Fatalf("expected body trimmed to content-length, got %q", f.Body)
	}
}

func TestUnmarshalToleratesMixedLineEndings(t *testing.T) {
	raw := []byte("CONNECTED\nversion:1.2\r\nheart-beat:4000,4000\n\r\n\x00")

	f, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Command != CmdConnected {
		t.Fatalf("expected CONNECTED, got %s", f.Command)
	}
	if f.Header(HdrVersion) != "1.2" {
		t.Fatalf("expected version 1.2, got %q", f.Header(HdrVersion))
	}
	if f.Header(HdrHeartBeat) != "4000,4000" {
		t.Fatalf("carriage return leaked into header value: %q", f.Header(HdrHeartBeat))
	}
}

func TestUnmarshalRejectsMalformedFrames(t *testing.T) {
	for _, raw := range []string{
		"MESSAGE\nno-colon-header\n\nbody\x00",
		"MESSAGE\ncontent-length:999\n\nshort\x00",
		"no header terminator",
	} {
		if _, err := Unmarshal([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestHeaderFirstOccurrenceWins(t *testing.T) {
	f, err := Unmarshal([]byte("MESSAGE\nfoo:first\nfoo:second\n\n\x00"))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Header("foo") != "first" {
		t.Fatalf("expected first occurrence, got %q", f.Header("foo"))
	}
}

func TestHeaderEscapingRoundTrip(t *testing.T) {
	f := NewFrame(CmdMessage, "subject", "a:b\nc\\d")

	parsed, err := Unmarshal(f.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.Header("subject") != "a:b\nc\\d" {
		t.Fatalf("escaping round trip broke: %q", parsed.Header("subject"))
	}

	if !bytes.Contains(f.Marshal(), []byte(`a\cb\nc\\d`)) {
		t.Fatalf("expected escaped header on the wire: %q", f.Marshal())
	}
}

func TestConnectFramesAreNotEscaped(t *testing.T) {
	f := NewFrame(CmdConnect, HdrLogin, "alice", HdrHeartBeat, "4000,4000")
	if bytes.Contains(f.Marshal(), []byte(`\c`)) {
		t.Fatalf("CONNECT headers must not be escaped")
	}
}

func TestIsHeartBeat(t *testing.T) {
	for _, raw := range []string{"\n", "\r\n", ""} {
		if !IsHeartBeat([]byte(raw)) {
			t.Fatalf("expected %q to be a heart-beat", raw)
		}
	}
	if IsHeartBeat([]byte("MESSAGE\n\n\x00")) {
		t.Fatalf("command frame misread as heart-beat")
	}
}
