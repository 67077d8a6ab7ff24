// Package sse parses upstream SSE byte streams into data payloads, and
// accumulates output text and token usage across the stream for request
// logging.
package sse

import (
	"bytes"
	"strings"
)

// Decoder splits a byte stream into "\n\n"-delimited events and extracts
// their "data:" lines, buffering any trailing partial event across Feed
// calls.
type Decoder struct {
	buf []byte
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk and returns the data payloads of any complete events it
// produced.
func (d *Decoder) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}

	data := append(d.buf, chunk...)
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	parts := bytes.Split(data, []byte("\n\n"))

	d.buf = append([]byte(nil), parts[len(parts)-1]...)
	parts = parts[:len(parts)-1]

	payloads := make([]string, 0, len(parts))
	for _, event := range parts {
		if payload, ok := extractDataPayload(event); ok {
			payloads = append(payloads, payload)
		}
	}
	return payloads
}

func extractDataPayload(event []byte) (string, bool) {
	var dataLines [][]byte
	for _, line := range bytes.Split(event, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		if bytes.HasPrefix(line, []byte("data:")) {
			value := line[len("data:"):]
			value = bytes.TrimPrefix(value, []byte(" "))
			dataLines = append(dataLines, value)
		}
	}
	if len(dataLines) == 0 {
		return "", false
	}
	return string(bytes.Join(dataLines, []byte("\n"))), true
}

// IsDone reports whether a payload is the OpenAI stream terminator.
func IsDone(payload string) bool {
	return strings.TrimSpace(payload) == "[DONE]"
}
