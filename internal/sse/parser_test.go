package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecoder_SingleCompleteEvent(t *testing.T) {
	d := NewDecoder()
	payloads := d.Feed([]byte("data: {\"a\":1}\n\n"))
	assert.Equal(t, []string{`{"a":1}`}, payloads)
}

func TestDecoder_PartialEventBuffered(t *testing.T) {
	d := NewDecoder()
	payloads := d.Feed([]byte("data: {\"a\":"))
	assert.Empty(t, payloads)
	payloads = d.Feed([]byte("1}\n\n"))
	assert.Equal(t, []string{`{"a":1}`}, payloads)
}

func TestDecoder_CRLFNormalized(t *testing.T) {
	d := NewDecoder()
	payloads := d.Feed([]byte("data: hello\r\n\r\n"))
	assert.Equal(t, []string{"hello"}, payloads)
}

func TestDecoder_MultiLineDataJoined(t *testing.T) {
	d := NewDecoder()
	payloads := d.Feed([]byte("data: line1\ndata: line2\n\n"))
	assert.Equal(t, []string{"line1\nline2"}, payloads)
}

func TestDecoder_IgnoresNonDataFields(t *testing.T) {
	d := NewDecoder()
	payloads := d.Feed([]byte("event: message\ndata: hi\n\n"))
	assert.Equal(t, []string{"hi"}, payloads)
}

func TestDecoder_EventWithNoDataLinesSkipped(t *testing.T) {
	d := NewDecoder()
	payloads := d.Feed([]byte(": comment\n\ndata: real\n\n"))
	assert.Equal(t, []string{"real"}, payloads)
}

func TestIsDone(t *testing.T) {
	assert.True(t, IsDone("[DONE]"))
	assert.True(t, IsDone("  [DONE]  "))
	assert.False(t, IsDone(`{"a":1}`))
}
