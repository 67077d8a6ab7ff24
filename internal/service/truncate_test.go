package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateString_NoOpWhenShort(t *testing.T) {
	assert.Equal(t, "hello", TruncateString("hello", 10))
}

func TestTruncateString_TruncatesAndMarks(t *testing.T) {
	out := TruncateString("hello world", 5)
	assert.Equal(t, "hello...", out)
}

func TestSmartTruncateValue_TruncatesLongArray(t *testing.T) {
	arr := make([]any, 0, 30)
	for i := 0; i < 30; i++ {
		arr = append(arr, float64(i))
	}
	out := SmartTruncateValue(arr, 20, 2000).([]any)
	assert.Len(t, out, 21)
	assert.Equal(t, "…(10 items)…", out[20])
}

func TestSmartTruncateValue_RecursesIntoMaps(t *testing.T) {
	val := map[string]any{
		"nested": strings.Repeat("x", 20),
	}
	out := SmartTruncateValue(val, 20, 10).(map[string]any)
	assert.Equal(t, TruncateString(strings.Repeat("x", 20), 10), out["nested"])
}

func TestPreviewBody_ParsesJSON(t *testing.T) {
	out := PreviewBody([]byte(`{"a":1}`))
	assert.Equal(t, map[string]any{"a": float64(1)}, out)
}

func TestPreviewBody_NonJSONText(t *testing.T) {
	out := PreviewBody([]byte("plain text response"))
	assert.Equal(t, "plain text response", out)
}

func TestPreviewBody_BinaryMarker(t *testing.T) {
	binary := []byte{0xff, 0xfe, 0x00, 0xff, 0xfe}
	out := PreviewBody(binary)
	assert.Equal(t, "[binary data: 5 bytes]", out)
}

func TestPreviewBody_Empty(t *testing.T) {
	assert.Equal(t, "", PreviewBody(nil))
}
