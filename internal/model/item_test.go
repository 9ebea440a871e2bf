package model

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItem_FileHelpers(t *testing.T) {
	it := FileItem("/tmp/photos/Holiday.JPG", 2048, time.Now())

	assert.Equal(t, "Holiday.JPG", it.Basename())
	assert.Equal(t, "jpg", it.Extension())
	assert.Equal(t, "/tmp/photos/Holiday.JPG", it.Value())
	assert.Equal(t, "file /tmp/photos/Holiday.JPG (2.0 kB)", it.String())
}

func TestItem_BlobSniffsMIME(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	it := BlobItem(png, "")
	assert.Equal(t, "image/png", it.MIME)

	explicit := BlobItem([]byte("hello"), "application/x-custom")
	assert.Equal(t, "application/x-custom", explicit.MIME)
}

func TestItem_StringDefaultsType(t *testing.T) {
	it := StringItem("hello", "")
	assert.Equal(t, "text/plain", it.Type)
	assert.Equal(t, "hello", it.Value())
}

func TestItem_ParsedURL(t *testing.T) {
	u, err := URLItem("https://example.com/a/b?x=1").ParsedURL()
	require.NoError(t, err)
	assert.Equal(t, "example.com", u.Host)
	assert.Equal(t, "/a/b", u.Path)
}

func TestOptions_CloneIsDeep(t *testing.T) {
	orig := Options{
		"name":   "x",
		"nested": map[string]any{"level": 1, "list": []any{"a", map[string]any{"k": "v"}}},
		"tags":   []string{"one"},
	}

	clone := orig.Clone()
	clone["name"] = "y"
	clone["nested"].(map[string]any)["level"] = 2
	clone["nested"].(map[string]any)["list"].([]any)[1].(map[string]any)["k"] = "changed"
	clone["tags"].([]string)[0] = "two"

	assert.Equal(t, "x", orig["name"])
	assert.Equal(t, 1, orig["nested"].(map[string]any)["level"])
	assert.Equal(t, "v", orig["nested"].(map[string]any)["list"].([]any)[1].(map[string]any)["k"])
	assert.Equal(t, "one", orig["tags"].([]string)[0])
}

func TestOptions_Accessors(t *testing.T) {
	o := Options{"s": "v", "b": true, "i": 3, "f": 2.0}
	assert.Equal(t, "v", o.String("s", "d"))
	assert.Equal(t, "d", o.String("missing", "d"))
	assert.True(t, o.Bool("b", false))
	assert.Equal(t, 3, o.Int("i", 0))
	assert.Equal(t, 2, o.Int("f", 0))
	assert.Equal(t, 9, o.Int("s", 9))
}

func TestOperation_FinishRunsCallbacksOnce(t *testing.T) {
	op, err := NewOperation("p1", Payload{Inputs: []Item{StringItem("a", "")}})
	require.NoError(t, err)

	calls := 0
	op.OnFinish(func(*Operation) { calls++ })
	op.Begin()
	op.Finish(nil)
	op.Finish(assert.AnError)

	state, opErr := op.State()
	assert.Equal(t, OperationDone, state)
	assert.NoError(t, opErr)
	assert.Equal(t, 1, calls)
}

func TestOperation_FinishWithError(t *testing.T) {
	op, err := NewOperation("p1", Payload{})
	require.NoError(t, err)
	op.Finish(assert.AnError)

	state, opErr := op.State()
	assert.Equal(t, OperationFailed, state)
	assert.ErrorIs(t, opErr, assert.AnError)
}

func TestItem_StringTruncatesByRune(t *testing.T) {
	text := strings.Repeat("é", 50)
	got := StringItem(text, "").String()

	assert.True(t, utf8.ValidString(got))
	assert.Contains(t, got, strings.Repeat("é", 37)+"...")
	assert.NotContains(t, got, strings.Repeat("é", 38))
}
