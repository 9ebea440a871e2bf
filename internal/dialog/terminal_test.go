package dialog

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/dropzone/internal/model"
)

func TestTerminal_Confirm(t *testing.T) {
	tests := []struct {
		answer string
		want   bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.answer), func(t *testing.T) {
			var out bytes.Buffer
			term := NewTerminal(strings.NewReader(tt.answer), &out)
			got, err := term.Confirm(context.Background(), ConfirmRequest{Title: "Slow", Message: "Continue?"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Continue?")
		})
	}
}

func TestTerminal_EditOptions(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(strings.NewReader("level=9\nname=fast\nbogus\n\n"), &out)

	res, err := term.EditOptions(context.Background(), EditRequest{
		Title:   "Tweak",
		Options: model.Options{"level": 1, "keep": true},
	})
	require.NoError(t, err)
	assert.False(t, res.Canceled)
	assert.Equal(t, 9, res.Options["level"])
	assert.Equal(t, "fast", res.Options["name"])
	assert.Equal(t, true, res.Options["keep"])
	assert.Contains(t, out.String(), "expected key=value")
}

func TestTerminal_EditOptionsCancel(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(strings.NewReader("cancel\n"), &out)

	orig := model.Options{"level": 1}
	res, err := term.EditOptions(context.Background(), EditRequest{Options: orig})
	require.NoError(t, err)
	assert.True(t, res.Canceled)
	assert.Equal(t, 1, orig["level"])
}

func TestScripted_Defaults(t *testing.T) {
	s := &Scripted{}
	ok, err := s.Confirm(context.Background(), ConfirmRequest{Title: "q"})
	require.NoError(t, err)
	assert.True(t, ok)

	res, err := s.EditOptions(context.Background(), EditRequest{Options: model.Options{"a": 1}, Modifiers: "Alt"})
	require.NoError(t, err)
	assert.Equal(t, model.Options{"a": 1}, res.Options)
	assert.Equal(t, "Alt", res.Modifiers)

	assert.Len(t, s.Confirms(), 1)
	assert.Len(t, s.Edits(), 1)
}
