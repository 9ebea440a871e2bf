package dialog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Terminal shows dialogs as line-based prompts.
type Terminal struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewTerminal returns a terminal dialog service reading answers from in.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

// EditOptions prints the current options as YAML and reads key=value lines
// until an empty line. A line reading "cancel" aborts.
func (t *Terminal) EditOptions(ctx context.Context, req EditRequest) (EditResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	opts := req.Options.Clone()
	current, err := yaml.Marshal(map[string]any(opts))
	if err != nil {
		return EditResult{}, fmt.Errorf("render options: %w", err)
	}
	fmt.Fprintf(t.out, "%s\n%s", req.Title, current)
	fmt.Fprintln(t.out, "Enter key=value overrides, an empty line to confirm, or \"cancel\":")

	for {
		if err := ctx.Err(); err != nil {
			return EditResult{}, err
		}
		line, err := t.readLine()
		if err != nil {
			return EditResult{}, err
		}
		switch {
		case line == "":
			return EditResult{Options: opts}, nil
		case line == "cancel":
			return EditResult{Canceled: true}, nil
		}
		key, raw, ok := strings.Cut(line, "=")
		if !ok {
			fmt.Fprintf(t.out, "expected key=value, got %q\n", line)
			continue
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			fmt.Fprintf(t.out, "invalid value for %s: %v\n", key, err)
			continue
		}
		opts[strings.TrimSpace(key)] = normalize(value)
	}
}

// Confirm asks a y/n question. Anything but y/yes is a cancel.
func (t *Terminal) Confirm(ctx context.Context, req ConfirmRequest) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	confirm, cancel := req.ConfirmLabel, req.CancelLabel
	if confirm == "" {
		confirm = "yes"
	}
	if cancel == "" {
		cancel = "no"
	}
	fmt.Fprintf(t.out, "%s\n%s\n", req.Title, req.Message)
	if req.Details != "" {
		fmt.Fprintln(t.out, req.Details)
	}
	fmt.Fprintf(t.out, "[y = %s, n = %s]: ", confirm, cancel)

	if err := ctx.Err(); err != nil {
		return false, err
	}
	line, err := t.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Alert prints the message.
func (t *Terminal) Alert(_ context.Context, req AlertRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "%s\n%s\n", req.Title, req.Message)
	if req.Details != "" {
		fmt.Fprintln(t.out, req.Details)
	}
	return nil
}

func (t *Terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", nil
		}
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// normalize turns YAML decoded maps into option maps.
func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	case []any:
		for i, e := range x {
			x[i] = normalize(e)
		}
		return x
	default:
		return v
	}
}

var _ Service = (*Terminal)(nil)
var _ Service = (*Scripted)(nil)
