package notify

import (
	"fmt"
	"strings"
)

// NotifySend sends freedesktop notifications via notify-send.
type NotifySend struct {
	// Urgency is low, normal or critical.
	Urgency string
	run     runFunc
}

// Send implements Sender.
func (n NotifySend) Send(title, message string) error {
	args := []string{"--app-name=dropzone"}
	if n.Urgency != "" {
		args = append(args, "--urgency="+n.Urgency)
	}
	args = append(args, "--", title, message)

	run := n.run
	if run == nil {
		run = execRun
	}
	if out, err := run("notify-send", args...); err != nil {
		return fmt.Errorf("notify-send: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
