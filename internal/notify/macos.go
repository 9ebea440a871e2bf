// Package notify shows user-facing events as desktop notifications.
package notify

import (
	"fmt"
	"os/exec"
	"strings"
)

type runFunc func(name string, args ...string) ([]byte, error)

func execRun(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// OSAScript sends macOS notifications via osascript.
type OSAScript struct {
	// Sound names the alert sound; empty means silent.
	Sound string
	run   runFunc
}

// Send implements Sender.
func (o OSAScript) Send(title, message string) error {
	script := fmt.Sprintf(`display notification "%s" with title "%s"`,
		escapeAppleScript(message), escapeAppleScript(title))
	if o.Sound != "" {
		script += fmt.Sprintf(` sound name "%s"`, escapeAppleScript(o.Sound))
	}

	run := o.run
	if run == nil {
		run = execRun
	}
	if out, err := run("osascript", "-e", script); err != nil {
		return fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
