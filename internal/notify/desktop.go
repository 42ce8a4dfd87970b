package notify

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Desktop raises a native notification, osascript on macOS and notify-send
// on Linux. Other platforms are skipped without error.
type Desktop struct{}

func (Desktop) Announce(e RunEvent) error {
	switch runtime.GOOS {
	case "darwin":
		// %q escapes quotes the way AppleScript string literals expect.
		script := fmt.Sprintf("display notification %q with title %q", e.Body(), e.Title())
		return exec.Command("osascript", "-e", script).Run()
	case "linux":
		return exec.Command("notify-send", "-u", urgency(e.Level), e.Title(), e.Body()).Run()
	}
	return nil
}

func urgency(l Level) string {
	switch l {
	case LevelError:
		return "critical"
	case LevelWarning:
		return "normal"
	default:
		return "low"
	}
}
