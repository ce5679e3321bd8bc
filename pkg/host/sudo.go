package host

import (
	"bytes"
	"fmt"

	"github.com/christophe-duc/fleetctl/pkg/utils"
)

// shapeSudoInteractive renders the interactive sudo shape: as a named
// user it uses `su` (not `sudo -u`) so `~` expands to that user's home;
// as root it runs bash directly under sudo.
func shapeSudoInteractive(magicPrompt, user, command string) string {
	if user == "" {
		return fmt.Sprintf("sudo -p %s bash -c %s", utils.Quoted(magicPrompt), utils.Quoted(command))
	}
	return fmt.Sprintf("sudo -p %s su %s -c %s", utils.Quoted(magicPrompt), utils.Quoted(user), utils.Quoted(command))
}

// shapeSudoNonInteractive renders the non-interactive sudo shape: the
// password is piped on stdin via `-S`, and sudo's prompt is the fixed
// literal "(passwd)" since nothing is scanning for it.
func shapeSudoNonInteractive(password, command string) string {
	return fmt.Sprintf("echo %s | sudo -p '(passwd)' -S %s", utils.Quoted(password), command)
}

// sudoPromptWindow is the number of trailing bytes of a run's output
// buffer scanned for the magic sudo prompt on every chunk received from
// the channel.
const sudoPromptWindow = 32

// scanForSudoPrompt reports whether magicPrompt appears within the last
// sudoPromptWindow bytes of buf.
func scanForSudoPrompt(buf []byte, magicPrompt string) bool {
	if magicPrompt == "" {
		return false
	}
	start := len(buf) - sudoPromptWindow
	if start < 0 {
		start = 0
	}
	return containsSubstring(buf[start:], magicPrompt)
}

// containsSubstring reports whether s occurs in buf. An empty s never
// matches.
func containsSubstring(buf []byte, s string) bool {
	if s == "" {
		return false
	}
	return bytes.Contains(buf, []byte(s))
}
