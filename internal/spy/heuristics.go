package spy

import "strings"

// These substrings are the implementation-defined vocabulary spec.md
// §4.3.1 leaves unpinned ("a shell name", "a terminal-emulator
// substring", "a known session-shell substring", "a known
// automation-runner substring"). They are deliberately small and
// conservative; extending them does not change any serialized state
// field, only the heuristic launch-weighting of future observations.
var (
	shellBasenames = []string{"sh", "bash", "zsh", "fish"}

	terminalEmulatorSubstrings = []string{
		"gnome-terminal", "konsole", "xterm", "alacritty", "kitty", "tilix", "terminator",
	}

	sessionShellSubstrings = []string{
		"gdm-session-worker", "lightdm", "sddm", "Xsession",
	}

	automationRunnerSubstrings = []string{
		"cron", "anacron", "systemd",
	}
)

// userInitiatedFromParent implements the classification rule from
// spec.md §4.3.1 given the parent's full exe path and basename.
// Automation-runner substrings take priority: a parent that looks
// like cron/anacron/systemd is never treated as user-initiated, even
// if its path happens to also contain a shell substring.
func userInitiatedFromParent(parentExePath, parentBasename string) bool {
	for _, a := range automationRunnerSubstrings {
		if strings.Contains(parentExePath, a) {
			return false
		}
	}
	for _, sh := range shellBasenames {
		if parentBasename == sh {
			return true
		}
	}
	for _, t := range terminalEmulatorSubstrings {
		if strings.Contains(parentExePath, t) {
			return true
		}
	}
	for _, s := range sessionShellSubstrings {
		if strings.Contains(parentExePath, s) {
			return true
		}
	}
	return false
}
