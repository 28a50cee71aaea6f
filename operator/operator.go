// Package operator defines the user-interaction collaborator that
// spec section 6.5 specifies as external: a message sink, a
// yes/no prompt, and two ways to collect operator-typed text. sar uses
// it to ask for the next slice; Create and Open in the root package
// use it to ask for a passphrase when none was supplied
// programmatically.
package operator

// Interaction is implemented by whatever drives the archiver (a TUI,
// a scripted test, a batch "assume yes" driver). The core never
// assumes a terminal is attached.
type Interaction interface {
	// Message displays informational text; no response expected.
	Message(text string)
	// Pause asks a yes/no question and returns the operator's answer.
	// A driver that runs unattended should return false ("abort")
	// rather than blocking.
	Pause(text string) bool
	// GetString prompts for a line of text, with echo controlling
	// whether the input should be displayed as typed.
	GetString(prompt string, echo bool) (string, error)
	// GetSecret prompts for a passphrase; equivalent to
	// GetString(prompt, false) but kept distinct so a driver can
	// route it to a dedicated secret store instead of a terminal.
	GetSecret(prompt string) (string, error)
}

// Silent is an Interaction that never pauses for input and answers
// every Pause with always, for batch/non-interactive use (the
// equivalent of dar's --batch / -Q flags in spirit).
type Silent struct {
	// Always is returned by Pause. Defaults to false (abort on any
	// prompt), the safe choice for unattended automation.
	Always bool
}

func (s Silent) Message(string) {}

func (s Silent) Pause(string) bool { return s.Always }

func (s Silent) GetString(string, bool) (string, error) { return "", nil }

func (s Silent) GetSecret(string) (string, error) { return "", nil }

var _ Interaction = Silent{}
