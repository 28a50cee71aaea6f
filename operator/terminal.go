package operator

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"
)

// Terminal is the default Interaction: it prompts on an io.Writer and
// reads lines from an io.Reader, using golang.org/x/term to suppress
// echo for GetSecret when the reader is backed by a real terminal.
type Terminal struct {
	Out io.Writer
	In  *bufio.Reader
	// Fd is the file descriptor backing In, used only to disable echo
	// for GetSecret; leave zero when In is not a terminal (tests,
	// pipes) and GetSecret falls back to a plain, echoed read.
	Fd int
}

func (t *Terminal) Message(text string) {
	fmt.Fprintln(t.Out, text)
}

func (t *Terminal) Pause(text string) bool {
	fmt.Fprintf(t.Out, "%s [y/N] ", text)
	line, _ := t.In.ReadString('\n')
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes"
}

func (t *Terminal) GetString(prompt string, echo bool) (string, error) {
	fmt.Fprint(t.Out, prompt)
	if !echo && term.IsTerminal(t.Fd) {
		return t.readHidden()
	}
	line, err := t.In.ReadString('\n')
	return strings.TrimRight(line, "\r\n"), err
}

func (t *Terminal) GetSecret(prompt string) (string, error) {
	return t.GetString(prompt, false)
}

func (t *Terminal) readHidden() (string, error) {
	b, err := term.ReadPassword(t.Fd)
	fmt.Fprintln(t.Out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var _ Interaction = (*Terminal)(nil)
