package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter reads interactive input. Passwords are read without echo when
// the input is a terminal; otherwise every answer is one line of in.
type prompter struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, out: out, reader: bufio.NewReader(in)}
}

// terminalFd returns the descriptor of in when it is an interactive terminal.
func (p *prompter) terminalFd() (int, bool) {
	f, ok := p.in.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

// line prompts until a non-empty answer is given. Non-interactive input
// gets a single attempt.
func (p *prompter) line(label string) (string, error) {
	_, interactive := p.terminalFd()
	for {
		fmt.Fprintf(p.out, "%s: ", label)
		input, err := p.reader.ReadString('\n')
		value := strings.TrimSpace(input)
		if err != nil && (!errors.Is(err, io.EOF) || value == "") {
			return "", fmt.Errorf("error reading %s: %w", strings.ToLower(label), err)
		}
		if value != "" {
			if !interactive {
				fmt.Fprintln(p.out)
			}
			return value, nil
		}
		if !interactive {
			return "", fmt.Errorf("%s cannot be empty", strings.ToLower(label))
		}
		fmt.Fprintf(p.out, "%s cannot be empty. Please try again.\n", label)
	}
}

// password reads a secret. On a terminal it is not echoed.
func (p *prompter) password(label string) (string, error) {
	fd, interactive := p.terminalFd()
	if !interactive {
		return p.line(label)
	}

	for {
		fmt.Fprintf(p.out, "%s: ", label)
		passwordBytes, err := term.ReadPassword(fd)
		fmt.Fprintln(p.out) // Print newline after password input
		if err != nil {
			return "", fmt.Errorf("error reading %s: %w", strings.ToLower(label), err)
		}
		if len(passwordBytes) > 0 {
			return string(passwordBytes), nil
		}
		fmt.Fprintf(p.out, "%s cannot be empty. Please try again.\n", label)
	}
}

// newPassword reads a password and, on a terminal, asks for it twice.
func (p *prompter) newPassword() (string, error) {
	password, err := p.password("Password")
	if err != nil {
		return "", err
	}
	if _, interactive := p.terminalFd(); !interactive {
		return password, nil
	}
	confirm, err := p.password("Confirm password")
	if err != nil {
		return "", err
	}
	if confirm != password {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}
