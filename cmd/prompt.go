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

// prompter reads passwords without echo on a terminal and line by line
// otherwise, so they can be piped in.
type prompter struct {
	in  *os.File
	out io.Writer
	r   *bufio.Reader
}

func newPrompter(in *os.File, out io.Writer) *prompter {
	return &prompter{in: in, out: out, r: bufio.NewReader(in)}
}

func (p *prompter) Password(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	defer fmt.Fprintln(p.out)

	if term.IsTerminal(int(p.in.Fd())) {
		pw, err := term.ReadPassword(int(p.in.Fd()))
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := p.r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
