package chat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/nerrad567/graychat/internal/infrastructure/config"
)

// Prompter asks the startup questions on an interactive console.
//
// Every method takes a preset: a non-empty preset (from config or the
// environment) is returned without asking.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer

	// fd is the terminal file descriptor behind in, or -1.
	fd int
}

// NewPrompter returns a Prompter reading from in and writing questions to out.
// Secret input is hidden when in is a terminal.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &Prompter{in: bufio.NewReader(in), out: out, fd: fd}
}

// Reader returns the buffered input. Hand it to the Loop so no typed-ahead
// input is lost between prompting and chatting.
func (p *Prompter) Reader() *bufio.Reader {
	return p.in
}

// Line asks for a single trimmed line of text.
func (p *Prompter) Line(question, preset string) (string, error) {
	if preset != "" {
		return preset, nil
	}
	fmt.Fprintf(p.out, "%s: ", question)
	line, err := p.readLine()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Port asks for a broker port, repeating the question until the answer is
// an integer in 1..65535.
func (p *Prompter) Port(question string, preset int) (int, error) {
	if preset != 0 {
		return preset, nil
	}
	for {
		fmt.Fprintf(p.out, "%s: ", question)
		line, err := p.readLine()
		if err != nil {
			return 0, err
		}
		port, err := config.ParsePort(line)
		if err == nil {
			return port, nil
		}
		fmt.Fprintln(p.out, "Port must be a number between 1 and 65535.")
	}
}

// Secret asks for a secret. Input is not echoed on a terminal.
// Only the line terminator is removed; surrounding spaces are kept.
func (p *Prompter) Secret(question, preset string) (string, error) {
	if preset != "" {
		return preset, nil
	}
	fmt.Fprintf(p.out, "%s: ", question)

	if p.fd >= 0 {
		b, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return string(b), nil
	}
	return p.readLine()
}

// readLine reads one line without its terminator. A final unterminated line
// is returned as is; end of input with nothing read is ErrInputClosed.
func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrInputClosed
		}
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
