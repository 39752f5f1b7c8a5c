// Package prompt implements the interactive confirmation gate for
// migration updates carrying an x-prompt.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// StdinPrompter asks yes/no questions on the terminal. An empty answer
// accepts.
type StdinPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewStdinPrompter creates a prompter over stdin/stdout.
func NewStdinPrompter() *StdinPrompter {
	return New(os.Stdin, os.Stdout)
}

// New creates a prompter over the given reader and writer.
func New(in io.Reader, out io.Writer) *StdinPrompter {
	return &StdinPrompter{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// Confirm asks the question and reads a y/n answer.
func (p *StdinPrompter) Confirm(message string) (bool, error) {
	if _, err := fmt.Fprintf(p.out, "? %s (Y/n) ", message); err != nil {
		return false, err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	switch answer {
	case "", "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// FakePrompter answers from a queue for testing and records the
// questions it was asked.
type FakePrompter struct {
	answers []bool
	asked   []string
}

// NewFakePrompter creates a FakePrompter with queued answers. When the
// queue runs dry it answers yes.
func NewFakePrompter(answers ...bool) *FakePrompter {
	return &FakePrompter{answers: answers}
}

// Asked returns the questions asked so far.
func (p *FakePrompter) Asked() []string {
	return p.asked
}

// Confirm pops the next queued answer.
func (p *FakePrompter) Confirm(message string) (bool, error) {
	p.asked = append(p.asked, message)
	if len(p.answers) == 0 {
		return true, nil
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, nil
}
