// Package prompt drives the operator-facing questions of the interactive
// installer. It reads line by line from any reader so tests can script answers.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Choice is a top-level menu selection.
type Choice int

const (
	ChoiceInstall Choice = iota + 1
	ChoiceUninstall
	ChoiceExit
)

type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Menu shows the main menu until a valid entry is given. End of input exits.
func (p *Prompter) Menu() Choice {
	for {
		fmt.Fprintln(p.out, "1) Install")
		fmt.Fprintln(p.out, "2) Uninstall")
		fmt.Fprintln(p.out, "3) Exit")
		fmt.Fprint(p.out, "Select an option: ")

		line, err := p.readLine()
		if err != nil {
			fmt.Fprintln(p.out)
			return ChoiceExit
		}
		switch line {
		case "1":
			return ChoiceInstall
		case "2":
			return ChoiceUninstall
		case "3":
			return ChoiceExit
		}
		fmt.Fprintf(p.out, "Invalid option %q\n", line)
	}
}

// Ask returns the answer, or def when the operator just presses enter.
func (p *Prompter) Ask(question, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}
	line, err := p.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

// AskInt is Ask for a positive integer; it repeats the question on bad input.
func (p *Prompter) AskInt(question string, def int) (int, error) {
	for {
		raw, err := p.Ask(question, strconv.Itoa(def))
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(raw)
		if err == nil && n > 0 {
			return n, nil
		}
		fmt.Fprintf(p.out, "%q is not a valid number\n", raw)
	}
}

// Confirm asks a y/n question. Anything but yes, including end of input, is no.
func (p *Prompter) Confirm(question string) bool {
	fmt.Fprintf(p.out, "%s (y/n): ", question)
	line, err := p.readLine()
	if err != nil {
		return false
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true
	}
	return false
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
