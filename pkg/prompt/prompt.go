// Package prompt implements the interactive confirmation collaborator:
// a single-character choice with a stated default. The pipeline blocks
// on it indefinitely; there is no timeout.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Prompter asks the operator to pick one of a set of single-character
// options. The uppercase option, if any, is the default and is chosen on
// empty input.
type Prompter interface {
	Choice(question string, options string) (rune, error)
}

// Console prompts on the given reader/writer pair, re-asking until the
// answer is one of the options.
type Console struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsole creates a prompter reading from in and writing to out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

// NewStdConsole creates a prompter on stdin/stdout.
func NewStdConsole() *Console {
	return NewConsole(os.Stdin, os.Stdout)
}

// Choice implements Prompter.
func (c *Console) Choice(question string, options string) (rune, error) {
	var defaultOption rune
	for _, r := range options {
		if r >= 'A' && r <= 'Z' {
			defaultOption = r
			break
		}
	}

	optionString := strings.Join(strings.Split(options, ""), "/")

	for {
		fmt.Fprintf(c.out, "%s [%s] ", question, optionString)

		answer, err := c.in.ReadString('\n')
		if err != nil && answer == "" {
			return 0, fmt.Errorf("could not read answer: %w", err)
		}
		answer = strings.ToLower(strings.TrimSpace(answer))

		if answer == "" && defaultOption != 0 {
			return toLower(defaultOption), nil
		}
		if len(answer) == 1 && strings.ContainsRune(strings.ToLower(options), rune(answer[0])) {
			return rune(answer[0]), nil
		}

		fmt.Fprintf(c.out, "Invalid answer, please choose one of [%s].\n", optionString)
	}
}

// Static always answers with the default option. It backs
// non-interactive runs.
type Static struct{}

// Choice implements Prompter. With no uppercase default among the
// options it answers the first option.
func (Static) Choice(question string, options string) (rune, error) {
	for _, r := range options {
		if r >= 'A' && r <= 'Z' {
			return toLower(r), nil
		}
	}
	for _, r := range options {
		return r, nil
	}
	return 0, fmt.Errorf("no options given")
}

// YesNo asks a yes/no question with the given default answer.
func YesNo(p Prompter, question string, defaultAnswer bool) (bool, error) {
	options := "yN"
	if defaultAnswer {
		options = "Yn"
	}

	answer, err := p.Choice(question, options)
	if err != nil {
		return false, err
	}
	return answer == 'y', nil
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}
