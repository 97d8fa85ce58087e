// Package template implements stencil's line-oriented template language:
// literal lines with inline expression substitution, and if/elif/else/end
// control lines grouped into nested blocks by recursive descent.
package template

import (
	"fmt"
	"strings"
)

// ParseError is returned for any malformed template input. Line numbers
// are 1-based.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Options selects the statement initiator and the inline expression
// delimiters a parser recognizes.
type Options struct {
	StatementPrefix string
	ExprOpen        string
	ExprClose       string
}

// DefaultOptions returns the standard syntax: "#" statements and
// "{{ ... }}" expressions.
func DefaultOptions() Options {
	return Options{StatementPrefix: "#", ExprOpen: "{{", ExprClose: "}}"}
}

// Chunk is one piece of a literal line: either verbatim text or the
// inner source of an inline expression. Text may be empty.
type Chunk struct {
	Text string
	Expr bool
}

type lineKind int

const (
	lineLiteral lineKind = iota
	lineIf
	lineElif
	lineElse
	lineEnd
)

func (k lineKind) String() string {
	switch k {
	case lineIf:
		return "'if' statement"
	case lineElif:
		return "'elif' statement"
	case lineElse:
		return "'else' statement"
	case lineEnd:
		return "'end' statement"
	default:
		return "line"
	}
}

// line is a classified raw line. Classification is independent of
// nesting: a line is an if/elif/else/end statement or a literal, no
// matter where it appears.
type line struct {
	kind   lineKind
	number int
	arg    string  // condition source for if/elif
	chunks []Chunk // literal lines only
}

func classifyLine(text string, number int, opts Options) (line, error) {
	trimmed := strings.TrimSpace(text)

	if arg, ok := statementArg(trimmed, opts.StatementPrefix, "if"); ok {
		return line{kind: lineIf, number: number, arg: arg}, nil
	}
	if arg, ok := statementArg(trimmed, opts.StatementPrefix, "elif"); ok {
		return line{kind: lineElif, number: number, arg: arg}, nil
	}
	if trimmed == opts.StatementPrefix+" else" {
		return line{kind: lineElse, number: number}, nil
	}
	if trimmed == opts.StatementPrefix+" end" {
		return line{kind: lineEnd, number: number}, nil
	}

	chunks, err := splitChunks(text, number, opts)
	if err != nil {
		return line{}, err
	}
	return line{kind: lineLiteral, number: number, chunks: chunks}, nil
}

// statementArg matches a "<prefix> <keyword>" statement and returns its
// trimmed argument. The keyword must be followed by whitespace or end of
// line, so "# iffy" is a literal, not an 'if'.
func statementArg(trimmed, prefix, keyword string) (string, bool) {
	head := prefix + " " + keyword
	if !strings.HasPrefix(trimmed, head) {
		return "", false
	}
	rest := trimmed[len(head):]
	if rest != "" && !strings.HasPrefix(rest, " ") && !strings.HasPrefix(rest, "\t") {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// splitChunks splits a literal line on the expression delimiters. An
// opening delimiter with no matching close before end of line is a parse
// error. A line with no delimiters yields a single verbatim chunk, which
// for an empty line is the empty chunk.
func splitChunks(text string, number int, opts Options) ([]Chunk, error) {
	var chunks []Chunk

	i := 0
	for i < len(text) {
		od := strings.Index(text[i:], opts.ExprOpen)
		if od < 0 {
			chunks = append(chunks, Chunk{Text: text[i:]})
			i = len(text)
			break
		}
		od += i
		odEnd := od + len(opts.ExprOpen)

		cd := strings.Index(text[odEnd:], opts.ExprClose)
		if cd < 0 {
			return nil, &ParseError{
				Line: number,
				Msg:  fmt.Sprintf("no closing delimiter %q after %q", opts.ExprClose, text[:odEnd]),
			}
		}
		cd += odEnd

		chunks = append(chunks, Chunk{Text: text[i:od]})
		chunks = append(chunks, Chunk{Text: text[odEnd:cd], Expr: true})
		i = cd + len(opts.ExprClose)
	}

	if len(chunks) == 0 {
		chunks = append(chunks, Chunk{})
	}

	return chunks, nil
}
