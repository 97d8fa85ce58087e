package template

import "fmt"

// Parser turns raw template lines into a block tree.
type Parser struct {
	opts Options
}

// New creates a parser for the given syntax options.
func New(opts Options) *Parser {
	return &Parser{opts: opts}
}

// node is one element of a block: a literal line or a nested if-block.
type node interface {
	isNode()
}

type literalNode struct {
	number int
	chunks []Chunk
}

func (literalNode) isNode() {}

// section is one branch of an IfBlock. A section without a condition is
// the else branch; the parser guarantees it is last.
type section struct {
	cond    string
	hasCond bool
	number  int
	body    *Block
}

type ifBlockNode struct {
	sections []section
}

func (*ifBlockNode) isNode() {}

// Block is an ordered sequence of literal lines and if-blocks.
type Block struct {
	nodes []node
}

// Parse classifies every raw line, then groups the lines into a nested
// block tree. It fails with a line-numbered ParseError on malformed
// input.
func (p *Parser) Parse(rawLines []string) (*Block, error) {
	lines := make([]line, 0, len(rawLines))
	for i, text := range rawLines {
		ln, err := classifyLine(text, i+1, p.opts)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ln)
	}

	pos := 0
	block, err := parseBlock(lines, &pos)
	if err != nil {
		return nil, err
	}

	// parseBlock stops at the first control line it cannot own. At the
	// top level there is no enclosing if-block, so a leftover line is a
	// stray elif/else/end.
	if pos < len(lines) {
		stray := lines[pos]
		return nil, &ParseError{
			Line: stray.number,
			Msg:  fmt.Sprintf("unexpected %s without a matching 'if'", stray.kind),
		}
	}

	return block, nil
}

// parseBlock consumes literal lines and whole if-blocks. On an
// elif/else/end line it stops without consuming: closing the enclosure
// is the caller's job, which is how nesting terminates.
func parseBlock(lines []line, pos *int) (*Block, error) {
	block := &Block{}

	for *pos < len(lines) {
		next := lines[*pos]
		switch next.kind {
		case lineLiteral:
			*pos++
			block.nodes = append(block.nodes, literalNode{number: next.number, chunks: next.chunks})
		case lineIf:
			ifBlock, err := parseIfBlock(lines, pos)
			if err != nil {
				return nil, err
			}
			block.nodes = append(block.nodes, ifBlock)
		default:
			return block, nil
		}
	}

	return block, nil
}

// parseIfBlock consumes an 'if' line, its branch, zero or more 'elif'
// branches, an optional trailing 'else' branch, and the terminating
// 'end'.
func parseIfBlock(lines []line, pos *int) (*ifBlockNode, error) {
	ifLine := lines[*pos]
	*pos++

	body, err := parseBlock(lines, pos)
	if err != nil {
		return nil, err
	}
	ib := &ifBlockNode{
		sections: []section{{cond: ifLine.arg, hasCond: true, number: ifLine.number, body: body}},
	}

	for *pos < len(lines) && lines[*pos].kind == lineElif {
		elifLine := lines[*pos]
		*pos++
		body, err := parseBlock(lines, pos)
		if err != nil {
			return nil, err
		}
		ib.sections = append(ib.sections, section{cond: elifLine.arg, hasCond: true, number: elifLine.number, body: body})
	}

	if *pos < len(lines) && lines[*pos].kind == lineElse {
		elseLine := lines[*pos]
		*pos++
		body, err := parseBlock(lines, pos)
		if err != nil {
			return nil, err
		}
		ib.sections = append(ib.sections, section{number: elseLine.number, body: body})
	}

	if *pos >= len(lines) {
		return nil, &ParseError{
			Line: ifLine.number,
			Msg:  "expected 'end' statement, found end of input",
		}
	}
	if next := lines[*pos]; next.kind != lineEnd {
		return nil, &ParseError{
			Line: next.number,
			Msg:  fmt.Sprintf("expected 'end' statement, found %s", next.kind),
		}
	}
	*pos++

	return ib, nil
}
