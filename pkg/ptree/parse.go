package ptree

import (
	"fmt"
	"strings"

	"github.com/logflow/ptalign/pkg/errors"
)

// Parse reads a tree in the textual notation produced by Tree.String:
//
//	->( 'A', X( 'B', tau ), *( 'C', 'D' ), +( 'E', 'F' ), O( 'G', 'H' ) )
//
// Labels are single- or double-quoted; a backslash escapes the quote
// character. Whitespace between tokens is ignored.
func Parse(s string) (*Tree, error) {
	p := &treeParser{src: s}
	root, err := p.node()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected trailing input %q", p.src[p.pos:])
	}
	return NewTree(root)
}

// MustParse is Parse for statically known notation; it panics on error.
func MustParse(s string) *Tree {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

type treeParser struct {
	src string
	pos int
}

func (p *treeParser) errorf(format string, args ...interface{}) error {
	return errors.ParseError("tree", p.pos, fmt.Errorf(format, args...))
}

func (p *treeParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *treeParser) node() (*Node, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, p.errorf("unexpected end of input")
	}

	rest := p.src[p.pos:]
	switch {
	case rest[0] == '\'' || rest[0] == '"':
		label, err := p.quoted()
		if err != nil {
			return nil, err
		}
		return NewLeaf(label), nil
	case strings.HasPrefix(rest, "tau"):
		p.pos += len("tau")
		return NewSilent(), nil
	case strings.HasPrefix(rest, "->"):
		p.pos += 2
		return p.operator(Sequence)
	case rest[0] == 'X':
		p.pos++
		return p.operator(Xor)
	case rest[0] == '+':
		p.pos++
		return p.operator(Parallel)
	case rest[0] == '*':
		p.pos++
		return p.operator(Loop)
	case rest[0] == 'O':
		p.pos++
		return p.operator(Or)
	}
	return nil, p.errorf("unexpected character %q", rest[0])
}

func (p *treeParser) operator(kind Kind) (*Node, error) {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != '(' {
		return nil, p.errorf("expected '(' after %s", kind)
	}
	p.pos++

	var children []*Node
	for {
		p.skipSpace()
		if p.pos < len(p.src) && p.src[p.pos] == ')' && len(children) == 0 {
			p.pos++
			return NewOperator(kind), nil
		}
		child, err := p.node()
		if err != nil {
			return nil, err
		}
		children = append(children, child)

		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated %s operator", kind)
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return NewOperator(kind, children...), nil
		default:
			return nil, p.errorf("expected ',' or ')' but found %q", p.src[p.pos])
		}
	}
}

func (p *treeParser) quoted() (string, error) {
	quote := p.src[p.pos]
	p.pos++

	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '\\' && p.pos+1 < len(p.src):
			sb.WriteByte(p.src[p.pos+1])
			p.pos += 2
		case c == quote:
			p.pos++
			return sb.String(), nil
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return "", p.errorf("unterminated label")
}
