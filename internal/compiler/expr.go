package compiler

import (
	"fmt"
	"strings"

	"github.com/cbegin/synthgraph-go/internal/patch"
)

// inboundSource pairs an inbound connection with the emitted variable that
// carries its signal.
type inboundSource struct {
	conn     patch.Connection
	variable string
}

// renderMergedInput resolves the value expression for an input port with
// inbound connections, per the merge rules: a single unadorned connection
// passes its variable through; otherwise tokens are bound (named bindings
// first, then auto-assigned in<N> slots) and either the configured formula or
// a left-to-right sum is rendered.
func renderMergedInput(key patch.PortKey, sources []inboundSource, formula *patch.Formula, diags *Diagnostics) (string, bool) {
	if len(sources) == 1 && formula == nil {
		return sources[0].variable, true
	}

	tokens, ok := bindTokens(key, sources, formula, diags)
	if !ok {
		return "", false
	}

	if formula != nil && formula.Expression != "" {
		return renderFormula(key, formula.Expression, tokens.byName, diags)
	}

	// Default merge: sum every bound source in connection order. A single
	// source renders as itself.
	if len(tokens.ordered) == 1 {
		return tokens.ordered[0], true
	}
	parts := make([]string, len(tokens.ordered))
	for i, variable := range tokens.ordered {
		parts[i] = "(" + variable + ")"
	}
	return strings.Join(parts, " + "), true
}

type boundTokens struct {
	byName  map[string]string // token -> source variable
	ordered []string          // source variables in connection order
}

// bindTokens builds the token table for a merge: each formula input must name
// a valid identifier and an existing inbound edge, and every token and source
// may be used at most once. Sources left unnamed get the lowest free in<N>.
func bindTokens(key patch.PortKey, sources []inboundSource, formula *patch.Formula, diags *Diagnostics) (boundTokens, bool) {
	bound := boundTokens{byName: map[string]string{}}
	used := make([]bool, len(sources))
	ok := true

	if formula != nil {
		for _, input := range formula.Inputs {
			if !isIdentifier(input.Token) {
				diags.addf("invalid formula token '%s' for input '%s': tokens must be identifiers",
					input.Token, key)
				ok = false
				continue
			}
			if _, dup := bound.byName[input.Token]; dup {
				diags.addf("formula token '%s' bound more than once for input '%s'", input.Token, key)
				ok = false
				continue
			}
			idx := -1
			for i, src := range sources {
				if src.conn.FromNode == input.FromNode && src.conn.FromPort == input.FromPort {
					idx = i
					break
				}
			}
			if idx < 0 {
				diags.addf("formula token '%s' for input '%s' references missing connection %s.%s",
					input.Token, key, input.FromNode, input.FromPort)
				ok = false
				continue
			}
			if used[idx] {
				diags.addf("connection %s.%s bound to more than one formula token for input '%s'",
					input.FromNode, input.FromPort, key)
				ok = false
				continue
			}
			used[idx] = true
			bound.byName[input.Token] = sources[idx].variable
		}
	}
	if !ok {
		return boundTokens{}, false
	}

	next := 1
	for i, src := range sources {
		if !used[i] {
			var auto string
			for {
				auto = fmt.Sprintf("in%d", next)
				next++
				if _, taken := bound.byName[auto]; !taken {
					break
				}
			}
			bound.byName[auto] = src.variable
		}
		bound.ordered = append(bound.ordered, src.variable)
	}
	return bound, true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

type tokenKind int

const (
	tokenNumber tokenKind = iota + 1
	tokenIdent
	tokenOp
	tokenLParen
	tokenRParen
)

type exprToken struct {
	kind tokenKind
	text string
	pos  int
}

func tokenizeFormula(src string, key patch.PortKey, diags *Diagnostics) ([]exprToken, bool) {
	tokens := make([]exprToken, 0, 16)
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '+' || c == '-' || c == '*' || c == '/':
			tokens = append(tokens, exprToken{kind: tokenOp, text: string(c), pos: i})
			i++
		case c == '(':
			tokens = append(tokens, exprToken{kind: tokenLParen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, exprToken{kind: tokenRParen, text: ")", pos: i})
			i++
		case c >= '0' && c <= '9' || c == '.':
			start := i
			digits := 0
			dots := 0
			for i < len(src) {
				d := src[i]
				if d >= '0' && d <= '9' {
					digits++
					i++
					continue
				}
				if d == '.' && dots == 0 {
					dots++
					i++
					continue
				}
				break
			}
			if digits == 0 {
				diags.addf("unexpected character '.' at position %d in merge expression for input '%s'", start, key)
				return nil, false
			}
			tokens = append(tokens, exprToken{kind: tokenNumber, text: src[start:i], pos: start})
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_':
			start := i
			for i < len(src) {
				d := src[i]
				if d >= 'a' && d <= 'z' || d >= 'A' && d <= 'Z' || d >= '0' && d <= '9' || d == '_' {
					i++
					continue
				}
				break
			}
			tokens = append(tokens, exprToken{kind: tokenIdent, text: src[start:i], pos: start})
		default:
			diags.addf("unexpected character '%c' at position %d in merge expression for input '%s'", c, i, key)
			return nil, false
		}
	}
	if len(tokens) == 0 {
		diags.addf("empty merge expression for input '%s'", key)
		return nil, false
	}
	return tokens, true
}

// renderFormula parses a merge expression with standard precedence and
// renders it with every binary operation parenthesized and every identifier
// substituted (in parentheses) by its bound source variable, keeping the
// emitted program rate-correct regardless of the surrounding template text.
func renderFormula(key patch.PortKey, src string, bindings map[string]string, diags *Diagnostics) (string, bool) {
	tokens, ok := tokenizeFormula(src, key, diags)
	if !ok {
		return "", false
	}
	p := &formulaParser{tokens: tokens, bindings: bindings, key: key, diags: diags}
	rendered, ok := p.parseExpr()
	if !ok {
		return "", false
	}
	if p.pos < len(p.tokens) {
		t := p.tokens[p.pos]
		diags.addf("unexpected token '%s' at position %d after merge expression for input '%s'", t.text, t.pos, key)
		return "", false
	}
	return rendered, true
}

type formulaParser struct {
	tokens   []exprToken
	pos      int
	bindings map[string]string
	key      patch.PortKey
	diags    *Diagnostics
}

func (p *formulaParser) peek() (exprToken, bool) {
	if p.pos >= len(p.tokens) {
		return exprToken{}, false
	}
	return p.tokens[p.pos], true
}

// expr := term (('+'|'-') term)*
func (p *formulaParser) parseExpr() (string, bool) {
	left, ok := p.parseTerm()
	if !ok {
		return "", false
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokenOp || (t.text != "+" && t.text != "-") {
			return left, true
		}
		p.pos++
		right, ok := p.parseTerm()
		if !ok {
			return "", false
		}
		left = "(" + left + " " + t.text + " " + right + ")"
	}
}

// term := factor (('*'|'/') factor)*
func (p *formulaParser) parseTerm() (string, bool) {
	left, ok := p.parseFactor()
	if !ok {
		return "", false
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokenOp || (t.text != "*" && t.text != "/") {
			return left, true
		}
		p.pos++
		right, ok := p.parseFactor()
		if !ok {
			return "", false
		}
		left = "(" + left + " " + t.text + " " + right + ")"
	}
}

// factor := ('+'|'-') factor | NUMBER | IDENT | '(' expr ')'
func (p *formulaParser) parseFactor() (string, bool) {
	t, ok := p.peek()
	if !ok {
		p.diags.addf("merge expression for input '%s' ends unexpectedly", p.key)
		return "", false
	}
	switch t.kind {
	case tokenOp:
		if t.text != "+" && t.text != "-" {
			p.diags.addf("unexpected token '%s' at position %d in merge expression for input '%s'", t.text, t.pos, p.key)
			return "", false
		}
		p.pos++
		operand, ok := p.parseFactor()
		if !ok {
			return "", false
		}
		if t.text == "+" {
			return operand, true
		}
		return "(-" + operand + ")", true
	case tokenNumber:
		p.pos++
		return t.text, true
	case tokenIdent:
		variable, bound := p.bindings[t.text]
		if !bound {
			p.diags.addf("unknown input token '%s' in merge expression for input '%s'", t.text, p.key)
			return "", false
		}
		p.pos++
		return "(" + variable + ")", true
	case tokenLParen:
		p.pos++
		inner, ok := p.parseExpr()
		if !ok {
			return "", false
		}
		closing, present := p.peek()
		if !present || closing.kind != tokenRParen {
			p.diags.addf("unmatched '(' at position %d in merge expression for input '%s'", t.pos, p.key)
			return "", false
		}
		p.pos++
		return inner, true
	default:
		p.diags.addf("unexpected token '%s' at position %d in merge expression for input '%s'", t.text, t.pos, p.key)
		return "", false
	}
}
