package nodes

import (
	"fmt"
	"strconv"
	"strings"
)

// exprProgram is a parsed algebra expression (spec §4.4 "Algebra"): a
// small infix grammar over constants, the sample variable ("x"/"X"), and
// the operator set `+ - * / % & | << >> && || == != < <= > >= ? :` with
// unary `+ - ~`. Grounded on original_source/src/calculator.hpp's AST
// shape (an operand plus a left-to-right list of (operator, operand)
// pairs) but implemented as a conventional Pratt/precedence-climbing
// parser rather than a boost::spirit grammar, since no arithmetic-DSL
// parsing library appears anywhere in the retrieval pack for this
// domain-specific grammar (see DESIGN.md).
type exprProgram struct {
	root exprNode
}

type exprNode interface {
	eval(x float64) float64
}

type exprConst float64

func (c exprConst) eval(float64) float64 { return float64(c) }

type exprVar struct{}

func (exprVar) eval(x float64) float64 { return x }

type exprUnary struct {
	op   string
	rhs  exprNode
}

func (u exprUnary) eval(x float64) float64 {
	v := u.rhs.eval(x)
	switch u.op {
	case "-":
		return -v
	case "+":
		return v
	case "~":
		return float64(^int64(v))
	}
	return v
}

type exprBinary struct {
	op       string
	lhs, rhs exprNode
}

func (b exprBinary) eval(x float64) float64 {
	switch b.op {
	case "&&":
		return boolToFloat(b.lhs.eval(x) != 0 && b.rhs.eval(x) != 0)
	case "||":
		return boolToFloat(b.lhs.eval(x) != 0 || b.rhs.eval(x) != 0)
	}
	l, r := b.lhs.eval(x), b.rhs.eval(x)
	switch b.op {
	case "+":
		return l + r
	case "-":
		return l - r
	case "*":
		return l * r
	case "/":
		return l / r
	case "%":
		return float64(int64(l) % int64(r))
	case "&":
		return float64(int64(l) & int64(r))
	case "|":
		return float64(int64(l) | int64(r))
	case "<<":
		return float64(int64(l) << uint64(int64(r)))
	case ">>":
		return float64(int64(l) >> uint64(int64(r)))
	case "==":
		return boolToFloat(l == r)
	case "!=":
		return boolToFloat(l != r)
	case "<":
		return boolToFloat(l < r)
	case "<=":
		return boolToFloat(l <= r)
	case ">":
		return boolToFloat(l > r)
	case ">=":
		return boolToFloat(l >= r)
	}
	return 0
}

type exprTernary struct {
	cond, then, els exprNode
}

func (t exprTernary) eval(x float64) float64 {
	if t.cond.eval(x) != 0 {
		return t.then.eval(x)
	}
	return t.els.eval(x)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// eval evaluates the program with the sample variable bound to x.
func (p exprProgram) eval(x float64) float64 { return p.root.eval(x) }

type tokKind uint8

const (
	tokNum tokKind = iota
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokQuestion
	tokColon
	tokEOF
)

type token struct {
	kind tokKind
	text string
	num  float64
}

func lexExpr(src string) ([]token, error) {
	var toks []token
	i, n := 0, len(src)
	for i < n {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen})
			i++
		case c == '?':
			toks = append(toks, token{kind: tokQuestion})
			i++
		case c == ':':
			toks = append(toks, token{kind: tokColon})
			i++
		case c >= '0' && c <= '9' || (c == '.' && i+1 < n && src[i+1] >= '0' && src[i+1] <= '9'):
			j := i
			if c == '0' && i+1 < n && (src[i+1] == 'x' || src[i+1] == 'X') {
				j = i + 2
				for j < n && isHexDigit(src[j]) {
					j++
				}
				v, err := strconv.ParseInt(src[i+2:j], 16, 64)
				if err != nil {
					return nil, fmt.Errorf("nodes: bad hex literal %q", src[i:j])
				}
				toks = append(toks, token{kind: tokNum, num: float64(v)})
				i = j
				continue
			}
			for j < n && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			v, err := strconv.ParseFloat(src[i:j], 64)
			if err != nil {
				return nil, fmt.Errorf("nodes: bad numeric literal %q", src[i:j])
			}
			toks = append(toks, token{kind: tokNum, num: v})
			i = j
		case isIdentStart(c):
			j := i
			for j < n && isIdentCont(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:j]})
			i = j
		default:
			op, width, err := lexOp(src[i:])
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokOp, text: op})
			i += width
		}
	}
	toks = append(toks, token{kind: tokEOF})
	return toks, nil
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

var multiCharOps = []string{"<<", ">>", "&&", "||", "==", "!=", "<=", ">="}

func lexOp(s string) (string, int, error) {
	for _, op := range multiCharOps {
		if strings.HasPrefix(s, op) {
			return op, len(op), nil
		}
	}
	switch s[0] {
	case '+', '-', '*', '/', '%', '&', '|', '<', '>', '~':
		return string(s[0]), 1, nil
	}
	return "", 0, fmt.Errorf("nodes: unexpected character %q in algebra expression", s[0])
}

// parseExpr parses src into an exprProgram.
func parseExpr(src string) (exprProgram, error) {
	toks, err := lexExpr(src)
	if err != nil {
		return exprProgram{}, err
	}
	p := &exprParser{toks: toks}
	node, err := p.parseTernary()
	if err != nil {
		return exprProgram{}, err
	}
	if p.peek().kind != tokEOF {
		return exprProgram{}, fmt.Errorf("nodes: unexpected trailing input in algebra expression at %q", p.peek().text)
	}
	return exprProgram{root: node}, nil
}

type exprParser struct {
	toks []token
	pos  int
}

func (p *exprParser) peek() token { return p.toks[p.pos] }
func (p *exprParser) next() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *exprParser) parseTernary() (exprNode, error) {
	cond, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokQuestion {
		return cond, nil
	}
	p.next()
	then, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokColon {
		return nil, fmt.Errorf("nodes: expected ':' in ternary algebra expression")
	}
	p.next()
	els, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return exprTernary{cond: cond, then: then, els: els}, nil
}

// precedence climbing over the binary operator set, lowest to highest:
// || , && , | , & , == != , < <= > >= , << >> , + - , * / %
var precLevels = [][]string{
	{"||"},
	{"&&"},
	{"|"},
	{"&"},
	{"==", "!="},
	{"<", "<=", ">", ">="},
	{"<<", ">>"},
	{"+", "-"},
	{"*", "/", "%"},
}

func (p *exprParser) parseBinary(level int) (exprNode, error) {
	if level >= len(precLevels) {
		return p.parseUnary()
	}
	lhs, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || !containsOp(precLevels[level], t.text) {
			return lhs, nil
		}
		p.next()
		rhs, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		lhs = exprBinary{op: t.text, lhs: lhs, rhs: rhs}
	}
}

func containsOp(ops []string, op string) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

func (p *exprParser) parseUnary() (exprNode, error) {
	t := p.peek()
	if t.kind == tokOp && (t.text == "+" || t.text == "-" || t.text == "~") {
		p.next()
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return exprUnary{op: t.text, rhs: rhs}, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (exprNode, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		return exprConst(t.num), nil
	case tokIdent:
		if t.text == "X" || t.text == "x" {
			return exprVar{}, nil
		}
		return nil, fmt.Errorf("nodes: unknown identifier %q in algebra expression", t.text)
	case tokLParen:
		node, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("nodes: expected ')' in algebra expression")
		}
		p.next()
		return node, nil
	default:
		return nil, fmt.Errorf("nodes: unexpected token in algebra expression")
	}
}
