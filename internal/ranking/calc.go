package ranking

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// evalExpr evaluates a small arithmetic expression supporting + - * / % ^,
// unary minus, parentheses, and decimal literals. The whole input must be
// consumed.
func evalExpr(input string) (float64, error) {
	p := &exprParser{input: strings.TrimSpace(input)}
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected %q at position %d", p.input[p.pos], p.pos)
	}
	return v, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) peek() (byte, bool) {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

// expr := term (('+'|'-') term)*
func (p *exprParser) expr() (float64, error) {
	v, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		c, ok := p.peek()
		if !ok || (c != '+' && c != '-') {
			return v, nil
		}
		p.pos++
		rhs, err := p.term()
		if err != nil {
			return 0, err
		}
		if c == '+' {
			v += rhs
		} else {
			v -= rhs
		}
	}
}

// term := power (('*'|'/'|'%') power)*
func (p *exprParser) term() (float64, error) {
	v, err := p.power()
	if err != nil {
		return 0, err
	}
	for {
		c, ok := p.peek()
		if !ok || (c != '*' && c != '/' && c != '%') {
			return v, nil
		}
		p.pos++
		rhs, err := p.power()
		if err != nil {
			return 0, err
		}
		switch c {
		case '*':
			v *= rhs
		case '/':
			if rhs == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v /= rhs
		case '%':
			if rhs == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v = math.Mod(v, rhs)
		}
	}
}

// power := unary ('^' power)?  (right associative)
func (p *exprParser) power() (float64, error) {
	v, err := p.unary()
	if err != nil {
		return 0, err
	}
	c, ok := p.peek()
	if !ok || c != '^' {
		return v, nil
	}
	p.pos++
	exp, err := p.power()
	if err != nil {
		return 0, err
	}
	return math.Pow(v, exp), nil
}

// unary := '-' unary | primary
func (p *exprParser) unary() (float64, error) {
	c, ok := p.peek()
	if ok && c == '-' {
		p.pos++
		v, err := p.unary()
		if err != nil {
			return 0, err
		}
		return -v, nil
	}
	return p.primary()
}

// primary := number | '(' expr ')'
func (p *exprParser) primary() (float64, error) {
	c, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("unexpected end of expression")
	}

	if c == '(' {
		p.pos++
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		c, ok = p.peek()
		if !ok || c != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}

	start := p.pos
	for p.pos < len(p.input) && (isDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	if p.pos == start {
		return 0, fmt.Errorf("unexpected %q at position %d", c, p.pos)
	}
	v, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", p.input[start:p.pos])
	}
	return v, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// formatValue renders a calculator result without float noise: near-integer
// values drop the fraction, everything else is rounded to ten decimals.
func formatValue(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	rounded := math.Round(v*1e10) / 1e10
	if rounded == math.Trunc(rounded) && math.Abs(rounded) < 1e15 {
		return strconv.FormatFloat(math.Trunc(rounded), 'f', 0, 64)
	}
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}
