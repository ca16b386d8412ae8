package parser

import "fmt"

// WHERE / HAVING grammar:
//
//	expr    := andExpr ("OR" andExpr)*
//	andExpr := term ("AND" term)*
//	term    := operand BETWEEN literal AND literal
//	         | operand IN "(" literal ("," literal)* ")"
//	         | operand LIKE literal
//	         | operand op operand          op: = != <> < > <= >=
//
// AND binds tighter than OR; both are left-associative. Parentheses are not
// part of the grammar. Aggregates are only allowed in HAVING.

func (p *parser) parseExpr(allowAgg bool) (Expr, error) {
	left, err := p.parseAnd(allowAgg)
	if err != nil {
		return nil, err
	}
	for p.accept("OR") {
		right, err := p.parseAnd(allowAgg)
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd(allowAgg bool) (Expr, error) {
	left, err := p.parseTerm(allowAgg)
	if err != nil {
		return nil, err
	}
	for p.accept("AND") {
		right, err := p.parseTerm(allowAgg)
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseTerm(allowAgg bool) (Expr, error) {
	if p.peek().is("(") {
		return nil, fmt.Errorf("parentheses are not supported in conditions")
	}
	left, err := p.parseOperand(allowAgg)
	if err != nil {
		return nil, err
	}

	switch {
	case p.accept("BETWEEN"):
		lo, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		if err := p.expect("AND"); err != nil {
			return nil, err
		}
		hi, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &BetweenExpr{Target: left, Low: lo, High: hi}, nil

	case p.accept("IN"):
		if err := p.expect("("); err != nil {
			return nil, err
		}
		in := &InExpr{Target: left}
		for {
			lit, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			in.List = append(in.List, lit)
			if p.accept(",") {
				continue
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return in, nil
		}

	case p.accept("LIKE"):
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &CompareExpr{Op: OpLike, Left: left, Right: lit}, nil
	}

	t := p.peek()
	var op CompareOp
	switch {
	case t.is("="):
		op = OpEq
	case t.is("!="):
		op = OpNe
	case t.is("<"):
		op = OpLt
	case t.is(">"):
		op = OpGt
	case t.is("<="):
		op = OpLe
	case t.is(">="):
		op = OpGe
	default:
		return nil, fmt.Errorf("expected comparison operator, found %s", t)
	}
	p.pos++
	right, err := p.parseOperand(allowAgg)
	if err != nil {
		return nil, err
	}
	return &CompareExpr{Op: op, Left: left, Right: right}, nil
}

func (p *parser) parseOperand(allowAgg bool) (Operand, error) {
	t := p.peek()
	if t.kind == tkString || t.kind == tkNumber || t.is("-") || t.is("+") || t.is("NULL") {
		return p.parseLiteral()
	}
	return p.parseValueRef(allowAgg)
}
