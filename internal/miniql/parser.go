package miniql

import (
	"fmt"

	"github.com/miniql/bptindex/internal/planner"
	"github.com/miniql/bptindex/internal/runner"
)

// LoadStmt is `LOAD <table> FROM '<path>' [WITH INDEX]`.
type LoadStmt struct {
	Table     string
	Path      string
	WithIndex bool
}

// SelectStmt is `SELECT <proj> FROM <table> [WHERE <predicate> (AND <predicate>)*]`.
type SelectStmt struct {
	Proj       runner.Projection
	Table      string
	Predicates []planner.Predicate
}

// parser consumes the flat token stream a lexer produces, one statement at
// a time — recursive descent over a grammar small enough that each
// production is its own method, mirroring the teacher's engine/parser.go
// shape without any of its SQL breadth.
type parser struct {
	toks []token
	pos  int
}

// Parse recognizes one LOAD or SELECT statement and returns its AST node
// as either a *LoadStmt or a *SelectStmt.
func Parse(stmt string) (interface{}, error) {
	l := newLexer(stmt)
	toks, err := l.tokens()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}

	kw, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	switch upper(kw) {
	case "LOAD":
		return p.parseLoad()
	case "SELECT":
		return p.parseSelect()
	default:
		return nil, fmt.Errorf("miniql: unknown statement keyword %q (want LOAD or SELECT)", kw)
	}
}

func (p *parser) cur() token {
	if p.pos >= len(p.toks) {
		return token{kind: tokEOF}
	}
	return p.toks[p.pos]
}

func (p *parser) advance() token {
	t := p.cur()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *parser) expectIdent() (string, error) {
	t := p.advance()
	if t.kind != tokIdent {
		return "", fmt.Errorf("miniql: expected identifier, got %q", t.text)
	}
	return t.text, nil
}

func (p *parser) expectKeyword(word string) error {
	t := p.advance()
	if t.kind != tokIdent || upper(t.text) != upper(word) {
		return fmt.Errorf("miniql: expected %q, got %q", word, t.text)
	}
	return nil
}

func (p *parser) expectString() (string, error) {
	t := p.advance()
	if t.kind != tokString {
		return "", fmt.Errorf("miniql: expected a quoted string, got %q", t.text)
	}
	return t.text, nil
}

func (p *parser) parseLoad() (*LoadStmt, error) {
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	path, err := p.expectString()
	if err != nil {
		return nil, err
	}
	stmt := &LoadStmt{Table: table, Path: path}

	if p.cur().kind == tokIdent && upper(p.cur().text) == "WITH" {
		p.advance()
		if err := p.expectKeyword("INDEX"); err != nil {
			return nil, err
		}
		stmt.WithIndex = true
	}
	if p.cur().kind != tokEOF {
		return nil, fmt.Errorf("miniql: unexpected trailing input after LOAD statement")
	}
	return stmt, nil
}

func (p *parser) parseSelect() (*SelectStmt, error) {
	proj, err := p.parseProjection()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	stmt := &SelectStmt{Proj: proj, Table: table}

	if p.cur().kind == tokIdent && upper(p.cur().text) == "WHERE" {
		p.advance()
		preds, err := p.parsePredicateList()
		if err != nil {
			return nil, err
		}
		stmt.Predicates = preds
	}
	if p.cur().kind != tokEOF {
		return nil, fmt.Errorf("miniql: unexpected trailing input after SELECT statement")
	}
	return stmt, nil
}

func (p *parser) parseProjection() (runner.Projection, error) {
	if p.cur().kind == tokStar {
		p.advance()
		return runner.ProjBoth, nil
	}
	ident, err := p.expectIdent()
	if err != nil {
		return "", err
	}
	switch upper(ident) {
	case "KEY":
		return runner.ProjKey, nil
	case "VALUE":
		return runner.ProjValue, nil
	case "COUNT":
		if p.cur().kind != tokLParen {
			return "", fmt.Errorf("miniql: expected '(' after COUNT")
		}
		p.advance()
		if p.cur().kind != tokStar {
			return "", fmt.Errorf("miniql: only count(*) is supported")
		}
		p.advance()
		if p.cur().kind != tokRParen {
			return "", fmt.Errorf("miniql: expected ')' after count(*")
		}
		p.advance()
		return runner.ProjCount, nil
	default:
		return "", fmt.Errorf("miniql: unknown projection %q (want key, value, *, or count(*))", ident)
	}
}

func (p *parser) parsePredicateList() ([]planner.Predicate, error) {
	var preds []planner.Predicate
	for {
		pred, err := p.parsePredicate()
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
		if p.cur().kind == tokIdent && upper(p.cur().text) == "AND" {
			p.advance()
			continue
		}
		break
	}
	return preds, nil
}

func (p *parser) parsePredicate() (planner.Predicate, error) {
	attrName, err := p.expectIdent()
	if err != nil {
		return planner.Predicate{}, err
	}
	var attr planner.Attr
	switch upper(attrName) {
	case "KEY":
		attr = planner.AttrKey
	case "VALUE":
		attr = planner.AttrValue
	default:
		return planner.Predicate{}, fmt.Errorf("miniql: unknown predicate attribute %q (want key or value)", attrName)
	}

	cmp, err := p.parseCmp()
	if err != nil {
		return planner.Predicate{}, err
	}

	t := p.advance()
	if t.kind != tokInt {
		return planner.Predicate{}, fmt.Errorf("miniql: expected an integer literal, got %q", t.text)
	}

	return planner.Predicate{Attr: attr, Cmp: cmp, Val: t.ival}, nil
}

func (p *parser) parseCmp() (planner.Cmp, error) {
	t := p.advance()
	switch t.kind {
	case tokEQ:
		return planner.CmpEQ, nil
	case tokNE:
		return planner.CmpNE, nil
	case tokLT:
		return planner.CmpLT, nil
	case tokLE:
		return planner.CmpLE, nil
	case tokGT:
		return planner.CmpGT, nil
	case tokGE:
		return planner.CmpGE, nil
	default:
		return "", fmt.Errorf("miniql: expected a comparison operator, got %q", t.text)
	}
}
