package store

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

type Op string

const (
	Eq  Op = "="
	Gte Op = ">="
)

// Filter is one column predicate of a count query.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

func Where(column string, op Op, value any) Filter {
	return Filter{Column: column, Op: op, Value: value}
}

// listStatement renders SELECT <cols> FROM <table> ORDER BY created_at DESC.
func listStatement(table string, cols []string) (string, error) {
	raw := fmt.Sprintf("SELECT %s FROM %s ORDER BY created_at DESC", strings.Join(cols, ", "), table)
	tree, err := pg_query.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse: %w", err)
	}
	out, err := pg_query.Deparse(tree)
	if err != nil {
		return "", fmt.Errorf("deparse: %w", err)
	}
	return out, nil
}

// countStatement builds SELECT count(*) FROM <table> WHERE ... with one
// $n parameter per filter, ANDed together in order.
func countStatement(table string, filters []Filter) (string, []any, error) {
	tree, err := pg_query.Parse("SELECT count(*) FROM " + table)
	if err != nil {
		return "", nil, fmt.Errorf("parse: %w", err)
	}
	sel := tree.GetStmts()[0].GetStmt().GetSelectStmt()

	preds := make([]*pg_query.Node, 0, len(filters))
	args := make([]any, 0, len(filters))
	for i, f := range filters {
		if !validIdent(f.Column) {
			return "", nil, fmt.Errorf("invalid filter column %q", f.Column)
		}
		switch f.Op {
		case Eq, Gte:
		default:
			return "", nil, fmt.Errorf("unsupported filter operator %q", f.Op)
		}
		preds = append(preds, opNode(string(f.Op), columnNode(f.Column), paramNode(i+1)))
		args = append(args, f.Value)
	}

	switch len(preds) {
	case 0:
	case 1:
		sel.WhereClause = preds[0]
	default:
		sel.WhereClause = &pg_query.Node{Node: &pg_query.Node_BoolExpr{BoolExpr: &pg_query.BoolExpr{
			Boolop: pg_query.BoolExprType_AND_EXPR,
			Args:   preds,
		}}}
	}

	out, err := pg_query.Deparse(tree)
	if err != nil {
		return "", nil, fmt.Errorf("deparse: %w", err)
	}
	return out, args, nil
}

func strNode(s string) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_String_{
			String_: &pg_query.String{Sval: s},
		},
	}
}

func columnNode(col string) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_ColumnRef{ColumnRef: &pg_query.ColumnRef{
		Fields: []*pg_query.Node{strNode(col)},
	}}}
}

func paramNode(n int) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_ParamRef{ParamRef: &pg_query.ParamRef{Number: int32(n)}}}
}

func opNode(op string, l, r *pg_query.Node) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_AExpr{AExpr: &pg_query.A_Expr{
		Kind:  pg_query.A_Expr_Kind_AEXPR_OP,
		Name:  []*pg_query.Node{strNode(op)},
		Lexpr: l,
		Rexpr: r,
	}}}
}
