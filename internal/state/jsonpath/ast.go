// Package jsonpath implements the subset of JSONPath spec §3.2 describes:
// dot-steps, bracket-steps, and bracketed filter expressions of the form
// [?<predicate>] where predicates combine comparisons between singular
// queries (absolute $... or relative @... paths) and literals with &&/||.
package jsonpath

// Path is a parsed, evaluable JSONPath expression.
type Path struct {
	steps []step
}

type stepKind uint8

const (
	stepKey stepKind = iota
	stepIndex
	stepFilter
)

type step struct {
	kind   stepKind
	key    string
	index  int
	filter *expr
}

// exprOp enumerates the comparison and boolean-combination operators a
// filter predicate may use.
type exprOp uint8

const (
	opAnd exprOp = iota
	opOr
	opEq
	opNe
	opLt
	opLe
	opGt
	opGe
)

// exprKind distinguishes a leaf operand (a query or literal) from an
// internal boolean-combination node.
type exprKind uint8

const (
	nodeCompare exprKind = iota
	nodeBool
)

// expr is either a boolean combination of two sub-expressions (And/Or) or
// a single comparison between two operands (singular query or literal).
type expr struct {
	kind  exprKind
	op    exprOp
	left  *expr
	right *expr

	lhs operand
	rhs operand
}

type operandKind uint8

const (
	operandLiteral operandKind = iota
	operandAbsolute
	operandRelative
)

type operand struct {
	kind    operandKind
	literal literalValue
	path    *Path // for absolute ($...) / relative (@...) singular queries
}

type literalKind uint8

const (
	litInt literalKind = iota
	litString
	litBool
	litNull
)

type literalValue struct {
	kind literalKind
	i    int64
	s    string
	b    bool
}
