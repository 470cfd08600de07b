package velesql

// Statement is any top-level parsed query: a Select, a Match, or a
// compound (UNION/INTERSECT/EXCEPT) combination of either.
type Statement interface {
	statementNode()
}

// Expr is any scalar expression appearing in WHERE/HAVING/SELECT
// projections/ORDER BY.
type Expr interface {
	exprNode()
}

// SetOp names a compound-query combinator, per §4.H "compound queries
// (UNION [ALL] / INTERSECT / EXCEPT)".
type SetOp string

const (
	SetOpUnion     SetOp = "UNION"
	SetOpUnionAll  SetOp = "UNION ALL"
	SetOpIntersect SetOp = "INTERSECT"
	SetOpExcept    SetOp = "EXCEPT"
)

// CompoundStatement chains two statements with a set operator, generalized
// to chain arbitrarily (A UNION B INTERSECT C parses left-associatively).
type CompoundStatement struct {
	Left  Statement
	Op    SetOp
	Right Statement
}

func (*CompoundStatement) statementNode() {}

// JoinKind names the supported join types; RIGHT and FULL are parsed
// (so a query using them produces a clean UnsupportedFeature at execution
// rather than a ParseError) but not executed, per §4.I.
type JoinKind string

const (
	JoinInner JoinKind = "INNER"
	JoinLeft  JoinKind = "LEFT"
	JoinRight JoinKind = "RIGHT"
	JoinFull  JoinKind = "FULL"
)

// JoinClause joins another collection into the FROM list.
type JoinClause struct {
	Kind       JoinKind
	Collection string
	Alias      string
	On         Expr
}

// OrderItem is one ORDER BY term; the expression can be a projected
// column, similarity(), an aggregate, or a binding-scoped property path.
type OrderItem struct {
	Expr       Expr
	Descending bool
}

// SelectItem is one projected column: either `expr` or `expr AS alias`.
// A bare `*` is represented with Star set and Expr nil.
type SelectItem struct {
	Expr  Expr
	Alias string
	Star  bool
}

// SelectStatement is a `SELECT ... FROM ...` query, per §4.H.
type SelectStatement struct {
	Projection []SelectItem
	From       string
	FromAlias  string
	Joins      []*JoinClause
	Where      Expr
	GroupBy    []Expr
	Having     Expr
	OrderBy    []OrderItem
	Limit      *int64
	Offset     *int64
}

func (*SelectStatement) statementNode() {}

// NodePattern is a MATCH node pattern `(alias:Label {prop: val, ...})`.
// Either Alias or Label (or both) may be empty, matching any node.
type NodePattern struct {
	Alias      string
	Label      string
	Properties map[string]Expr
}

// EdgePattern is a MATCH relationship pattern
// `-[:TYPE|TYPE2*min..max]->` or its reversed/undirected forms.
type EdgePattern struct {
	Alias        string
	Types        []string
	Outgoing     bool
	Incoming     bool
	MinHops      int
	MaxHops      int
	VariableHops bool
}

// PatternStep chains one edge and the node it leads to, so a full pattern
// is Start followed by zero or more Steps.
type PatternStep struct {
	Edge *EdgePattern
	Node *NodePattern
}

// Pattern is one full MATCH chain: `(a)-[:T]->(b)-[:T2]->(c)`.
type Pattern struct {
	Start *NodePattern
	Steps []*PatternStep
}

// MatchStatement is a `MATCH ... [WHERE ...] RETURN ...` query, per §4.H.
type MatchStatement struct {
	Patterns []*Pattern
	Where    Expr
	Return   []SelectItem
	OrderBy  []OrderItem
	Limit    *int64
	Offset   *int64
}

func (*MatchStatement) statementNode() {}

// --- Expressions ---

// Literal is a scalar constant: number, string, bool, or null.
type Literal struct {
	Kind  LiteralKind
	Value any
}

func (*Literal) exprNode() {}

// LiteralKind classifies a Literal's Value's Go type.
type LiteralKind int

const (
	LiteralNull LiteralKind = iota
	LiteralInt
	LiteralFloat
	LiteralString
	LiteralBool
)

// Parameter is a `$name` placeholder resolved at execution time.
type Parameter struct {
	Name string
}

func (*Parameter) exprNode() {}

// Identifier is a bare column/alias reference, e.g. `name`.
type Identifier struct {
	Name string
}

func (*Identifier) exprNode() {}

// PropertyAccess is an alias-qualified property path, e.g. `a.name`.
type PropertyAccess struct {
	Alias    string
	Property string
}

func (*PropertyAccess) exprNode() {}

// BinaryExpr is any infix operator expression: comparison, arithmetic,
// boolean AND/OR, string concatenation.
type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}

// UnaryExpr is a prefix operator: NOT, unary minus.
type UnaryExpr struct {
	Op      string
	Operand Expr
}

func (*UnaryExpr) exprNode() {}

// FunctionCall is a named function invocation, covering both scalar
// builtins (NOW, similarity) and aggregates (COUNT, SUM, AVG, MIN, MAX).
type FunctionCall struct {
	Name string
	Args []Expr
	// Distinct marks COUNT(DISTINCT x); ignored by non-aggregate calls.
	Distinct bool
}

func (*FunctionCall) exprNode() {}

// IntervalLiteral is `INTERVAL 'N unit'`, e.g. INTERVAL '7d'.
type IntervalLiteral struct {
	Quantity int64
	Unit     string
}

func (*IntervalLiteral) exprNode() {}

// NearPredicate is `vector NEAR $param`, optionally with a distance
// threshold/limit carried by the surrounding comparison; the predicate
// itself only names the column and query vector parameter.
type NearPredicate struct {
	Column string
	Param  Expr
}

func (*NearPredicate) exprNode() {}

// NearFusedPredicate is `vector NEAR_FUSED [$p1, $p2] USING FUSION
// 'name'(k=60, ...)`.
type NearFusedPredicate struct {
	Column     string
	Params     []Expr
	Strategy   string
	StrategyArgs map[string]float64
}

func (*NearFusedPredicate) exprNode() {}

// MatchTextPredicate is `col MATCH 'text'`, a full-text predicate
// distinct from the MATCH graph clause of the same keyword.
type MatchTextPredicate struct {
	Column  string
	Pattern string
}

func (*MatchTextPredicate) exprNode() {}

// Subquery wraps a nested SELECT appearing as a scalar expression.
type Subquery struct {
	Statement *SelectStatement
}

func (*Subquery) exprNode() {}

// ArrayLiteral is a `[expr, expr, ...]` list, used for NEAR_FUSED
// parameter lists and IN predicates.
type ArrayLiteral struct {
	Elements []Expr
}

func (*ArrayLiteral) exprNode() {}
