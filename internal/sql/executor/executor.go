package executor

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tuannm99/flatsql/internal/engine"
	"github.com/tuannm99/flatsql/internal/metrics"
	"github.com/tuannm99/flatsql/internal/record"
	"github.com/tuannm99/flatsql/internal/sql/eval"
	"github.com/tuannm99/flatsql/internal/sql/parser"
	"github.com/tuannm99/flatsql/internal/sql/planner"
	"github.com/tuannm99/flatsql/internal/sqlerr"
)

// DefaultSortMergeThreshold is the input size above which joins switch from
// nested loop to sort-merge.
const DefaultSortMergeThreshold = 1000

// executorDB is a small seam for unit-testing Executor without a real DB.
type executorDB interface {
	CreateTable(name string, schema record.Schema) error
	DropTable(name string) error
	CreateIndex(table, name, column string) error
	DropIndex(table, name string) error
	ListTables() ([]string, error)

	Schema(table string) (record.Schema, error)
	IndexFor(table, column string) (string, bool)
	Scan(table string) ([][]any, error)
	LookupRows(table, column string, value any) ([][]any, error)

	Insert(table string, columns []string, values [][]any) (int, error)
	Update(table string, pred engine.Predicate, assigns []engine.Assignment) (int, error)
	Delete(table string, pred engine.Predicate) (int, error)
}

var _ executorDB = (*engine.Database)(nil)

type Options struct {
	UseIndexes         bool
	SortMergeThreshold int
	// Join forces a join strategy; JoinAuto decides by SortMergeThreshold.
	Join    planner.JoinStrategy
	Metrics *metrics.Metrics
}

// DefaultOptions enables indexes with the default join threshold.
func DefaultOptions() Options {
	return Options{UseIndexes: true, SortMergeThreshold: DefaultSortMergeThreshold}
}

// Executor executes statements against a Database. It holds no state of
// its own besides options; the Database is shared for the process lifetime.
type Executor struct {
	DB   executorDB
	opts Options
}

func NewExecutor(db *engine.Database, opts Options) *Executor {
	return NewExecutorForTest(db, opts)
}

// NewExecutorForTest allows injecting a fake executorDB.
func NewExecutorForTest(db executorDB, opts Options) *Executor {
	if opts.SortMergeThreshold <= 0 {
		opts.SortMergeThreshold = DefaultSortMergeThreshold
	}
	return &Executor{DB: db, opts: opts}
}

// query carries per-statement state.
type query struct {
	*Executor
	id string

	// rows excluded because their WHERE/HAVING could not be evaluated
	excluded int
	firstErr error
}

// ExecSQL is the top-level entry: SQL string -> Result.
func (e *Executor) ExecSQL(sql string) (*Result, error) {
	q := &query{Executor: e, id: uuid.NewString()}
	start := time.Now()

	kind := "unknown"
	res, err := func() (*Result, error) {
		stmt, err := parser.Parse(sql)
		if err != nil {
			return nil, err
		}
		kind = statementKind(stmt)

		plan, err := planner.BuildPlan(stmt, e.DB, planner.Options{UseIndexes: e.opts.UseIndexes, Join: e.opts.Join})
		if err != nil {
			return nil, err
		}
		return q.execPlan(plan)
	}()

	e.opts.Metrics.ObserveStatement(kind, time.Since(start), err)
	q.warnExcluded()
	if err != nil {
		slog.Debug("executor: statement failed",
			"query_id", q.id, "kind", kind, "class", sqlerr.Class(err), "err", err)
		return nil, err
	}
	res.QueryID = q.id
	slog.Debug("executor: statement done",
		"query_id", q.id, "kind", kind, "rows", res.AffectedRows, "elapsed", time.Since(start))
	return res, nil
}

func statementKind(stmt parser.Statement) string {
	switch stmt.(type) {
	case *parser.SelectStmt:
		return "select"
	case *parser.InsertStmt:
		return "insert"
	case *parser.UpdateStmt:
		return "update"
	case *parser.DeleteStmt:
		return "delete"
	case *parser.CreateTableStmt:
		return "create_table"
	case *parser.DropTableStmt:
		return "drop_table"
	case *parser.CreateIndexStmt:
		return "create_index"
	case *parser.DropIndexStmt:
		return "drop_index"
	case *parser.ShowTablesStmt:
		return "show_tables"
	default:
		return "unknown"
	}
}

func (q *query) execPlan(p planner.Plan) (*Result, error) {
	switch plan := p.(type) {
	case *planner.CreateTablePlan:
		return q.execCreateTable(plan)
	case *planner.DropTablePlan:
		return q.execDropTable(plan)
	case *planner.CreateIndexPlan:
		return q.execCreateIndex(plan)
	case *planner.DropIndexPlan:
		return q.execDropIndex(plan)
	case *planner.ShowTablesPlan:
		return q.execShowTables()

	case *planner.InsertPlan:
		return q.execInsert(plan)
	case *planner.UpdatePlan:
		return q.execUpdate(plan)
	case *planner.DeletePlan:
		return q.execDelete(plan)

	case *planner.SelectPlan:
		return q.execSelect(plan)

	default:
		return nil, &sqlerr.ExecutionError{Reason: fmt.Sprintf("executor: unsupported plan type %T", p)}
	}
}

func (q *query) execCreateTable(p *planner.CreateTablePlan) (*Result, error) {
	if err := q.DB.CreateTable(p.TableName, p.Schema); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("table %s created", p.TableName)}, nil
}

func (q *query) execDropTable(p *planner.DropTablePlan) (*Result, error) {
	if err := q.DB.DropTable(p.TableName); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("table %s dropped", p.TableName)}, nil
}

func (q *query) execCreateIndex(p *planner.CreateIndexPlan) (*Result, error) {
	if err := q.DB.CreateIndex(p.TableName, p.IndexName, p.Column); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("index %s created on %s(%s)", p.IndexName, p.TableName, p.Column)}, nil
}

func (q *query) execDropIndex(p *planner.DropIndexPlan) (*Result, error) {
	if err := q.DB.DropIndex(p.TableName, p.IndexName); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("index %s dropped", p.IndexName)}, nil
}

func (q *query) execShowTables() (*Result, error) {
	names, err := q.DB.ListTables()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: []string{"table"}, Rows: make([][]any, 0, len(names))}
	for _, n := range names {
		res.Rows = append(res.Rows, []any{n})
	}
	res.AffectedRows = int64(len(res.Rows))
	return res, nil
}

func (q *query) execInsert(p *planner.InsertPlan) (*Result, error) {
	n, err := q.DB.Insert(p.TableName, p.Columns, p.Rows)
	if err != nil {
		return nil, err
	}
	return &Result{AffectedRows: int64(n), Message: fmt.Sprintf("%d row(s) inserted", n)}, nil
}

func (q *query) execUpdate(p *planner.UpdatePlan) (*Result, error) {
	pred, err := q.tablePredicate(p.TableName, p.Where)
	if err != nil {
		return nil, err
	}
	assigns := make([]engine.Assignment, len(p.Assignments))
	for i, a := range p.Assignments {
		assigns[i] = engine.Assignment{Column: a.Column, Value: a.Value}
	}
	n, err := q.DB.Update(p.TableName, pred, assigns)
	if err != nil {
		return nil, err
	}
	return &Result{AffectedRows: int64(n), Message: fmt.Sprintf("%d row(s) updated", n)}, nil
}

func (q *query) execDelete(p *planner.DeletePlan) (*Result, error) {
	pred, err := q.tablePredicate(p.TableName, p.Where)
	if err != nil {
		return nil, err
	}
	n, err := q.DB.Delete(p.TableName, pred)
	if err != nil {
		return nil, err
	}
	return &Result{AffectedRows: int64(n), Message: fmt.Sprintf("%d row(s) deleted", n)}, nil
}

// tablePredicate turns a WHERE tree over a single table into an engine
// predicate. Rows whose evaluation fails are not matched.
func (q *query) tablePredicate(table string, where parser.Expr) (engine.Predicate, error) {
	if where == nil {
		return nil, nil
	}
	if err := eval.Validate(where); err != nil {
		return nil, err
	}
	schema, err := q.DB.Schema(table)
	if err != nil {
		return nil, err
	}
	scope := eval.TableScope(table, schema.ColumnNames())
	return func(row []any) bool {
		ok, err := q.matches(where, eval.Row{Scope: scope, Values: row})
		return err == nil && ok
	}, nil
}

// matches evaluates expr against row. Evaluation errors are recorded and
// reported as a non-match; structural errors are returned.
func (q *query) matches(expr parser.Expr, row eval.Row) (bool, error) {
	ok, err := eval.Evaluate(expr, row)
	if err == nil {
		return ok, nil
	}
	var ee *sqlerr.EvalError
	if errors.As(err, &ee) {
		q.excluded++
		if q.firstErr == nil {
			q.firstErr = err
		}
		return false, nil
	}
	return false, err
}

func (q *query) warnExcluded() {
	if q.excluded == 0 {
		return
	}
	slog.Warn("executor: rows excluded by evaluation errors",
		"query_id", q.id, "rows", q.excluded, "first", q.firstErr)
}
