package executor

// Result is the generic query result returned to the caller.
type Result struct {
	// QueryID identifies the statement in logs.
	QueryID string

	Columns []string
	Rows    [][]any

	// For DML: rows inserted, updated or deleted. For SELECT: rows returned.
	AffectedRows int64

	// Message is a short confirmation for statements without rows.
	Message string
}
