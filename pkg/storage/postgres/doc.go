// Package postgres implements the billing stores on PostgreSQL via pgx.
//
// Every store resolves its connection through pg.TxManager, so calls made with
// a context produced by TxManager.WithinTx join that transaction. Usage
// counters are changed with single UPDATE statements over the JSONB usage
// column; subscription updates are guarded by the version column.
package postgres
