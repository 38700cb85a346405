package redistruct

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// TxResult reports the outcome of a Transaction or Pipelined block.
type TxResult struct {
	// Success is true when the whole block committed.
	Success bool
	// Joined is true when the block ran inside an enclosing block; its
	// commands commit with the outer block and Results stays empty.
	Joined bool
	// Results holds the per-command outcomes of a committed block. For a
	// pipeline, individual commands may have failed; check each Cmder.
	Results []redis.Cmder
}

// asStoreError wraps a raw client error, passing typed errors through
// untouched so precondition failures raised inside a block keep their code.
func asStoreError(err error, detail any) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(Error); ok {
		return err
	}
	return Error{Code: StoreError, Err: err, UserData: detail}
}

// Transaction runs fn inside one atomic MULTI/EXEC block on the resolved
// connection. Commands issued through the context (records, collections,
// nested helpers) all queue on the same block.
//
// Re-entrant: when the context already carries an open block, fn joins it
// without opening a second MULTI and its outcome passes through unwrapped, so
// small atomic helpers compose flat inside larger transactions. Any store
// error aborts the whole block; nothing partial commits.
func (d *Descriptor) Transaction(ctx context.Context, fn func(ctx context.Context, pipe redis.Pipeliner) error) (*TxResult, error) {
	if st := txStateFrom(ctx); st != nil {
		err := fn(ctx, st.pipe)
		return &TxResult{Success: err == nil, Joined: true}, err
	}
	conn, err := resolveConn(ctx, d)
	if err != nil {
		return nil, err
	}
	if _, isPipe := conn.(redis.Pipeliner); isPipe {
		return nil, Error{Code: OperationModeConflict,
			UserData: "resolved connection is a pipeline; cannot open a transaction on it"}
	}
	cmds, err := conn.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return fn(withTxState(ctx, &txState{pipe: pipe, atomic: true}), pipe)
	})
	if err != nil {
		return &TxResult{Results: cmds}, asStoreError(err, "transaction")
	}
	return &TxResult{Success: true, Results: cmds}, nil
}

// Pipelined batches fn's commands into one round trip without atomicity:
// commands may partially succeed, and callers must not assume all-or-
// nothing. Re-entrant under the same rule as Transaction.
func (d *Descriptor) Pipelined(ctx context.Context, fn func(ctx context.Context, pipe redis.Pipeliner) error) (*TxResult, error) {
	if st := txStateFrom(ctx); st != nil {
		err := fn(ctx, st.pipe)
		return &TxResult{Success: err == nil, Joined: true}, err
	}
	conn, err := resolveConn(ctx, d)
	if err != nil {
		return nil, err
	}
	if _, isPipe := conn.(redis.Pipeliner); isPipe {
		return nil, Error{Code: OperationModeConflict,
			UserData: "resolved connection is already a pipeline"}
	}
	cmds, err := conn.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		return fn(withTxState(ctx, &txState{pipe: pipe}), pipe)
	})
	if err != nil {
		return &TxResult{Results: cmds}, asStoreError(err, "pipeline")
	}
	return &TxResult{Success: true, Results: cmds}, nil
}
