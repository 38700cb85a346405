package redistruct

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type ctxKeyType int

const (
	ctxKeyTx ctxKeyType = iota
	ctxKeyClient
)

// WithClient installs a scoped override connection on the context. Every
// operation carrying the returned context uses it, regardless of descriptor
// routing. Only an open transaction block takes precedence over it.
func WithClient(ctx context.Context, c redis.Cmdable) context.Context {
	return context.WithValue(ctx, ctxKeyClient, c)
}

func clientOverride(ctx context.Context) (redis.Cmdable, bool) {
	c, ok := ctx.Value(ctxKeyClient).(redis.Cmdable)
	return c, ok
}

// txState marks an open transaction or pipeline block on the context, so
// every command issued inside the block lands on the one pipeliner.
type txState struct {
	pipe redis.Pipeliner
	// atomic distinguishes a MULTI/EXEC block from a plain pipeline.
	atomic bool
}

func withTxState(ctx context.Context, st *txState) context.Context {
	return context.WithValue(ctx, ctxKeyTx, st)
}

func txStateFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(ctxKeyTx).(*txState)
	return st
}

// resolveFunc is one handler of the resolution chain: it returns a
// connection, or delegates by reporting ok=false.
type resolveFunc func(ctx context.Context, d *Descriptor) (redis.Cmdable, bool, error)

// The chain is fixed at load time and shared by all descriptors; handlers
// are stateless over (ctx, descriptor). Priority: active transaction >
// scoped override > provider > cached client > create client.
var resolutionChain = []resolveFunc{
	activeTransactionConn,
	scopedOverrideConn,
	providerConn,
	cachedClientConn,
	createClientConn,
}

// resolveConn walks the chain and returns the active connection for this
// call context.
func resolveConn(ctx context.Context, d *Descriptor) (redis.Cmdable, error) {
	for _, h := range resolutionChain {
		c, ok, err := h(ctx, d)
		if err != nil {
			return nil, err
		}
		if ok {
			return c, nil
		}
	}
	return nil, Error{Code: StoreError, UserData: "connection resolution chain exhausted"}
}

func activeTransactionConn(ctx context.Context, _ *Descriptor) (redis.Cmdable, bool, error) {
	if st := txStateFrom(ctx); st != nil {
		return st.pipe, true, nil
	}
	return nil, false, nil
}

func scopedOverrideConn(ctx context.Context, _ *Descriptor) (redis.Cmdable, bool, error) {
	c, ok := clientOverride(ctx)
	return c, ok, nil
}

func providerConn(ctx context.Context, _ *Descriptor) (redis.Cmdable, bool, error) {
	p := connectionProvider()
	if p == nil {
		return nil, false, nil
	}
	c, err := p(ctx)
	if err != nil {
		return nil, false, Error{Code: StoreError, Err: err, UserData: "connection provider"}
	}
	return c, true, nil
}

func cachedClientConn(_ context.Context, d *Descriptor) (redis.Cmdable, bool, error) {
	if c := d.client.Load(); c != nil {
		return c, true, nil
	}
	return nil, false, nil
}

func createClientConn(_ context.Context, d *Descriptor) (redis.Cmdable, bool, error) {
	c, err := d.createClient()
	if err != nil {
		return nil, false, err
	}
	d.client.Store(c)
	return c, true, nil
}

// Connection resolves the active connection for this call context through
// the chain. The entry point feature packages use to issue their own
// commands with the same precedence semantics as the core.
func (d *Descriptor) Connection(ctx context.Context) (redis.Cmdable, error) {
	return resolveConn(ctx, d)
}

// resolveDialable resolves the concrete client needed for WATCH-based
// operations. Inside an open transaction or pipeline block that is an
// operation-mode conflict: a watch cannot nest inside a queued command
// block.
func resolveDialable(ctx context.Context, d *Descriptor) (*redis.Client, error) {
	if txStateFrom(ctx) != nil {
		return nil, Error{Code: OperationModeConflict,
			UserData: "watch requested inside an open transaction block"}
	}
	if c, ok := clientOverride(ctx); ok {
		rc, ok := c.(*redis.Client)
		if !ok {
			return nil, Error{Code: OperationModeConflict,
				UserData: "scoped override connection does not support watch mode"}
		}
		return rc, nil
	}
	if p := connectionProvider(); p != nil {
		rc, err := p(ctx)
		if err != nil {
			return nil, Error{Code: StoreError, Err: err, UserData: "connection provider"}
		}
		return rc, nil
	}
	if c := d.client.Load(); c != nil {
		return c, nil
	}
	c, err := d.createClient()
	if err != nil {
		return nil, err
	}
	d.client.Store(c)
	return c, nil
}
