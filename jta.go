package persist

import (
	"context"
	"time"
)

const (
	unknownStatusRetries  = 5
	unknownStatusInterval = 30 * time.Millisecond
)

// userTransactionFacade translates failures of the global transaction manager into
// *TransactionError carrying the original cause
type userTransactionFacade struct {
	ut UserTransaction
}

func (f *userTransactionFacade) begin(ctx context.Context) (context.Context, error) {
	txCtx, err := f.ut.Begin(ctx)
	if err != nil {
		return ctx, &TransactionError{Op: "begin", Cause: err}
	}
	return txCtx, nil
}

func (f *userTransactionFacade) commit(ctx context.Context) error {
	if err := f.ut.Commit(ctx); err != nil {
		return &TransactionError{Op: "commit", Cause: err}
	}
	return nil
}

func (f *userTransactionFacade) rollback(ctx context.Context) error {
	if err := f.ut.Rollback(ctx); err != nil {
		return &TransactionError{Op: "rollback", Cause: err}
	}
	return nil
}

func (f *userTransactionFacade) setRollbackOnly(ctx context.Context) error {
	if err := f.ut.SetRollbackOnly(ctx); err != nil {
		return &TransactionError{Op: "set rollback only", Cause: err}
	}
	return nil
}

// status re-reads an unknown status a few times, the manager may be completing a transaction
func (f *userTransactionFacade) status(ctx context.Context) (Status, error) {
	st, err := f.ut.Status(ctx)
	for i := 0; err == nil && st == StatusUnknown && i < unknownStatusRetries; i++ {
		select {
		case <-ctx.Done():
			return st, nil
		case <-time.After(unknownStatusInterval):
		}
		st, err = f.ut.Status(ctx)
	}
	if err != nil {
		return StatusUnknown, &TransactionError{Op: "status", Cause: err}
	}
	return st, nil
}

type jtaFacadeProvider struct {
	txn     *userTransactionFacade
	handles HandleProvider
}

// NewJTAFacadeProvider returns facades taking part in the global transaction of ut.
// An outer facade is built when no global transaction is in progress, an inner one otherwise.
func NewJTAFacadeProvider(ut UserTransaction, handles HandleProvider) FacadeProvider {
	if ut == nil {
		panic("persist: user transaction is mandatory")
	}
	if handles == nil {
		panic("persist: handle provider is mandatory")
	}
	return &jtaFacadeProvider{txn: &userTransactionFacade{ut: ut}, handles: handles}
}

func (p *jtaFacadeProvider) Facade(ctx context.Context) (TransactionFacade, error) {
	h, err := p.handles.Get(ctx)
	if err != nil {
		return nil, err
	}
	jh, ok := h.(JoinableHandle)
	if !ok {
		return nil, ErrNotJoinableHandle
	}
	st, err := p.txn.status(ctx)
	if err != nil {
		return nil, err
	}
	if st == StatusNoTransaction {
		return &jtaOuter{txn: p.txn, handle: jh}, nil
	}
	return &jtaInner{txn: p.txn, handle: jh}, nil
}

// jtaInner joins a transaction owned by an enclosing call boundary
type jtaInner struct {
	txn    *userTransactionFacade
	handle JoinableHandle
}

func (t *jtaInner) Begin(ctx context.Context) (context.Context, error) {
	if err := t.handle.JoinTransaction(ctx); err != nil {
		return ctx, &PersistenceError{Msg: "join transaction", Cause: err}
	}
	return ctx, nil
}

func (t *jtaInner) Commit(ctx context.Context) error {
	// the outer boundary completes the transaction
	return nil
}

func (t *jtaInner) Rollback(ctx context.Context) error {
	return t.txn.setRollbackOnly(ctx)
}

type jtaOuter struct {
	txn    *userTransactionFacade
	handle JoinableHandle
}

func (t *jtaOuter) Begin(ctx context.Context) (context.Context, error) {
	txCtx, err := t.txn.begin(ctx)
	if err != nil {
		return ctx, err
	}
	if err := t.handle.JoinTransaction(txCtx); err != nil {
		_ = t.txn.rollback(txCtx)
		return ctx, &PersistenceError{Msg: "join transaction", Cause: err}
	}
	return txCtx, nil
}

// Commit commits only an active transaction, a transaction marked for rollback is rolled back
func (t *jtaOuter) Commit(ctx context.Context) error {
	st, err := t.txn.status(ctx)
	if err != nil {
		_ = t.txn.rollback(ctx)
		return err
	}
	if st == StatusActive {
		return t.txn.commit(ctx)
	}
	return t.txn.rollback(ctx)
}

func (t *jtaOuter) Rollback(ctx context.Context) error {
	return t.txn.rollback(ctx)
}
