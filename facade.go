package persist

import (
	"context"
)

// TransactionFacade is one transaction attempt of a call boundary.
// A facade is created for every attempt and never reused.
type TransactionFacade interface {
	// Begin returns the context the wrapped call runs with
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// FacadeProvider creates the facade for the handle of the active unit of work
type FacadeProvider interface {
	Facade(ctx context.Context) (TransactionFacade, error)
}

type resourceLocalFacadeProvider struct {
	handles HandleProvider
}

// NewResourceLocalFacadeProvider returns facades running private transactions on the handle.
// Resource local transactions do not nest, every facade is an outer one: a nested call boundary
// gets the nested scope its LocalHandle opens.
func NewResourceLocalFacadeProvider(handles HandleProvider) FacadeProvider {
	if handles == nil {
		panic("persist: handle provider is mandatory")
	}
	return &resourceLocalFacadeProvider{handles: handles}
}

func (p *resourceLocalFacadeProvider) Facade(ctx context.Context) (TransactionFacade, error) {
	h, err := p.handles.Get(ctx)
	if err != nil {
		return nil, err
	}
	lh, ok := h.(LocalHandle)
	if !ok {
		return nil, ErrNotLocalHandle
	}
	return &localOuter{handle: lh}, nil
}

type localOuter struct {
	handle LocalHandle
	txn    Txn
}

func (t *localOuter) Begin(ctx context.Context) (context.Context, error) {
	txn, err := t.handle.Begin(ctx)
	if err != nil {
		return ctx, &PersistenceError{Msg: "begin transaction", Cause: err}
	}
	t.txn = txn
	return ctx, nil
}

func (t *localOuter) Commit(ctx context.Context) error {
	if t.txn == nil {
		return nil
	}
	if err := t.txn.Commit(ctx); err != nil {
		return &PersistenceError{Msg: "commit transaction", Cause: err}
	}
	return nil
}

func (t *localOuter) Rollback(ctx context.Context) error {
	if t.txn == nil {
		return nil
	}
	if err := t.txn.Rollback(ctx); err != nil {
		return &PersistenceError{Msg: "rollback transaction", Cause: err}
	}
	return nil
}
