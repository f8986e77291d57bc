package persist

import (
	"context"
)

//go:generate mockgen -destination=internal/mocks/persist.go -package=mocks github.com/go-saas/persist JoinableHandle,UserTransaction

// Properties are passed to the resource manager when a factory or a handle is created
type Properties map[string]string

// Handle is an opaque unit of persistent work, e.g. a session or a pooled connection
type Handle interface {
	Close(ctx context.Context) error
}

// Factory creates independent handles. It must be safe for concurrent use.
type Factory interface {
	CreateHandle(ctx context.Context, props Properties) (Handle, error)
	Close() error
}

// FactoryProvider supplies the factory of a running persistence service
type FactoryProvider interface {
	Factory() (Factory, error)
}

// FactoryCreator creates an application managed factory for the named unit
type FactoryCreator func(ctx context.Context, unitName string, props Properties) (Factory, error)

// FactorySource resolves a factory managed outside of this package
type FactorySource interface {
	Resolve(ctx context.Context) (Factory, error)
}

// FactorySourceFunc adapts a function to FactorySource
type FactorySourceFunc func(ctx context.Context) (Factory, error)

func (f FactorySourceFunc) Resolve(ctx context.Context) (Factory, error) {
	return f(ctx)
}

// Txn is a resource local transaction scope opened on a handle
type Txn interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// LocalHandle can run resource local transactions.
//
// Begin on a handle which already runs a transaction must not start a second independent
// transaction: implementations open a nested scope (savepoint) or join the running one.
type LocalHandle interface {
	Handle
	Begin(ctx context.Context) (Txn, error)
}

// JoinableHandle can enlist in a globally coordinated transaction
type JoinableHandle interface {
	Handle
	JoinTransaction(ctx context.Context) error
}

// Status of a globally coordinated transaction
type Status int

const (
	StatusActive Status = iota
	StatusMarkedRollback
	StatusPrepared
	StatusCommitted
	StatusRolledBack
	StatusUnknown
	StatusNoTransaction
	StatusPreparing
	StatusCommitting
	StatusRollingBack
)

var statusNames = map[Status]string{
	StatusActive:         "active",
	StatusMarkedRollback: "marked_rollback",
	StatusPrepared:       "prepared",
	StatusCommitted:      "committed",
	StatusRolledBack:     "rolled_back",
	StatusUnknown:        "unknown",
	StatusNoTransaction:  "no_transaction",
	StatusPreparing:      "preparing",
	StatusCommitting:     "committing",
	StatusRollingBack:    "rolling_back",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "invalid"
}

// UserTransaction is the global transaction manager facade.
//
// The transaction is bound to the ctx returned by Begin, all other methods act on the
// transaction bound to the given ctx.
type UserTransaction interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	SetRollbackOnly(ctx context.Context) error
	Status(ctx context.Context) (Status, error)
}
