package persist

import (
	"errors"
	"fmt"
)

var (
	ErrUnitOfWorkNotActive = errors.New("unit of work is not active, please wrap with a transactional call or UnitOfWork.Begin")
	ErrUnitOfWorkActive    = errors.New("unit of work has already been started")
	ErrServiceRunning      = errors.New("persistence service is already running")
	ErrServiceNotRunning   = errors.New("persistence service is not running")
	ErrNotLocalHandle      = errors.New("handle does not support resource local transactions")
	ErrNotJoinableHandle   = errors.New("handle can not join a global transaction")
	ErrDuplicateUnit       = errors.New("persistence unit already registered")
	ErrConfiguration       = errors.New("persistence unit is improperly configured")
)

// PersistenceError is a resource manager failure
type PersistenceError struct {
	Unit  string
	Msg   string
	Cause error
}

func (e *PersistenceError) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("persist: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("persist: unit %s: %s: %v", e.Unit, e.Msg, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// TransactionError is a failure of the global transaction manager
type TransactionError struct {
	Op    string
	Cause error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("persist: global transaction %s failed: %v", e.Op, e.Cause)
}

func (e *TransactionError) Unwrap() error {
	return e.Cause
}

// PanicError is the failure seen by rollback rules when the wrapped call panics.
// The original value is re-panicked after the transaction has been completed.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it is an error
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func configErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
