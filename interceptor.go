package persist

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
)

// Handler is the wrapped call
type Handler func(ctx context.Context) (interface{}, error)

// Invocation is one call through an interceptor
type Invocation struct {
	// Transactional is the intent declared for the call site, nil when none was declared
	Transactional *Transactional
	Proceed       Handler
}

// Interceptor demarcates a call
type Interceptor interface {
	Invoke(ctx context.Context, inv Invocation) (interface{}, error)
}

// InterceptorFunc adapts a function to Interceptor
type InterceptorFunc func(ctx context.Context, inv Invocation) (interface{}, error)

func (f InterceptorFunc) Invoke(ctx context.Context, inv Invocation) (interface{}, error) {
	return f(ctx, inv)
}

// TxnInterceptor runs a call in the unit of work and the transaction of one persistence unit
type TxnInterceptor struct {
	unit    string
	tag     string
	uow     UnitOfWork
	facades FacadeProvider
	log     *log.Helper
}

var _ Interceptor = (*TxnInterceptor)(nil)

type InterceptorOption func(*TxnInterceptor)

// WithUnitTag restricts the interceptor to call sites naming tag in Transactional.OnUnits
func WithUnitTag(tag string) InterceptorOption {
	return func(i *TxnInterceptor) {
		i.tag = tag
	}
}

// WithInterceptorUnit names the unit in log lines
func WithInterceptorUnit(name string) InterceptorOption {
	return func(i *TxnInterceptor) {
		i.unit = name
	}
}

func WithInterceptorLogger(logger log.Logger) InterceptorOption {
	return func(i *TxnInterceptor) {
		i.log = log.NewHelper(logger)
	}
}

func NewTxnInterceptor(uow UnitOfWork, facades FacadeProvider, opts ...InterceptorOption) *TxnInterceptor {
	if uow == nil {
		panic("persist: unit of work is mandatory")
	}
	if facades == nil {
		panic("persist: facade provider is mandatory")
	}
	i := &TxnInterceptor{
		uow:     uow,
		facades: facades,
		log:     log.NewHelper(log.DefaultLogger),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *TxnInterceptor) Invoke(ctx context.Context, inv Invocation) (interface{}, error) {
	if inv.Transactional == nil || !inv.Transactional.Participates(i.tag) {
		return inv.Proceed(ctx)
	}
	return i.invokeInUnitOfWork(ctx, inv)
}

func (i *TxnInterceptor) invokeInUnitOfWork(ctx context.Context, inv Invocation) (res interface{}, err error) {
	if i.uow.IsActive(ctx) {
		// joiner, the owner ends the unit of work
		return i.invokeInTransaction(ctx, inv)
	}
	ctx, err = i.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	returned := false
	defer func() {
		endErr := i.uow.End(ctx)
		if endErr == nil {
			return
		}
		if returned && err == nil {
			res, err = nil, endErr
			return
		}
		i.log.Errorf("[persist] unit %s: end unit of work failed, discarded: %v", i.unit, endErr)
	}()
	res, err = i.invokeInTransaction(ctx, inv)
	returned = true
	return res, err
}

func (i *TxnInterceptor) invokeInTransaction(ctx context.Context, inv Invocation) (interface{}, error) {
	facade, err := i.facades.Facade(ctx)
	if err != nil {
		return nil, err
	}
	txCtx, err := facade.Begin(ctx)
	if err != nil {
		return nil, err
	}
	res, err := i.invokeAndHandleFailure(txCtx, inv, facade)
	if err != nil {
		return nil, err
	}
	if err := facade.Commit(txCtx); err != nil {
		return nil, err
	}
	return res, nil
}

func (i *TxnInterceptor) invokeAndHandleFailure(ctx context.Context, inv Invocation, facade TransactionFacade) (res interface{}, err error) {
	panicked := true
	defer func() {
		if !panicked {
			return
		}
		r := recover()
		i.handleFailure(ctx, inv.Transactional, facade, &PanicError{Value: r})
		// nil means runtime.Goexit, let it continue
		if r != nil {
			panic(r)
		}
	}()
	res, err = inv.Proceed(ctx)
	panicked = false
	if err != nil {
		i.handleFailure(ctx, inv.Transactional, facade, err)
	}
	return res, err
}

// handleFailure completes the attempt after a failure. Errors of the facade are discarded,
// the caller always sees the original failure.
func (i *TxnInterceptor) handleFailure(ctx context.Context, t *Transactional, facade TransactionFacade, failure error) {
	var err error
	if RollbackNecessary(t, failure) {
		i.log.Debugf("[persist] unit %s: rolling back after %v", i.unit, failure)
		err = facade.Rollback(ctx)
	} else {
		i.log.Debugf("[persist] unit %s: committing after %v", i.unit, failure)
		err = facade.Commit(ctx)
	}
	if err != nil {
		i.log.Warnf("[persist] unit %s: completing transaction failed, discarded in favor of %v: %v", i.unit, failure, err)
	}
}

type chain []Interceptor

// Chain runs interceptors around each other, the first one outermost
func Chain(interceptors ...Interceptor) Interceptor {
	return chain(interceptors)
}

func (c chain) Invoke(ctx context.Context, inv Invocation) (interface{}, error) {
	next := inv.Proceed
	for j := len(c) - 1; j >= 0; j-- {
		interceptor, proceed := c[j], next
		next = func(ctx context.Context) (interface{}, error) {
			return interceptor.Invoke(ctx, Invocation{Transactional: inv.Transactional, Proceed: proceed})
		}
	}
	return next(ctx)
}

// Wrap binds a call site declaration to fn
func Wrap(i Interceptor, t *Transactional, fn Handler) Handler {
	return func(ctx context.Context) (interface{}, error) {
		return i.Invoke(ctx, Invocation{Transactional: t, Proceed: fn})
	}
}

// WithTransaction runs fn through i with the declaration t
func WithTransaction(ctx context.Context, i Interceptor, t *Transactional, fn func(ctx context.Context) error) error {
	_, err := i.Invoke(ctx, Invocation{
		Transactional: t,
		Proceed: func(ctx context.Context) (interface{}, error) {
			return nil, fn(ctx)
		},
	})
	return err
}

// Transact runs fn through i with the declaration t and returns its typed result
func Transact[T any](ctx context.Context, i Interceptor, t *Transactional, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	res, err := i.Invoke(ctx, Invocation{
		Transactional: t,
		Proceed: func(ctx context.Context) (interface{}, error) {
			v, err := fn(ctx)
			return v, err
		},
	})
	if err != nil {
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}
