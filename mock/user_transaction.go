package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/go-saas/persist"
)

var (
	ErrNestedNotSupported  = errors.New("mock: nested global transactions are not supported")
	ErrRolledBack          = errors.New("mock: transaction marked for rollback was rolled back")
	errNoGlobalTransaction = errors.New("mock: no global transaction")
)

type globalKey struct{}

type globalTxn struct {
	mtx    sync.Mutex
	status persist.Status
	joined int
	writes map[*Store]map[string]string
}

func globalFromContext(ctx context.Context) (*globalTxn, bool) {
	g, ok := ctx.Value(globalKey{}).(*globalTxn)
	if !ok {
		return nil, false
	}
	g.mtx.Lock()
	defer g.mtx.Unlock()
	if g.status == persist.StatusNoTransaction {
		return nil, false
	}
	return g, true
}

func (g *globalTxn) stage(s *Store, key, value string) error {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	if g.status != persist.StatusActive && g.status != persist.StatusMarkedRollback {
		return errNoGlobalTransaction
	}
	w, ok := g.writes[s]
	if !ok {
		w = map[string]string{}
		g.writes[s] = w
	}
	w[key] = value
	return nil
}

// UserTransaction is an in-memory global transaction manager binding transactions to ctx
type UserTransaction struct {
	Journal *Journal
}

var _ persist.UserTransaction = (*UserTransaction)(nil)

func NewUserTransaction(journal *Journal) *UserTransaction {
	return &UserTransaction{Journal: journal}
}

func (u *UserTransaction) Begin(ctx context.Context) (context.Context, error) {
	if _, ok := globalFromContext(ctx); ok {
		return ctx, ErrNestedNotSupported
	}
	u.Journal.Record("ut begin")
	g := &globalTxn{status: persist.StatusActive, writes: map[*Store]map[string]string{}}
	return context.WithValue(ctx, globalKey{}, g), nil
}

func (u *UserTransaction) Commit(ctx context.Context) error {
	g, ok := globalFromContext(ctx)
	if !ok {
		return errNoGlobalTransaction
	}
	g.mtx.Lock()
	defer g.mtx.Unlock()
	if g.status == persist.StatusMarkedRollback {
		g.status = persist.StatusNoTransaction
		u.Journal.Record("ut rollback")
		return ErrRolledBack
	}
	for s, w := range g.writes {
		s.apply(w)
	}
	g.status = persist.StatusNoTransaction
	u.Journal.Record("ut commit")
	return nil
}

func (u *UserTransaction) Rollback(ctx context.Context) error {
	g, ok := globalFromContext(ctx)
	if !ok {
		return errNoGlobalTransaction
	}
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.status = persist.StatusNoTransaction
	g.writes = nil
	u.Journal.Record("ut rollback")
	return nil
}

func (u *UserTransaction) SetRollbackOnly(ctx context.Context) error {
	g, ok := globalFromContext(ctx)
	if !ok {
		return errNoGlobalTransaction
	}
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.status = persist.StatusMarkedRollback
	u.Journal.Record("ut set rollback only")
	return nil
}

func (u *UserTransaction) Status(ctx context.Context) (persist.Status, error) {
	g, ok := globalFromContext(ctx)
	if !ok {
		return persist.StatusNoTransaction, nil
	}
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return g.status, nil
}
