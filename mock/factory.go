package mock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/go-saas/persist"
)

var ErrHandleClosed = errors.New("mock: handle is closed")

// Factory creates Handles writing to Store
type Factory struct {
	Store   *Store
	Journal *Journal
	// CreateErr and CloseErr are returned by CreateHandle and Handle.Close when set
	CreateErr error
	CloseErr  error

	open   atomic.Int32
	nextID atomic.Int32
	closed atomic.Bool
}

var _ persist.Factory = (*Factory)(nil)

func NewFactory(journal *Journal) *Factory {
	return &Factory{Store: NewStore(), Journal: journal}
}

func (f *Factory) CreateHandle(ctx context.Context, props persist.Properties) (persist.Handle, error) {
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	id := f.nextID.Add(1)
	f.open.Add(1)
	f.Journal.Record("create")
	return &Handle{id: int(id), factory: f, props: props}, nil
}

func (f *Factory) Close() error {
	f.closed.Store(true)
	f.Journal.Record("factory close")
	return nil
}

// Open is the number of handles created and not closed yet
func (f *Factory) Open() int {
	return int(f.open.Load())
}

func (f *Factory) Closed() bool {
	return f.closed.Load()
}

// Handle is a LocalHandle and a JoinableHandle
type Handle struct {
	id      int
	factory *Factory
	props   persist.Properties

	mtx    sync.Mutex
	txn    *Txn
	global *globalTxn
	closed bool
}

var (
	_ persist.LocalHandle    = (*Handle)(nil)
	_ persist.JoinableHandle = (*Handle)(nil)
)

func (h *Handle) ID() int {
	return h.id
}

func (h *Handle) Properties() persist.Properties {
	return h.props
}

func (h *Handle) Close(ctx context.Context) error {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	h.closed = true
	h.txn = nil
	h.factory.open.Add(-1)
	h.factory.Journal.Record("close")
	return h.factory.CloseErr
}

// Begin opens a transaction, or a nested scope when one is running
func (h *Handle) Begin(ctx context.Context) (persist.Txn, error) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.closed {
		return nil, ErrHandleClosed
	}
	t := &Txn{handle: h, parent: h.txn, writes: map[string]string{}}
	if t.parent == nil {
		h.factory.Journal.Record("begin")
	} else {
		h.factory.Journal.Record("savepoint")
	}
	h.txn = t
	return t, nil
}

func (h *Handle) JoinTransaction(ctx context.Context) error {
	g, ok := globalFromContext(ctx)
	if !ok {
		return errNoGlobalTransaction
	}
	g.mtx.Lock()
	g.joined++
	g.mtx.Unlock()
	h.mtx.Lock()
	h.global = g
	h.mtx.Unlock()
	h.factory.Journal.Record("join")
	return nil
}

// Persist writes key. The write is staged in the global transaction the handle joined or in
// its running local transaction, and reaches the Store only when that transaction commits.
func (h *Handle) Persist(ctx context.Context, key, value string) error {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	if g, ok := globalFromContext(ctx); ok && g == h.global {
		return g.stage(h.factory.Store, key, value)
	}
	if h.txn != nil {
		h.txn.writes[key] = value
		return nil
	}
	h.factory.Store.apply(map[string]string{key: value})
	return nil
}

// Txn is a local transaction or a nested scope of one
type Txn struct {
	handle *Handle
	parent *Txn
	writes map[string]string
}

func (t *Txn) Commit(ctx context.Context) error {
	h := t.handle
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.txn != t {
		return errors.New("mock: transaction is not the running one")
	}
	h.txn = t.parent
	if t.parent != nil {
		for k, v := range t.writes {
			t.parent.writes[k] = v
		}
		h.factory.Journal.Record("release")
		return nil
	}
	h.factory.Store.apply(t.writes)
	h.factory.Journal.Record("commit")
	return nil
}

func (t *Txn) Rollback(ctx context.Context) error {
	h := t.handle
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.txn != t {
		return errors.New("mock: transaction is not the running one")
	}
	h.txn = t.parent
	if t.parent != nil {
		h.factory.Journal.Record("rollback to savepoint")
		return nil
	}
	h.factory.Journal.Record("rollback")
	return nil
}
