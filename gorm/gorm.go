package gorm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/go-saas/persist"
	"gorm.io/gorm"
)

const (
	// PropDSN is the factory property holding the data source name
	PropDSN = "dsn"
	// PropPrepareStmt and PropSkipHooks are handle properties mapped to gorm.Session
	PropPrepareStmt = "gorm.prepare_stmt"
	PropSkipHooks   = "gorm.skip_hooks"
)

var (
	ErrHandleClosed = errors.New("gorm: handle is closed")
	ErrTxnDone      = errors.New("gorm: transaction has already been completed")
	// ErrRollbackOnly is returned by a commit after a joined scope has rolled back
	ErrRollbackOnly = errors.New("gorm: transaction was marked rollback only by a nested scope and has been rolled back")
)

type Factory struct {
	db *gorm.DB
}

var _ persist.Factory = (*Factory)(nil)

// NewFactory creates handles sharing the connection pool of db
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{db: db}
}

func (f *Factory) CreateHandle(ctx context.Context, props persist.Properties) (persist.Handle, error) {
	session := &gorm.Session{NewDB: true, Context: ctx}
	var err error
	if v, ok := props[PropPrepareStmt]; ok {
		if session.PrepareStmt, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", persist.ErrConfiguration, PropPrepareStmt, err)
		}
	}
	if v, ok := props[PropSkipHooks]; ok {
		if session.SkipHooks, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", persist.ErrConfiguration, PropSkipHooks, err)
		}
	}
	return &Handle{db: f.db.Session(session)}, nil
}

// Close closes the underlying connection pool
func (f *Factory) Close() error {
	sqlDB, err := f.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewCreator opens a gorm.DB with the dialector built from the dsn property of the unit
func NewCreator(dialector func(dsn string) gorm.Dialector, opts ...gorm.Option) persist.FactoryCreator {
	return func(ctx context.Context, unitName string, props persist.Properties) (persist.Factory, error) {
		dsn := props[PropDSN]
		if dsn == "" {
			return nil, fmt.Errorf("%w: unit %s: property %s is mandatory", persist.ErrConfiguration, unitName, PropDSN)
		}
		db, err := gorm.Open(dialector(dsn), opts...)
		if err != nil {
			return nil, err
		}
		return NewFactory(db), nil
	}
}

// Handle is a gorm session. Nested transactions are savepoints unless DisableNestedTransaction
// is set, in which case nested scopes join the running transaction.
type Handle struct {
	mtx sync.Mutex
	db  *gorm.DB
	// tx is the innermost running transaction, begun the one opened by Begin
	tx           *gorm.DB
	begun        *gorm.DB
	rollbackOnly bool
	closed       bool
}

var _ persist.LocalHandle = (*Handle)(nil)

// DB returns the running transaction, or the session when none is running
func (h *Handle) DB() *gorm.DB {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return h.current()
}

func (h *Handle) current() *gorm.DB {
	if h.tx != nil {
		return h.tx
	}
	return h.db
}

func (h *Handle) Begin(ctx context.Context) (persist.Txn, error) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.closed {
		return nil, ErrHandleClosed
	}
	db := h.current()
	t := &Txn{handle: h, parent: h.tx}
	// see https://github.com/go-gorm/gorm/blob/f3c6fc253356919e8ebbcf7bc50e8c7fe88802aa/finisher_api.go#L615-L655
	if committer, ok := db.Statement.ConnPool.(gorm.TxCommitter); ok && committer != nil {
		t.db = db
		if db.DisableNestedTransaction {
			t.joined = true
			return t, nil
		}
		t.savepoint = fmt.Sprintf("sp%p", t)
		if err := db.WithContext(ctx).SavePoint(t.savepoint).Error; err != nil {
			return nil, err
		}
	} else {
		tx := db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return nil, tx.Error
		}
		t.db = tx
		h.begun = tx
	}
	h.tx = t.db
	return t, nil
}

// Close rolls back a transaction left running
func (h *Handle) Close(ctx context.Context) error {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	h.closed = true
	h.tx = nil
	if h.begun != nil {
		tx := h.begun
		h.begun = nil
		return tx.Rollback().Error
	}
	return nil
}

// Txn is a transaction scope of a Handle
type Txn struct {
	handle    *Handle
	parent    *gorm.DB
	db        *gorm.DB
	savepoint string
	joined    bool
	done      bool
}

var _ persist.Txn = (*Txn)(nil)

func (t *Txn) Commit(ctx context.Context) error {
	h := t.handle
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if t.done {
		return ErrTxnDone
	}
	t.done = true
	if t.joined {
		return nil
	}
	h.tx = t.parent
	if t.savepoint != "" {
		//nested level do not need to commit
		return nil
	}
	h.begun = nil
	if h.rollbackOnly {
		h.rollbackOnly = false
		if err := t.db.Rollback().Error; err != nil {
			return err
		}
		return ErrRollbackOnly
	}
	return t.db.Commit().Error
}

func (t *Txn) Rollback(ctx context.Context) error {
	h := t.handle
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if t.done {
		return ErrTxnDone
	}
	t.done = true
	if t.joined {
		h.rollbackOnly = true
		return nil
	}
	h.tx = t.parent
	if t.savepoint != "" {
		return t.db.WithContext(ctx).RollbackTo(t.savepoint).Error
	}
	h.begun = nil
	h.rollbackOnly = false
	return t.db.Rollback().Error
}

// DB returns the gorm.DB of the unit of work active in ctx
func DB(ctx context.Context, handles persist.HandleProvider) (*gorm.DB, error) {
	h, err := persist.HandleAs[*Handle](ctx, handles)
	if err != nil {
		return nil, err
	}
	return h.DB().WithContext(ctx), nil
}
