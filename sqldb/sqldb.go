// Package sqldb runs persistence units on database/sql connections
package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-saas/persist"
	sqldblogger "github.com/simukti/sqldb-logger"
)

const (
	PropDSN          = "dsn"
	PropMaxOpenConns = "sqldb.max_open_conns"
	// PropReadOnly and PropIsolation are handle properties used by the outermost BeginTx
	PropReadOnly  = "sqldb.read_only"
	PropIsolation = "sqldb.isolation"
)

var (
	ErrHandleClosed = errors.New("sqldb: handle is closed")
	ErrTxnDone      = errors.New("sqldb: transaction has already been completed")
)

var isolationLevels = map[string]sql.IsolationLevel{
	"default":          sql.LevelDefault,
	"read_uncommitted": sql.LevelReadUncommitted,
	"read_committed":   sql.LevelReadCommitted,
	"repeatable_read":  sql.LevelRepeatableRead,
	"serializable":     sql.LevelSerializable,
}

// Executor is implemented by both *sql.Conn and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Factory struct {
	db *sql.DB
}

var _ persist.Factory = (*Factory)(nil)

func NewFactory(db *sql.DB) *Factory {
	return &Factory{db: db}
}

func (f *Factory) DB() *sql.DB {
	return f.db
}

// CreateHandle reserves a connection of the pool until the handle is closed
func (f *Factory) CreateHandle(ctx context.Context, props persist.Properties) (persist.Handle, error) {
	opts, err := txOptions(props)
	if err != nil {
		return nil, err
	}
	conn, err := f.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &Handle{conn: conn, opts: opts}, nil
}

func (f *Factory) Close() error {
	return f.db.Close()
}

func txOptions(props persist.Properties) (*sql.TxOptions, error) {
	opts := &sql.TxOptions{}
	if v, ok := props[PropReadOnly]; ok {
		readOnly, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", persist.ErrConfiguration, PropReadOnly, err)
		}
		opts.ReadOnly = readOnly
	}
	if v, ok := props[PropIsolation]; ok {
		level, ok := isolationLevels[v]
		if !ok {
			return nil, fmt.Errorf("%w: %s: unknown isolation level %s", persist.ErrConfiguration, PropIsolation, v)
		}
		opts.Isolation = level
	}
	return opts, nil
}

type creatorOptions struct {
	logger     log.Logger
	loggerOpts []sqldblogger.Option
}

type CreatorOption func(*creatorOptions)

// WithSQLLogger logs every statement through logger
func WithSQLLogger(logger log.Logger, opts ...sqldblogger.Option) CreatorOption {
	return func(o *creatorOptions) {
		o.logger = logger
		o.loggerOpts = opts
	}
}

// NewCreator opens a pool over drv with the dsn property of the unit
func NewCreator(drv driver.Driver, opts ...CreatorOption) persist.FactoryCreator {
	o := &creatorOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return func(ctx context.Context, unitName string, props persist.Properties) (persist.Factory, error) {
		dsn := props[PropDSN]
		if dsn == "" {
			return nil, fmt.Errorf("%w: unit %s: property %s is mandatory", persist.ErrConfiguration, unitName, PropDSN)
		}
		var db *sql.DB
		if o.logger != nil {
			db = sqldblogger.OpenDriver(dsn, drv, &kratosLogger{logger: log.With(o.logger, "unit", unitName)}, o.loggerOpts...)
		} else {
			db = sql.OpenDB(&dsnConnector{dsn: dsn, driver: drv})
		}
		if v, ok := props[PropMaxOpenConns]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("%w: %s: %v", persist.ErrConfiguration, PropMaxOpenConns, err)
			}
			db.SetMaxOpenConns(n)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return NewFactory(db), nil
	}
}

type dsnConnector struct {
	dsn    string
	driver driver.Driver
}

func (c *dsnConnector) Connect(ctx context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c *dsnConnector) Driver() driver.Driver {
	return c.driver
}

// kratosLogger routes sqldb-logger output to a kratos logger
type kratosLogger struct {
	logger log.Logger
}

func (l *kratosLogger) Log(ctx context.Context, level sqldblogger.Level, msg string, data map[string]interface{}) {
	lvl := log.LevelDebug
	switch level {
	case sqldblogger.LevelError:
		lvl = log.LevelError
	case sqldblogger.LevelInfo:
		lvl = log.LevelInfo
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kv := make([]interface{}, 0, 2+2*len(keys))
	kv = append(kv, "msg", "[persist] "+msg)
	for _, k := range keys {
		kv = append(kv, k, data[k])
	}
	_ = l.logger.Log(lvl, kv...)
}

// Handle is a connection reserved for one unit of work. Nested transactions are savepoints.
type Handle struct {
	conn  *sql.Conn
	opts  *sql.TxOptions
	tx    *sql.Tx
	depth int
	// top is the innermost running scope
	top    *Txn
	closed bool
}

var _ persist.LocalHandle = (*Handle)(nil)

// Executor returns the running transaction, or the connection when none is running
func (h *Handle) Executor() Executor {
	if h.tx != nil {
		return h.tx
	}
	return h.conn
}

func (h *Handle) Begin(ctx context.Context) (persist.Txn, error) {
	if h.closed {
		return nil, ErrHandleClosed
	}
	t := &Txn{handle: h, parent: h.top}
	if h.tx == nil {
		tx, err := h.conn.BeginTx(ctx, h.opts)
		if err != nil {
			return nil, err
		}
		h.tx = tx
	} else {
		t.savepoint = fmt.Sprintf("sp_%d", h.depth)
		if _, err := h.tx.ExecContext(ctx, "SAVEPOINT "+t.savepoint); err != nil {
			return nil, err
		}
	}
	h.depth++
	h.top = t
	return t, nil
}

// Close rolls back a transaction left running and returns the connection to the pool
func (h *Handle) Close(ctx context.Context) error {
	if h.closed {
		return ErrHandleClosed
	}
	h.closed = true
	var rbErr error
	if h.tx != nil {
		rbErr = h.tx.Rollback()
		h.tx = nil
		h.top = nil
	}
	return errors.Join(rbErr, h.conn.Close())
}

type Txn struct {
	handle    *Handle
	parent    *Txn
	savepoint string
	done      bool
}

var _ persist.Txn = (*Txn)(nil)

func (t *Txn) complete() (*Handle, error) {
	h := t.handle
	if t.done || h.top != t {
		return nil, ErrTxnDone
	}
	t.done = true
	h.top = t.parent
	h.depth--
	return h, nil
}

func (t *Txn) Commit(ctx context.Context) error {
	h, err := t.complete()
	if err != nil {
		return err
	}
	if t.savepoint != "" {
		_, err := h.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+t.savepoint)
		return err
	}
	tx := h.tx
	h.tx = nil
	return tx.Commit()
}

func (t *Txn) Rollback(ctx context.Context) error {
	h, err := t.complete()
	if err != nil {
		return err
	}
	if t.savepoint != "" {
		if _, err := h.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+t.savepoint); err != nil {
			return err
		}
		_, err := h.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+t.savepoint)
		return err
	}
	tx := h.tx
	h.tx = nil
	return tx.Rollback()
}

// ExecutorOf returns the Executor of the unit of work active in ctx
func ExecutorOf(ctx context.Context, handles persist.HandleProvider) (Executor, error) {
	h, err := persist.HandleAs[*Handle](ctx, handles)
	if err != nil {
		return nil, err
	}
	return h.Executor(), nil
}
