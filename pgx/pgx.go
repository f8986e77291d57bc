// Package pgx runs persistence units on pgx connection pools
package pgx

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-saas/persist"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	PropDSN      = "dsn"
	PropMaxConns = "pgx.max_conns"
	// PropIsoLevel and PropAccessMode are handle properties used by the outermost transaction
	PropIsoLevel   = "pgx.iso_level"
	PropAccessMode = "pgx.access_mode"
)

var (
	ErrHandleClosed = errors.New("pgx: handle is closed")
	ErrTxnDone      = errors.New("pgx: transaction has already been completed")
)

// Querier is implemented by both *pgxpool.Conn and pgx.Tx
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Factory struct {
	pool *pgxpool.Pool
}

var _ persist.Factory = (*Factory)(nil)

func NewFactory(pool *pgxpool.Pool) *Factory {
	return &Factory{pool: pool}
}

func (f *Factory) Pool() *pgxpool.Pool {
	return f.pool
}

// CreateHandle acquires a connection of the pool until the handle is closed
func (f *Factory) CreateHandle(ctx context.Context, props persist.Properties) (persist.Handle, error) {
	opts, err := txOptions(props)
	if err != nil {
		return nil, err
	}
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Handle{conn: conn, opts: opts}, nil
}

func (f *Factory) Close() error {
	f.pool.Close()
	return nil
}

func txOptions(props persist.Properties) (pgx.TxOptions, error) {
	var opts pgx.TxOptions
	if v, ok := props[PropIsoLevel]; ok {
		switch l := pgx.TxIsoLevel(v); l {
		case pgx.Serializable, pgx.RepeatableRead, pgx.ReadCommitted, pgx.ReadUncommitted:
			opts.IsoLevel = l
		default:
			return opts, fmt.Errorf("%w: %s: unknown isolation level %s", persist.ErrConfiguration, PropIsoLevel, v)
		}
	}
	if v, ok := props[PropAccessMode]; ok {
		switch m := pgx.TxAccessMode(v); m {
		case pgx.ReadWrite, pgx.ReadOnly:
			opts.AccessMode = m
		default:
			return opts, fmt.Errorf("%w: %s: unknown access mode %s", persist.ErrConfiguration, PropAccessMode, v)
		}
	}
	return opts, nil
}

// NewCreator opens a pool with the dsn property of the unit
func NewCreator() persist.FactoryCreator {
	return func(ctx context.Context, unitName string, props persist.Properties) (persist.Factory, error) {
		dsn := props[PropDSN]
		if dsn == "" {
			return nil, fmt.Errorf("%w: unit %s: property %s is mandatory", persist.ErrConfiguration, unitName, PropDSN)
		}
		cfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("%w: unit %s: %v", persist.ErrConfiguration, unitName, err)
		}
		if v, ok := props[PropMaxConns]; ok {
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", persist.ErrConfiguration, PropMaxConns, err)
			}
			cfg.MaxConns = int32(n)
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewFactory(pool), nil
	}
}

// Handle is a connection acquired for one unit of work. Nested transactions are savepoints
// opened by pgx.Tx.Begin.
type Handle struct {
	conn   *pgxpool.Conn
	opts   pgx.TxOptions
	txs    []pgx.Tx
	closed bool
}

var _ persist.LocalHandle = (*Handle)(nil)

// Querier returns the innermost running transaction, or the connection when none is running
func (h *Handle) Querier() Querier {
	if n := len(h.txs); n > 0 {
		return h.txs[n-1]
	}
	return h.conn
}

func (h *Handle) Begin(ctx context.Context) (persist.Txn, error) {
	if h.closed {
		return nil, ErrHandleClosed
	}
	var tx pgx.Tx
	var err error
	if n := len(h.txs); n > 0 {
		tx, err = h.txs[n-1].Begin(ctx)
	} else {
		tx, err = h.conn.BeginTx(ctx, h.opts)
	}
	if err != nil {
		return nil, err
	}
	h.txs = append(h.txs, tx)
	return &Txn{handle: h, tx: tx, level: len(h.txs)}, nil
}

// Close rolls back a transaction left running and releases the connection
func (h *Handle) Close(ctx context.Context) error {
	if h.closed {
		return ErrHandleClosed
	}
	h.closed = true
	var err error
	if len(h.txs) > 0 {
		err = h.txs[0].Rollback(ctx)
		h.txs = nil
	}
	h.conn.Release()
	return err
}

type Txn struct {
	handle *Handle
	tx     pgx.Tx
	level  int
}

var _ persist.Txn = (*Txn)(nil)

func (t *Txn) pop() error {
	h := t.handle
	if len(h.txs) != t.level || h.txs[t.level-1] != t.tx {
		return ErrTxnDone
	}
	h.txs = h.txs[:t.level-1]
	return nil
}

func (t *Txn) Commit(ctx context.Context) error {
	if err := t.pop(); err != nil {
		return err
	}
	return t.tx.Commit(ctx)
}

func (t *Txn) Rollback(ctx context.Context) error {
	if err := t.pop(); err != nil {
		return err
	}
	return t.tx.Rollback(ctx)
}

// QuerierOf returns the Querier of the unit of work active in ctx
func QuerierOf(ctx context.Context, handles persist.HandleProvider) (Querier, error) {
	h, err := persist.HandleAs[*Handle](ctx, handles)
	if err != nil {
		return nil, err
	}
	return h.Querier(), nil
}
