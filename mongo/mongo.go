// Package mongo runs persistence units on mongo sessions.
//
// Only the outermost transaction boundary starts a mongo transaction. Nested boundaries join it:
// their commit does nothing and their rollback marks the transaction rollback-only, so the
// outermost commit aborts and reports ErrRollbackOnly.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-saas/persist"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	PropURI      = "uri"
	PropDatabase = "mongo.database"
	// PropReadConcern and PropWriteConcern are handle properties used when a transaction starts
	PropReadConcern  = "mongo.read_concern"
	PropWriteConcern = "mongo.write_concern"
)

var (
	ErrHandleClosed = errors.New("mongo: handle is closed")
	ErrTxnDone      = errors.New("mongo: transaction has already been completed")
	ErrRollbackOnly = errors.New("mongo: transaction is marked rollback only")
)

type Factory struct {
	client   *mongo.Client
	database string
}

var _ persist.Factory = (*Factory)(nil)

func NewFactory(client *mongo.Client, database string) *Factory {
	return &Factory{client: client, database: database}
}

func (f *Factory) Client() *mongo.Client {
	return f.client
}

// CreateHandle starts a session that lives until the handle is closed
func (f *Factory) CreateHandle(ctx context.Context, props persist.Properties) (persist.Handle, error) {
	opts, err := txnOptions(props)
	if err != nil {
		return nil, err
	}
	sess, err := f.client.StartSession(options.Session())
	if err != nil {
		return nil, err
	}
	return &Handle{sess: sess, db: f.client.Database(f.database), opts: opts}, nil
}

func (f *Factory) Close() error {
	return f.client.Disconnect(context.Background())
}

func txnOptions(props persist.Properties) (*options.TransactionOptions, error) {
	opts := options.Transaction()
	if v, ok := props[PropReadConcern]; ok {
		var rc *readconcern.ReadConcern
		switch v {
		case "local":
			rc = readconcern.Local()
		case "majority":
			rc = readconcern.Majority()
		case "available":
			rc = readconcern.Available()
		case "snapshot":
			rc = readconcern.Snapshot()
		default:
			return nil, fmt.Errorf("%w: %s: unknown read concern %s", persist.ErrConfiguration, PropReadConcern, v)
		}
		opts.SetReadConcern(rc)
	}
	if v, ok := props[PropWriteConcern]; ok {
		var wc *writeconcern.WriteConcern
		switch v {
		case "majority":
			wc = writeconcern.Majority()
		case "journaled":
			wc = writeconcern.Journaled()
		default:
			return nil, fmt.Errorf("%w: %s: unknown write concern %s", persist.ErrConfiguration, PropWriteConcern, v)
		}
		opts.SetWriteConcern(wc)
	}
	return opts, nil
}

// NewCreator connects a client with the uri property of the unit
func NewCreator(opts ...*options.ClientOptions) persist.FactoryCreator {
	return func(ctx context.Context, unitName string, props persist.Properties) (persist.Factory, error) {
		uri, database := props[PropURI], props[PropDatabase]
		if uri == "" || database == "" {
			return nil, fmt.Errorf("%w: unit %s: properties %s and %s are mandatory", persist.ErrConfiguration, unitName, PropURI, PropDatabase)
		}
		client, err := mongo.Connect(ctx, append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, opts...)...)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return NewFactory(client, database), nil
	}
}

type Handle struct {
	sess         mongo.Session
	db           *mongo.Database
	opts         *options.TransactionOptions
	depth        int
	rollbackOnly bool
	closed       bool
}

var _ persist.LocalHandle = (*Handle)(nil)

func (h *Handle) Database() *mongo.Database {
	return h.db
}

// Context binds the session to ctx. Operations must run with the returned context to take
// part in the transaction.
func (h *Handle) Context(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, h.sess)
}

func (h *Handle) Begin(ctx context.Context) (persist.Txn, error) {
	if h.closed {
		return nil, ErrHandleClosed
	}
	if h.depth == 0 {
		if err := h.sess.StartTransaction(h.opts); err != nil {
			return nil, err
		}
		h.rollbackOnly = false
	}
	h.depth++
	return &Txn{handle: h, level: h.depth}, nil
}

// Close aborts a transaction left running and ends the session
func (h *Handle) Close(ctx context.Context) error {
	if h.closed {
		return ErrHandleClosed
	}
	h.closed = true
	var err error
	if h.depth > 0 {
		h.depth = 0
		err = h.sess.AbortTransaction(ctx)
	}
	h.sess.EndSession(ctx)
	return err
}

type Txn struct {
	handle *Handle
	level  int
	done   bool
}

var _ persist.Txn = (*Txn)(nil)

func (t *Txn) complete() error {
	if t.done || t.handle.closed || t.handle.depth != t.level {
		return ErrTxnDone
	}
	t.done = true
	t.handle.depth--
	return nil
}

func (t *Txn) Commit(ctx context.Context) error {
	if err := t.complete(); err != nil {
		return err
	}
	h := t.handle
	if t.level > 1 {
		return nil
	}
	if h.rollbackOnly {
		return errors.Join(ErrRollbackOnly, h.sess.AbortTransaction(ctx))
	}
	return h.sess.CommitTransaction(ctx)
}

func (t *Txn) Rollback(ctx context.Context) error {
	if err := t.complete(); err != nil {
		return err
	}
	h := t.handle
	if t.level > 1 {
		h.rollbackOnly = true
		return nil
	}
	return h.sess.AbortTransaction(ctx)
}

// SessionOf returns the database of the unit of work active in ctx and ctx bound to its session
func SessionOf(ctx context.Context, handles persist.HandleProvider) (context.Context, *mongo.Database, error) {
	h, err := persist.HandleAs[*Handle](ctx, handles)
	if err != nil {
		return nil, nil, err
	}
	return h.Context(ctx), h.db, nil
}
