package event

import (
	"context"
	"errors"
	"sync"

	"github.com/go-saas/persist"
)

var (
	ErrOutboxClosed = errors.New("event: outbox is closed")
	ErrTxnDone      = errors.New("event: transaction has already been completed")
)

// Factory creates outboxes publishing to producer. Close closes the producer.
type Factory struct {
	producer Producer
}

var _ persist.Factory = (*Factory)(nil)

func NewFactory(producer Producer) *Factory {
	return &Factory{producer: producer}
}

func (f *Factory) CreateHandle(ctx context.Context, props persist.Properties) (persist.Handle, error) {
	return &Outbox{producer: f.producer}, nil
}

func (f *Factory) Close() error {
	return f.producer.Close()
}

// Outbox is the handle of an event unit. Events sent while a transaction runs are published
// by the commit of the outermost one and dropped by a rollback.
type Outbox struct {
	mtx      sync.Mutex
	producer Producer
	txn      *Txn
	closed   bool
}

var _ persist.LocalHandle = (*Outbox)(nil)

func (o *Outbox) Begin(ctx context.Context) (persist.Txn, error) {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	if o.closed {
		return nil, ErrOutboxClosed
	}
	t := &Txn{outbox: o, parent: o.txn}
	o.txn = t
	return t, nil
}

// Send buffers msg in the running transaction, or publishes it when none is running
func (o *Outbox) Send(ctx context.Context, msg ...Event) error {
	o.mtx.Lock()
	if o.closed {
		o.mtx.Unlock()
		return ErrOutboxClosed
	}
	if o.txn != nil {
		o.txn.events = append(o.txn.events, msg...)
		o.mtx.Unlock()
		return nil
	}
	o.mtx.Unlock()
	return o.producer.BatchSend(ctx, msg)
}

// Close drops events of a transaction left running
func (o *Outbox) Close(ctx context.Context) error {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	if o.closed {
		return ErrOutboxClosed
	}
	o.closed = true
	o.txn = nil
	return nil
}

type Txn struct {
	outbox *Outbox
	parent *Txn
	events []Event
	done   bool
}

var _ persist.Txn = (*Txn)(nil)

func (t *Txn) Commit(ctx context.Context) error {
	o := t.outbox
	o.mtx.Lock()
	if t.done {
		o.mtx.Unlock()
		return ErrTxnDone
	}
	t.done = true
	o.txn = t.parent
	if t.parent != nil {
		t.parent.events = append(t.parent.events, t.events...)
		o.mtx.Unlock()
		return nil
	}
	o.mtx.Unlock()
	if len(t.events) == 0 {
		return nil
	}
	return o.producer.BatchSend(ctx, t.events)
}

func (t *Txn) Rollback(ctx context.Context) error {
	o := t.outbox
	o.mtx.Lock()
	defer o.mtx.Unlock()
	if t.done {
		return ErrTxnDone
	}
	t.done = true
	o.txn = t.parent
	t.events = nil
	return nil
}

// TransactionalProducer sends through the outbox of the unit of work active in ctx, and
// straight to the wrapped producer outside of one
type TransactionalProducer struct {
	wrap    Producer
	handles persist.HandleProvider
}

var _ Producer = (*TransactionalProducer)(nil)

func NewTransactionalProducer(wrap Producer, handles persist.HandleProvider) *TransactionalProducer {
	return &TransactionalProducer{wrap: wrap, handles: handles}
}

func (t *TransactionalProducer) Close() error {
	return t.wrap.Close()
}

func (t *TransactionalProducer) Send(ctx context.Context, msg Event) error {
	return t.BatchSend(ctx, []Event{msg})
}

func (t *TransactionalProducer) BatchSend(ctx context.Context, msg []Event) error {
	//resolve outbox from unit of work
	o, err := persist.HandleAs[*Outbox](ctx, t.handles)
	if errors.Is(err, persist.ErrUnitOfWorkNotActive) {
		return t.wrap.BatchSend(ctx, msg)
	}
	if err != nil {
		return err
	}
	return o.Send(ctx, msg...)
}
