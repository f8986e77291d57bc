package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-saas/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type producer struct {
	mtx    sync.Mutex
	sent   []string
	closed bool
}

func (p *producer) Close() error {
	p.closed = true
	return nil
}

func (p *producer) Send(ctx context.Context, msg Event) error {
	return p.BatchSend(ctx, []Event{msg})
}

func (p *producer) BatchSend(ctx context.Context, msg []Event) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for _, event := range msg {
		p.sent = append(p.sent, event.Key())
	}
	return nil
}

func (p *producer) Sent() []string {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return append([]string(nil), p.sent...)
}

var _ Producer = (*producer)(nil)

var errFake = errors.New("fake error")

func newEventUnit(t *testing.T) (*producer, *TransactionalProducer, persist.Interceptor) {
	t.Helper()
	p := &producer{}
	m, err := persist.NewModule([]*persist.UnitConfig{
		persist.NewUnit("events", persist.ApplicationManaged(func(ctx context.Context, unitName string, props persist.Properties) (persist.Factory, error) {
			return NewFactory(p), nil
		}, nil)),
	})
	require.NoError(t, err)
	require.NoError(t, m.Service().Start(context.Background()))
	t.Cleanup(func() {
		_ = m.Service().Stop(context.Background())
	})
	u, _ := m.Unit("")
	return p, NewTransactionalProducer(p, u.Handles()), m.Interceptor()
}

func TestUow(t *testing.T) {
	p, transP, i := newEventUnit(t)

	err := persist.WithTransaction(context.Background(), i, persist.RollbackOnAny(), func(ctx context.Context) error {
		if err := transP.Send(ctx, NewMessage("1", nil)); err != nil {
			return err
		}
		if err := transP.Send(ctx, NewMessage("2", nil)); err != nil {
			return err
		}
		if err := transP.BatchSend(ctx, []Event{NewMessage("3", nil)}); err != nil {
			return err
		}
		assert.Empty(t, p.Sent())
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, p.Sent())
}

func TestUowRollback(t *testing.T) {
	p, transP, i := newEventUnit(t)

	err := persist.WithTransaction(context.Background(), i, persist.RollbackOnAny(), func(ctx context.Context) error {
		assert.NoError(t, transP.Send(ctx, NewMessage("1", nil)))
		return errFake
	})
	assert.ErrorIs(t, err, errFake)
	assert.Empty(t, p.Sent())
}

func TestUowNested(t *testing.T) {
	p, transP, i := newEventUnit(t)

	err := persist.WithTransaction(context.Background(), i, persist.RollbackOnAny(), func(ctx context.Context) error {
		assert.NoError(t, transP.Send(ctx, NewMessage("outer", nil)))
		err := persist.WithTransaction(ctx, i, persist.RollbackOnAny(), func(ctx context.Context) error {
			assert.NoError(t, transP.Send(ctx, NewMessage("dropped", nil)))
			return errFake
		})
		assert.ErrorIs(t, err, errFake)
		return persist.WithTransaction(ctx, i, persist.RollbackOnAny(), func(ctx context.Context) error {
			return transP.Send(ctx, NewMessage("kept", nil))
		})
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"outer", "kept"}, p.Sent())
}

func TestWithoutUow(t *testing.T) {
	p, transP, _ := newEventUnit(t)

	assert.NoError(t, transP.Send(context.Background(), NewMessage("direct", nil)))
	assert.Equal(t, []string{"direct"}, p.Sent())
}

func TestFactoryClosesProducer(t *testing.T) {
	p := &producer{}
	f := NewFactory(p)
	h, err := f.CreateHandle(context.Background(), nil)
	require.NoError(t, err)
	o := h.(*Outbox)

	txn, err := o.Begin(context.Background())
	require.NoError(t, err)
	assert.NoError(t, o.Send(context.Background(), NewMessage("lost", nil)))
	assert.NoError(t, o.Close(context.Background()))
	assert.ErrorIs(t, o.Send(context.Background(), NewMessage("late", nil)), ErrOutboxClosed)
	assert.NoError(t, txn.Rollback(context.Background()))
	assert.ErrorIs(t, txn.Commit(context.Background()), ErrTxnDone)
	assert.Empty(t, p.Sent())

	assert.NoError(t, f.Close())
	assert.True(t, p.closed)
}

func TestMessageHeader(t *testing.T) {
	m := NewMessage("k", []byte("v"))
	m.Header().Set("trace-id", "abc")
	assert.Equal(t, "abc", m.Header().Get("trace-id"))
	assert.Equal(t, []string{"Trace-Id"}, m.Header().Keys())
	assert.Equal(t, []byte("v"), m.Value())
}
