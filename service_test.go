package persist_test

import (
	"context"
	"errors"
	"testing"

	"github.com/go-saas/persist"
	"github.com/go-saas/persist/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplicationManagedService(t *testing.T) {
	journal := &mock.Journal{}
	var created *mock.Factory
	s := persist.NewApplicationManagedService("orders", persist.Properties{"dsn": "memory"}, func(ctx context.Context, unitName string, props persist.Properties) (persist.Factory, error) {
		assert.Equal(t, "orders", unitName)
		assert.Equal(t, "memory", props["dsn"])
		created = mock.NewFactory(journal)
		return created, nil
	})
	ctx := context.Background()

	assert.False(t, s.IsRunning())
	_, err := s.Factory()
	assert.ErrorIs(t, err, persist.ErrServiceNotRunning)

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(ctx), persist.ErrServiceRunning)

	f, err := s.Factory()
	require.NoError(t, err)
	assert.Same(t, created, f)

	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())
	assert.True(t, created.Closed())
	// stopping a stopped service is a no-op
	assert.NoError(t, s.Stop(ctx))
	assert.Equal(t, 1, journal.Count("factory close"))

	// restartable
	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
}

func TestApplicationManagedServiceCreateFailure(t *testing.T) {
	cause := errors.New("unreachable")
	s := persist.NewApplicationManagedService("orders", nil, func(ctx context.Context, unitName string, props persist.Properties) (persist.Factory, error) {
		return nil, cause
	})
	err := s.Start(context.Background())
	var pe *persist.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "orders", pe.Unit)
	assert.ErrorIs(t, err, cause)
	assert.False(t, s.IsRunning())
}

func TestContainerManagedService(t *testing.T) {
	f := mock.NewFactory(nil)
	s := persist.NewContainerManagedService(persist.FactoryInstance(f))
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(ctx), persist.ErrServiceRunning)

	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())
	// the factory belongs to someone else
	assert.False(t, f.Closed())
}

func TestFactoryInstanceNil(t *testing.T) {
	s := persist.NewContainerManagedService(persist.FactoryInstance(nil))
	assert.ErrorIs(t, s.Start(context.Background()), persist.ErrConfiguration)
}

func TestRegistryLookup(t *testing.T) {
	r := persist.NewRegistry()
	s := persist.NewContainerManagedService(persist.LookupFactory(r, "units/orders"))
	ctx := context.Background()

	err := s.Start(ctx)
	var pe *persist.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Error(), "lookup for factory with name 'units/orders'")
	assert.False(t, s.IsRunning())

	f := mock.NewFactory(nil)
	r.Bind("units/orders", f)
	require.NoError(t, s.Start(ctx))
	got, err := s.Factory()
	require.NoError(t, err)
	assert.Same(t, f, got)

	r.Unbind("units/orders")
	_, err = r.Lookup("units/orders")
	assert.Error(t, err)
}
