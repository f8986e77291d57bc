package pgx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-saas/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFake = errors.New("fake error")

// newModule connects to the database named by PERSIST_PG_DSN
func newModule(t *testing.T) (*persist.Module, *persist.Unit, string) {
	t.Helper()
	dsn := os.Getenv("PERSIST_PG_DSN")
	if dsn == "" {
		t.Skip("PERSIST_PG_DSN is not set")
	}
	m, err := persist.NewModule([]*persist.UnitConfig{
		persist.NewUnit("posts", persist.ApplicationManaged(NewCreator(), persist.Properties{PropDSN: dsn, PropMaxConns: "4"})),
	})
	require.NoError(t, err)
	require.NoError(t, m.Service().Start(context.Background()))
	t.Cleanup(func() {
		_ = m.Service().Stop(context.Background())
	})
	u, _ := m.Unit("")

	table := fmt.Sprintf("persist_posts_%d", time.Now().UnixNano())
	ctx, err := m.UnitOfWork().Begin(context.Background())
	require.NoError(t, err)
	q, err := QuerierOf(ctx, u.Handles())
	require.NoError(t, err)
	_, err = q.Exec(ctx, "CREATE TABLE "+table+" (id INT PRIMARY KEY)")
	require.NoError(t, err)
	require.NoError(t, m.UnitOfWork().End(ctx))
	t.Cleanup(func() {
		ctx, err := m.UnitOfWork().Begin(context.Background())
		if err != nil {
			return
		}
		defer m.UnitOfWork().End(ctx)
		if q, err := QuerierOf(ctx, u.Handles()); err == nil {
			_, _ = q.Exec(ctx, "DROP TABLE "+table)
		}
	})
	return m, u, table
}

func count(t *testing.T, m *persist.Module, u *persist.Unit, table string) int {
	t.Helper()
	ctx, err := m.UnitOfWork().Begin(context.Background())
	require.NoError(t, err)
	defer m.UnitOfWork().End(ctx)
	q, err := QuerierOf(ctx, u.Handles())
	require.NoError(t, err)
	var n int
	require.NoError(t, q.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestNested(t *testing.T) {
	m, u, table := newModule(t)
	i := m.Interceptor()
	insert := func(ctx context.Context, id int) error {
		q, err := QuerierOf(ctx, u.Handles())
		if err != nil {
			return err
		}
		_, err = q.Exec(ctx, "INSERT INTO "+table+" (id) VALUES ($1)", id)
		return err
	}

	err := persist.WithTransaction(context.Background(), i, persist.RollbackOnAny(), func(ctx context.Context) error {
		require.NoError(t, insert(ctx, 1))
		err := persist.WithTransaction(ctx, i, persist.RollbackOnAny(), func(ctx context.Context) error {
			require.NoError(t, insert(ctx, 2))
			return errFake
		})
		assert.ErrorIs(t, err, errFake)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, m, u, table))

	err = persist.WithTransaction(context.Background(), i, persist.RollbackOnAny(), func(ctx context.Context) error {
		require.NoError(t, insert(ctx, 3))
		return errFake
	})
	assert.ErrorIs(t, err, errFake)
	assert.Equal(t, 1, count(t, m, u, table))
}

func TestTxOptions(t *testing.T) {
	opts, err := txOptions(persist.Properties{PropIsoLevel: "serializable", PropAccessMode: "read only"})
	require.NoError(t, err)
	assert.EqualValues(t, "serializable", opts.IsoLevel)
	assert.EqualValues(t, "read only", opts.AccessMode)

	_, err = txOptions(persist.Properties{PropIsoLevel: "snapshot"})
	assert.ErrorIs(t, err, persist.ErrConfiguration)
	_, err = txOptions(persist.Properties{PropAccessMode: "append only"})
	assert.ErrorIs(t, err, persist.ErrConfiguration)
}

func TestCreatorConfiguration(t *testing.T) {
	_, err := NewCreator()(context.Background(), "posts", nil)
	assert.ErrorIs(t, err, persist.ErrConfiguration)

	_, err = NewCreator()(context.Background(), "posts", persist.Properties{PropDSN: "postgres://localhost/db", PropMaxConns: "many"})
	assert.ErrorIs(t, err, persist.ErrConfiguration)
}
