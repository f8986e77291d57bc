package gin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-saas/persist"
	"github.com/go-saas/persist/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOutOfStock = errors.New("out of stock")

type fixture struct {
	journal *mock.Journal
	factory *mock.Factory
	unit    *persist.Unit
	router  *gin.Engine
}

func newFixture(t *testing.T, upstream ...gin.HandlerFunc) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	journal := &mock.Journal{}
	f := mock.NewFactory(journal)
	m, err := persist.NewModule([]*persist.UnitConfig{
		persist.NewUnit("orders", persist.ContainerManaged(persist.FactoryInstance(f))),
	})
	require.NoError(t, err)
	require.NoError(t, m.Service().Start(context.Background()))
	u, _ := m.Unit("")
	fx := &fixture{journal: journal, factory: f, unit: u}

	ops := persist.NewOperations().
		Declare("POST /orders", persist.RollbackOnAny())

	r := gin.New()
	r.Use(upstream...)
	r.Use(PersistenceFilter(m.UnitOfWork()), Transactional(m.Interceptor(), ops))
	r.POST("/orders", func(c *gin.Context) {
		if err := fx.persist(c, "order"); err != nil {
			_ = c.Error(err)
			return
		}
		if c.Query("fail") != "" {
			_ = c.Error(errOutOfStock)
			c.JSON(http.StatusConflict, gin.H{"error": errOutOfStock.Error()})
			return
		}
		c.Status(http.StatusCreated)
	})
	r.GET("/orders", func(c *gin.Context) {
		assert.True(t, u.UnitOfWork().IsActive(c.Request.Context()))
		c.Status(http.StatusOK)
	})
	r.PUT("/orders", Transact(m.Interceptor(), persist.RollbackOnAny(), func(c *gin.Context) error {
		if err := fx.persist(c, "updated"); err != nil {
			return err
		}
		if c.Query("fail") != "" {
			return errOutOfStock
		}
		c.Status(http.StatusAccepted)
		return nil
	}))
	fx.router = r
	return fx
}

func (f *fixture) persist(c *gin.Context, key string) error {
	h, err := persist.HandleAs[*mock.Handle](c.Request.Context(), f.unit.Handles())
	if err != nil {
		return err
	}
	return h.Persist(c.Request.Context(), key, "1")
}

func (f *fixture) do(method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestDeclaredRoute(t *testing.T) {
	f := newFixture(t)

	w := f.do("POST", "/orders")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"create", "begin", "commit", "close"}, f.journal.Events())
	assert.Equal(t, 1, f.factory.Store.Len())

	f.journal.Reset()
	w = f.do("POST", "/orders?fail=1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, []string{"create", "begin", "rollback", "close"}, f.journal.Events())
}

func TestUndeclaredRoute(t *testing.T) {
	f := newFixture(t)

	w := f.do("GET", "/orders")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"create", "close"}, f.journal.Events())
}

func TestTransact(t *testing.T) {
	f := newFixture(t)

	w := f.do("PUT", "/orders")
	assert.Equal(t, http.StatusAccepted, w.Code)
	_, ok := f.factory.Store.Get("updated")
	assert.True(t, ok)

	f.journal.Reset()
	w = f.do("PUT", "/orders?fail=1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "out of stock")
	assert.Equal(t, []string{"create", "begin", "rollback", "close"}, f.journal.Events())
}

func TestPersistenceFilterBeginFailure(t *testing.T) {
	f := newFixture(t)
	f.factory.CreateErr = errors.New("pool exhausted")

	w := f.do("GET", "/orders")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUpstreamErrorDoesNotRollBack(t *testing.T) {
	f := newFixture(t, func(c *gin.Context) {
		_ = c.Error(errors.New("deprecated header used"))
		c.Next()
	})

	w := f.do("POST", "/orders")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"create", "begin", "commit", "close"}, f.journal.Events())
	assert.Equal(t, 1, f.factory.Store.Len())

	f.journal.Reset()
	w = f.do("POST", "/orders?fail=1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, []string{"create", "begin", "rollback", "close"}, f.journal.Events())
}
