// Package gin demarcates gin requests with persistence units
package gin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-saas/persist"
)

// Operation is the name a route is declared with in a persist.MetadataReader, e.g. "POST /orders/:id"
func Operation(c *gin.Context) string {
	return c.Request.Method + " " + c.FullPath()
}

type option struct {
	logger log.Logger
}

type Option func(*option)

func WithLogger(logger log.Logger) Option {
	return func(o *option) {
		o.logger = logger
	}
}

func newOption(opts []Option) *option {
	o := &option{logger: log.DefaultLogger}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// PersistenceFilter runs the rest of the chain in a unit of work of uow
func PersistenceFilter(uow persist.UnitOfWork, opts ...Option) gin.HandlerFunc {
	logger := log.NewHelper(newOption(opts).logger)
	return func(c *gin.Context) {
		if uow.IsActive(c.Request.Context()) {
			c.Next()
			return
		}
		ctx, err := uow.Begin(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Request = c.Request.WithContext(ctx)
		defer func() {
			if err := uow.End(ctx); err != nil {
				logger.Errorf("[persist] end unit of work of %s failed: %v", Operation(c), err)
				_ = c.Error(err)
			}
		}()
		c.Next()
	}
}

// errorSince is the last error attached to c after the first n ones
func errorSince(c *gin.Context, n int) error {
	if len(c.Errors) > n {
		return c.Errors.Last().Err
	}
	return nil
}

// Transactional runs the rest of the chain in the transaction declared for the route by reader.
// Routes without declaration run without transaction. The handlers report failures with c.Error.
func Transactional(i persist.Interceptor, reader persist.MetadataReader, opts ...Option) gin.HandlerFunc {
	logger := log.NewHelper(newOption(opts).logger)
	return func(c *gin.Context) {
		op := Operation(c)
		t, ok := reader.Transactional(c.Request.Context(), op)
		if !ok {
			c.Next()
			return
		}
		logger.Debugf("[persist] route %s runs in transaction", op)
		// errors attached before this middleware ran are not failures of the route
		n := len(c.Errors)
		_, err := i.Invoke(c.Request.Context(), persist.Invocation{
			Transactional: t,
			Proceed: func(ctx context.Context) (interface{}, error) {
				c.Request = c.Request.WithContext(ctx)
				c.Next()
				return nil, errorSince(c, n)
			},
		})
		if err != nil && err != errorSince(c, n) {
			// failure of the demarcation itself
			_ = c.Error(err)
			if !c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}
	}
}

// Transact wraps a single handler with t
func Transact(i persist.Interceptor, t *persist.Transactional, handler func(c *gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := persist.WithTransaction(c.Request.Context(), i, t, func(ctx context.Context) error {
			c.Request = c.Request.WithContext(ctx)
			return handler(c)
		})
		if err != nil {
			_ = c.Error(err)
			if !c.Writer.Written() {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
		}
	}
}
