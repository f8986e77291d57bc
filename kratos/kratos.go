package kratos

import (
	"context"
	"strings"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/middleware/selector"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/go-saas/persist"
	phttp "github.com/go-saas/persist/http"
)

func contains(vals []string, s string) bool {
	for _, v := range vals {
		if v == s {
			return true
		}
	}

	return false
}

// SkipFunc identity whether a request without declared intent should skip the transaction
type SkipFunc func(ctx context.Context, req interface{}) bool

type option struct {
	skip     SkipFunc
	skipOps  []string
	fallback *persist.Transactional
	logger   log.Logger
}

type Option func(*option)

// WithSkip change the skip function used for operations without declaration.
//
// default request will skip operation method prefixed by "get" and "list" (case-insensitive)
// default http request will skip safeMethods like "GET", "HEAD", "OPTIONS", "TRACE"
func WithSkip(f SkipFunc) Option {
	return func(o *option) {
		o.skip = f
	}
}

// WithForceSkipOp use selector.Server to skip operation
func WithForceSkipOp(ops ...string) Option {
	return func(o *option) {
		o.skipOps = ops
	}
}

// WithFallback is the intent used for operations without declaration that are not skipped.
// By default they run without transaction.
func WithFallback(t *persist.Transactional) Option {
	return func(o *option) {
		o.fallback = t
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *option) {
		o.logger = logger
	}
}

func DefaultSkip() func(ctx context.Context, req interface{}) bool {
	return func(ctx context.Context, req interface{}) bool {
		if t, ok := transport.FromServerContext(ctx); ok {
			//resolve by operation
			if len(t.Operation()) > 0 && skipOperation(t.Operation()) {
				return true
			}
			// can not identify
			if ht, ok := t.(*http.Transport); ok {
				if contains(phttp.SafeMethods, ht.Request().Method) {
					//safe method skip transaction
					return true
				}
			}
			return false
		}
		return false
	}
}

func newOption(opts []Option) *option {
	opt := &option{
		skip:   DefaultSkip(),
		logger: log.DefaultLogger,
	}
	for _, o := range opts {
		o(opt)
	}
	return opt
}

func operation(ctx context.Context) string {
	if t, ok := transport.FromServerContext(ctx); ok {
		return t.Operation()
	}
	return ""
}

// Transactional server middleware demarcating the operation with the intent reader declares for it
func Transactional(i persist.Interceptor, reader persist.MetadataReader, opts ...Option) middleware.Middleware {
	opt := newOption(opts)
	logger := log.NewHelper(opt.logger)
	return selector.Server(func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			op := operation(ctx)
			t, ok := reader.Transactional(ctx, op)
			if !ok {
				if opt.fallback == nil || opt.skip(ctx, req) {
					logger.Debugf("[persist] operation %s without transaction", op)
					return next(ctx, req)
				}
				t = opt.fallback
			}
			logger.Debugf("[persist] operation %s runs in transaction", op)
			return i.Invoke(ctx, persist.Invocation{
				Transactional: t,
				Proceed: func(ctx context.Context) (interface{}, error) {
					return next(ctx, req)
				},
			})
		}
	}).Match(func(ctx context.Context, operation string) bool {
		return !contains(opt.skipOps, operation)
	}).Build()
}

// PersistenceFilter server middleware running every request in a unit of work of uow
func PersistenceFilter(uow persist.UnitOfWork, opts ...Option) middleware.Middleware {
	opt := newOption(opts)
	logger := log.NewHelper(opt.logger)
	return selector.Server(func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (res interface{}, err error) {
			if uow.IsActive(ctx) {
				return next(ctx, req)
			}
			ctx, err = uow.Begin(ctx)
			if err != nil {
				return nil, err
			}
			defer func() {
				if endErr := uow.End(ctx); endErr != nil {
					if err == nil {
						res, err = nil, endErr
						return
					}
					logger.Errorf("[persist] end unit of work of %s failed, discarded: %v", operation(ctx), endErr)
				}
			}()
			return next(ctx, req)
		}
	}).Match(func(ctx context.Context, operation string) bool {
		return !contains(opt.skipOps, operation)
	}).Build()
}

// skipOperation return true if operation action start with "get" and "list" (case-insensitive)
func skipOperation(operation string) bool {
	s := strings.Split(operation, "/")
	act := strings.ToLower(s[len(s)-1])
	return strings.HasPrefix(act, "get") || strings.HasPrefix(act, "list")
}
