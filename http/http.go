package http

import (
	"context"
	"net/http"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-saas/persist"
)

var (
	SafeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}
)

func contains(vals []string, s string) bool {
	for _, v := range vals {
		if v == s {
			return true
		}
	}

	return false
}

// SkipFunc identity whether a request should skip run into unit of work
type SkipFunc func(r *http.Request) bool

// EncodeErrorFunc how to encode the error of a request
type EncodeErrorFunc func(http.ResponseWriter, *http.Request, error)

type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

type option struct {
	skip       SkipFunc
	errEncoder EncodeErrorFunc
	logger     log.Logger
}

type Option func(*option)

// WithSkip change the skip function
func WithSkip(f SkipFunc) Option {
	return func(o *option) {
		o.skip = f
	}
}

// WithErrorEncoder error encoder. default writes 500 with the error text
func WithErrorEncoder(f EncodeErrorFunc) Option {
	return func(o *option) {
		o.errEncoder = f
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *option) {
		o.logger = logger
	}
}

func DefaultErrorEncoder(w http.ResponseWriter, r *http.Request, err error) {
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func newOption(skip SkipFunc, opts []Option) *option {
	opt := &option{
		skip:       skip,
		errEncoder: DefaultErrorEncoder,
		logger:     log.DefaultLogger,
	}
	for _, o := range opts {
		o(opt)
	}
	return opt
}

// PersistenceFilter runs every request in a unit of work of uow, e.g. the unit of work of a
// persist.Module. Requests do not run in a transaction unless a handler demarcates one.
func PersistenceFilter(uow persist.UnitOfWork, next http.Handler, opts ...Option) http.Handler {
	opt := newOption(func(r *http.Request) bool {
		return false
	}, opts)
	logger := log.NewHelper(opt.logger)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if opt.skip(r) || uow.IsActive(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}
		ctx, err := uow.Begin(r.Context())
		if err != nil {
			opt.errEncoder(w, r, err)
			return
		}
		defer func() {
			if err := uow.End(ctx); err != nil {
				// the response has been written already
				logger.Errorf("[persist] end unit of work of %s %s failed: %v", r.Method, r.URL.Path, err)
			}
		}()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Transactional wrap HandlerFunc with the transaction demarcation of i.
// Default will skip SafeMethods like "GET", "HEAD", "OPTIONS", "TRACE".
func Transactional(i persist.Interceptor, t *persist.Transactional, handler HandlerFunc, opts ...Option) http.Handler {
	opt := newOption(func(r *http.Request) bool {
		return contains(SafeMethods, r.Method)
	}, opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		if opt.skip(r) {
			err = handler(w, r)
		} else {
			//run into transaction
			err = persist.WithTransaction(r.Context(), i, t, func(ctx context.Context) error {
				return handler(w, r.WithContext(ctx))
			})
		}
		if err != nil {
			opt.errEncoder(w, r, err)
		}
	})
}
