package persist

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// UnitOfWork is the lifecycle of the handle bound to a context chain
type UnitOfWork interface {
	// Begin creates a handle and returns a context carrying it
	Begin(ctx context.Context) (context.Context, error)
	// End closes the handle carried by ctx. It is a no-op when no unit of work is active.
	End(ctx context.Context) error
	IsActive(ctx context.Context) bool
}

// HandleProvider returns the handle of the active unit of work
type HandleProvider interface {
	Get(ctx context.Context) (Handle, error)
}

// HandleAs returns the active handle converted to T
func HandleAs[T Handle](ctx context.Context, p HandleProvider) (T, error) {
	var zero T
	h, err := p.Get(ctx)
	if err != nil {
		return zero, err
	}
	t, ok := h.(T)
	if !ok {
		return zero, &PersistenceError{Msg: "unexpected handle type", Cause: ErrConfiguration}
	}
	return t, nil
}

type IdGenerator func(ctx context.Context) string

var (
	DefaultIdGenerator IdGenerator = func(ctx context.Context) string {
		return uuid.New().String()
	}
)

type Config struct {
	unit   string
	props  Properties
	idGen  IdGenerator
	logger log.Logger
}

type Option func(*Config)

// WithHandleProperties are passed to Factory.CreateHandle on every Begin
func WithHandleProperties(props Properties) Option {
	return func(config *Config) {
		config.props = props
	}
}

func WithIdGenerator(idGen IdGenerator) Option {
	return func(config *Config) {
		config.idGen = idGen
	}
}

func WithLogger(logger log.Logger) Option {
	return func(config *Config) {
		config.logger = logger
	}
}

// WithUnitName names the unit in errors and log lines
func WithUnitName(name string) Option {
	return func(config *Config) {
		config.unit = name
	}
}

// Manager owns the handle of each unit of work of one persistence unit
type Manager struct {
	cfg       *Config
	factories FactoryProvider
	log       *log.Helper
}

var (
	_ UnitOfWork     = (*Manager)(nil)
	_ HandleProvider = (*Manager)(nil)
)

// NewManager returns a unit of work manager creating handles from the factories of a
// persistence service. The manager is both the UnitOfWork and the HandleProvider of a unit.
func NewManager(factories FactoryProvider, opts ...Option) *Manager {
	if factories == nil {
		panic("persist: factory provider is mandatory")
	}
	cfg := &Config{
		idGen:  DefaultIdGenerator,
		logger: log.DefaultLogger,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Manager{
		cfg:       cfg,
		factories: factories,
		log:       log.NewHelper(cfg.logger),
	}
}

func (u *Manager) Get(ctx context.Context) (Handle, error) {
	if s, ok := fromSlotContext(ctx, u); ok {
		return s.handle, nil
	}
	return nil, ErrUnitOfWorkNotActive
}

func (u *Manager) IsActive(ctx context.Context) bool {
	_, ok := fromSlotContext(ctx, u)
	return ok
}

func (u *Manager) Begin(ctx context.Context) (context.Context, error) {
	if u.IsActive(ctx) {
		return ctx, ErrUnitOfWorkActive
	}
	factory, err := u.factories.Factory()
	if err != nil {
		return ctx, err
	}
	h, err := factory.CreateHandle(ctx, u.cfg.props)
	if err != nil {
		return ctx, &PersistenceError{Unit: u.cfg.unit, Msg: "create handle", Cause: err}
	}
	s := &slot{id: u.cfg.idGen(ctx), handle: h}
	u.log.Debugf("[persist] unit %s: unit of work %s begun", u.cfg.unit, s.id)
	return newSlotContext(ctx, u, s), nil
}

func (u *Manager) End(ctx context.Context) error {
	s, ok := fromSlotContext(ctx, u)
	if !ok {
		return nil
	}
	h := s.handle
	// clear first, the slot must not keep a handle whose Close failed
	s.handle = nil
	u.log.Debugf("[persist] unit %s: unit of work %s ended", u.cfg.unit, s.id)
	if err := h.Close(ctx); err != nil {
		return &PersistenceError{Unit: u.cfg.unit, Msg: "close handle", Cause: err}
	}
	return nil
}
