package persist

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// UnitConfig describes one persistence unit
type UnitConfig struct {
	name         string
	tag          string
	creator      FactoryCreator
	factoryProps Properties
	source       FactorySource
	ut           UserTransaction
	utSource     func() (UserTransaction, error)
	uowOpts      []Option
}

type UnitOption func(*UnitConfig)

func NewUnit(name string, opts ...UnitOption) *UnitConfig {
	u := &UnitConfig{name: name}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// ApplicationManaged makes the unit create its factory on Start and close it on Stop
func ApplicationManaged(creator FactoryCreator, props Properties) UnitOption {
	return func(u *UnitConfig) {
		u.creator = creator
		u.factoryProps = props
	}
}

// ContainerManaged makes the unit resolve a factory owned by someone else
func ContainerManaged(source FactorySource) UnitOption {
	return func(u *UnitConfig) {
		u.source = source
	}
}

// WithTag namespaces the unit. Call sites list tags in Transactional.OnUnits.
func WithTag(tag string) UnitOption {
	return func(u *UnitConfig) {
		u.tag = tag
	}
}

// WithJTA makes the unit take part in the global transactions of ut
func WithJTA(ut UserTransaction) UnitOption {
	return func(u *UnitConfig) {
		u.ut = ut
	}
}

// WithJTASource resolves the global transaction manager when the module is built
func WithJTASource(source func() (UserTransaction, error)) UnitOption {
	return func(u *UnitConfig) {
		u.utSource = source
	}
}

func WithUnitOfWorkOptions(opts ...Option) UnitOption {
	return func(u *UnitConfig) {
		u.uowOpts = append(u.uowOpts, opts...)
	}
}

type managedService interface {
	PersistenceService
	FactoryProvider
}

// Unit is a wired persistence unit
type Unit struct {
	name        string
	tag         string
	service     managedService
	manager     *Manager
	interceptor *TxnInterceptor
}

func (u *Unit) Name() string {
	return u.name
}

func (u *Unit) Tag() string {
	return u.tag
}

func (u *Unit) Service() PersistenceService {
	return u.service
}

func (u *Unit) UnitOfWork() UnitOfWork {
	return u.manager
}

func (u *Unit) Handles() HandleProvider {
	return u.manager
}

func (u *Unit) Interceptor() *TxnInterceptor {
	return u.interceptor
}

// Module holds the wired units of an application
type Module struct {
	container   *Container
	units       []*Unit
	byTag       map[string]*Unit
	interceptor Interceptor
}

type moduleOptions struct {
	logger log.Logger
}

type ModuleOption func(*moduleOptions)

func WithModuleLogger(logger log.Logger) ModuleOption {
	return func(o *moduleOptions) {
		o.logger = logger
	}
}

// NewModule validates and wires units. All returned errors are configuration errors.
func NewModule(configs []*UnitConfig, opts ...ModuleOption) (*Module, error) {
	o := &moduleOptions{logger: log.DefaultLogger}
	for _, opt := range opts {
		opt(o)
	}
	if len(configs) == 0 {
		return nil, configErr("no persistence unit")
	}
	m := &Module{
		container: NewContainer(),
		byTag:     map[string]*Unit{},
	}
	interceptors := make([]Interceptor, 0, len(configs))
	for _, cfg := range configs {
		u, err := buildUnit(cfg, o.logger)
		if err != nil {
			return nil, err
		}
		if _, ok := m.byTag[u.tag]; ok {
			if u.tag == "" {
				return nil, configErr("unit %s: more than one unit without tag", u.name)
			}
			return nil, configErr("unit %s: tag %s already used", u.name, u.tag)
		}
		if err := m.container.Add(u.name, u.service, u.manager); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		m.byTag[u.tag] = u
		m.units = append(m.units, u)
		interceptors = append(interceptors, u.interceptor)
	}
	m.interceptor = Chain(interceptors...)
	return m, nil
}

func buildUnit(cfg *UnitConfig, logger log.Logger) (*Unit, error) {
	if cfg == nil || cfg.name == "" {
		return nil, configErr("unit name is mandatory")
	}
	u := &Unit{name: cfg.name, tag: cfg.tag}
	switch {
	case cfg.creator != nil && cfg.source != nil:
		return nil, configErr("unit %s: both application managed and container managed", cfg.name)
	case cfg.creator != nil:
		u.service = NewApplicationManagedService(cfg.name, cfg.factoryProps, cfg.creator)
	case cfg.source != nil:
		u.service = NewContainerManagedService(cfg.source)
	default:
		return nil, configErr("unit %s: no factory creator or factory source", cfg.name)
	}

	uowOpts := append([]Option{WithUnitName(cfg.name), WithLogger(logger)}, cfg.uowOpts...)
	u.manager = NewManager(u.service, uowOpts...)

	ut := cfg.ut
	if cfg.utSource != nil {
		if ut != nil {
			return nil, configErr("unit %s: both user transaction instance and source", cfg.name)
		}
		var err error
		if ut, err = cfg.utSource(); err != nil {
			return nil, configErr("unit %s: resolve user transaction: %v", cfg.name, err)
		}
		if ut == nil {
			return nil, configErr("unit %s: user transaction source returned nil", cfg.name)
		}
	}
	var facades FacadeProvider
	if ut != nil {
		facades = NewJTAFacadeProvider(ut, u.manager)
	} else {
		facades = NewResourceLocalFacadeProvider(u.manager)
	}
	u.interceptor = NewTxnInterceptor(u.manager, facades, WithUnitTag(cfg.tag), WithInterceptorUnit(cfg.name), WithInterceptorLogger(logger))
	return u, nil
}

// Service starts and stops every unit
func (m *Module) Service() PersistenceService {
	return m.container
}

// UnitOfWork begins and ends a unit of work on every unit
func (m *Module) UnitOfWork() UnitOfWork {
	return m.container
}

// Unit returns the unit with tag, "" for the untagged unit
func (m *Module) Unit(tag string) (*Unit, bool) {
	u, ok := m.byTag[tag]
	return u, ok
}

func (m *Module) Units() []*Unit {
	return m.units
}

// Interceptor demarcates a call on every unit, in registration order
func (m *Module) Interceptor() Interceptor {
	return m.interceptor
}
