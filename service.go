package persist

import (
	"context"
	"fmt"
	"sync"
)

// PersistenceService is the lifecycle of the resource manager factory of a unit
type PersistenceService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// ApplicationManagedService creates and closes its factory itself
type ApplicationManagedService struct {
	mtx     sync.Mutex
	unit    string
	props   Properties
	creator FactoryCreator
	factory Factory
}

var (
	_ PersistenceService = (*ApplicationManagedService)(nil)
	_ FactoryProvider    = (*ApplicationManagedService)(nil)
)

func NewApplicationManagedService(unitName string, props Properties, creator FactoryCreator) *ApplicationManagedService {
	if creator == nil {
		panic("persist: factory creator is mandatory")
	}
	return &ApplicationManagedService{unit: unitName, props: props, creator: creator}
}

func (s *ApplicationManagedService) Start(ctx context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.factory != nil {
		return ErrServiceRunning
	}
	f, err := s.creator(ctx, s.unit, s.props)
	if err != nil {
		return &PersistenceError{Unit: s.unit, Msg: "create factory", Cause: err}
	}
	s.factory = f
	return nil
}

func (s *ApplicationManagedService) Stop(ctx context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.factory == nil {
		return nil
	}
	f := s.factory
	s.factory = nil
	if err := f.Close(); err != nil {
		return &PersistenceError{Unit: s.unit, Msg: "close factory", Cause: err}
	}
	return nil
}

func (s *ApplicationManagedService) IsRunning() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.factory != nil
}

func (s *ApplicationManagedService) Factory() (Factory, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.factory == nil {
		return nil, ErrServiceNotRunning
	}
	return s.factory, nil
}

// ContainerManagedService resolves a factory owned by someone else.
// Stop forgets the factory but never closes it.
type ContainerManagedService struct {
	mtx     sync.Mutex
	source  FactorySource
	factory Factory
}

var (
	_ PersistenceService = (*ContainerManagedService)(nil)
	_ FactoryProvider    = (*ContainerManagedService)(nil)
)

func NewContainerManagedService(source FactorySource) *ContainerManagedService {
	if source == nil {
		panic("persist: factory source is mandatory")
	}
	return &ContainerManagedService{source: source}
}

func (s *ContainerManagedService) Start(ctx context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.factory != nil {
		return ErrServiceRunning
	}
	f, err := s.source.Resolve(ctx)
	if err != nil {
		return err
	}
	s.factory = f
	return nil
}

func (s *ContainerManagedService) Stop(ctx context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.factory = nil
	return nil
}

func (s *ContainerManagedService) IsRunning() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.factory != nil
}

func (s *ContainerManagedService) Factory() (Factory, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.factory == nil {
		return nil, ErrServiceNotRunning
	}
	return s.factory, nil
}

// FactoryInstance is a source returning f
func FactoryInstance(f Factory) FactorySource {
	return FactorySourceFunc(func(ctx context.Context) (Factory, error) {
		if f == nil {
			return nil, &PersistenceError{Msg: "factory instance", Cause: ErrConfiguration}
		}
		return f, nil
	})
}

// Registry binds factories to names for lookup by container managed units
type Registry struct {
	mtx       sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func (r *Registry) Bind(name string, f Factory) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.factories[name] = f
}

func (r *Registry) Unbind(name string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	delete(r.factories, name)
}

func (r *Registry) Lookup(name string) (Factory, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	f, ok := r.factories[name]
	if !ok || f == nil {
		return nil, &PersistenceError{
			Msg:   fmt.Sprintf("lookup for factory with name '%s'", name),
			Cause: fmt.Errorf("name '%s' is not bound", name),
		}
	}
	return f, nil
}

// LookupFactory is a source resolving name in r on every Start
func LookupFactory(r *Registry, name string) FactorySource {
	return FactorySourceFunc(func(ctx context.Context) (Factory, error) {
		return r.Lookup(name)
	})
}
