package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	orderedmap "github.com/elliotchance/orderedmap/v2"
)

type registration struct {
	service PersistenceService
	uow     UnitOfWork
}

// Container fans lifecycle calls out to every registered unit, in registration order.
//
// Start and Stop abort on the first failure and leave the units already handled as they are,
// stopping them is up to the caller.
type Container struct {
	mtx   sync.Mutex
	units *orderedmap.OrderedMap[string, registration]
}

var (
	_ PersistenceService = (*Container)(nil)
	_ UnitOfWork         = (*Container)(nil)
)

func NewContainer() *Container {
	return &Container{units: orderedmap.NewOrderedMap[string, registration]()}
}

// Add registers a unit. It must be called during wiring only.
func (c *Container) Add(name string, service PersistenceService, uow UnitOfWork) error {
	if name == "" {
		return configErr("unit name is mandatory")
	}
	if service == nil || uow == nil {
		return configErr("unit %s: service and unit of work are mandatory", name)
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if _, ok := c.units.Get(name); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateUnit, name)
	}
	c.units.Set(name, registration{service: service, uow: uow})
	return nil
}

func (c *Container) Start(ctx context.Context) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for el := c.units.Front(); el != nil; el = el.Next() {
		if err := el.Value.service.Start(ctx); err != nil {
			return fmt.Errorf("start unit %s: %w", el.Key, err)
		}
	}
	return nil
}

func (c *Container) Stop(ctx context.Context) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for el := c.units.Front(); el != nil; el = el.Next() {
		if err := el.Value.service.Stop(ctx); err != nil {
			return fmt.Errorf("stop unit %s: %w", el.Key, err)
		}
	}
	return nil
}

// IsRunning reports whether every unit runs. A container without units never runs.
func (c *Container) IsRunning() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.units.Len() == 0 {
		return false
	}
	for el := c.units.Front(); el != nil; el = el.Next() {
		if !el.Value.service.IsRunning() {
			return false
		}
	}
	return true
}

// Begin begins a unit of work on every unit. When one fails, the units begun by this call are
// ended again and the failure is returned.
func (c *Container) Begin(ctx context.Context) (context.Context, error) {
	begun := ctx
	var started []UnitOfWork
	for el := c.units.Front(); el != nil; el = el.Next() {
		next, err := el.Value.uow.Begin(begun)
		if err != nil {
			for _, u := range started {
				_ = u.End(begun)
			}
			return ctx, fmt.Errorf("begin unit of work %s: %w", el.Key, err)
		}
		begun = next
		started = append(started, el.Value.uow)
	}
	return begun, nil
}

// End ends the unit of work of every unit, failures are joined
func (c *Container) End(ctx context.Context) error {
	var errs []error
	for el := c.units.Front(); el != nil; el = el.Next() {
		if err := el.Value.uow.End(ctx); err != nil {
			errs = append(errs, fmt.Errorf("end unit of work %s: %w", el.Key, err))
		}
	}
	return errors.Join(errs...)
}

// IsActive reports whether every unit has a unit of work in ctx, false without units
func (c *Container) IsActive(ctx context.Context) bool {
	if c.units.Len() == 0 {
		return false
	}
	for el := c.units.Front(); el != nil; el = el.Next() {
		if !el.Value.uow.IsActive(ctx) {
			return false
		}
	}
	return true
}
