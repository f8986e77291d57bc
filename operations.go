package persist

import (
	"context"
	"sync"
)

// MetadataReader returns the intent declared for an operation.
// ok is false for call sites without transactional intent.
type MetadataReader interface {
	Transactional(ctx context.Context, operation string) (t *Transactional, ok bool)
}

// Operations is a MetadataReader filled at registration time
type Operations struct {
	mtx sync.RWMutex
	ops map[string]*Transactional
}

var _ MetadataReader = (*Operations)(nil)

func NewOperations() *Operations {
	return &Operations{ops: map[string]*Transactional{}}
}

// Declare registers t for operation and returns the registry for chaining
func (o *Operations) Declare(operation string, t *Transactional) *Operations {
	if t == nil {
		t = &Transactional{}
	}
	o.mtx.Lock()
	defer o.mtx.Unlock()
	o.ops[operation] = t
	return o
}

func (o *Operations) Transactional(ctx context.Context, operation string) (*Transactional, bool) {
	o.mtx.RLock()
	defer o.mtx.RUnlock()
	t, ok := o.ops[operation]
	return t, ok
}
