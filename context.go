package persist

import "context"

// slot holds the handle of one unit of work. It is created by the owner and cleared by End,
// so a ctx that outlives the owner never sees a closed handle.
type slot struct {
	id     string
	handle Handle
}

type slotKey struct {
	u *Manager
}

func newSlotContext(ctx context.Context, u *Manager, s *slot) context.Context {
	return context.WithValue(ctx, slotKey{u}, s)
}

func fromSlotContext(ctx context.Context, u *Manager) (s *slot, ok bool) {
	s, ok = ctx.Value(slotKey{u}).(*slot)
	if !ok || s.handle == nil {
		return nil, false
	}
	return s, true
}
