package persist

import (
	"errors"
)

// Matcher is a failure category
type Matcher interface {
	Match(err error) bool
}

// MatchFunc adapts a function to Matcher
type MatchFunc func(err error) bool

func (f MatchFunc) Match(err error) bool {
	return f(err)
}

// Is matches failures whose chain contains target
func Is(target error) Matcher {
	return MatchFunc(func(err error) bool {
		return errors.Is(err, target)
	})
}

// As matches failures whose chain contains an error of type T
func As[T error]() Matcher {
	return MatchFunc(func(err error) bool {
		var t T
		return errors.As(err, &t)
	})
}

// Any matches every failure, panics included
func Any() Matcher {
	return MatchFunc(func(err error) bool {
		return err != nil
	})
}

// Transactional is the transactional intent declared for a call site
type Transactional struct {
	// RollbackOn lists the failures triggering a rollback, checked in order.
	// An empty list commits on any failure.
	RollbackOn []Matcher
	// Ignore lists failures committing even if they match RollbackOn
	Ignore []Matcher
	// OnUnits restricts the persistence units taking part, by tag. Empty means all units.
	OnUnits []string
}

// RollbackOnAny declares a call site rolling back on every failure
func RollbackOnAny(onUnits ...string) *Transactional {
	return &Transactional{RollbackOn: []Matcher{Any()}, OnUnits: onUnits}
}

// RollbackNecessary reports whether err requires a rollback. A nil rule set never does.
func RollbackNecessary(t *Transactional, err error) bool {
	if t == nil || err == nil {
		return false
	}
	for _, rollbackOn := range t.RollbackOn {
		if rollbackOn.Match(err) {
			return !t.ignored(err)
		}
	}
	return false
}

// RollbackNecessary reports whether err requires a rollback
func (t *Transactional) RollbackNecessary(err error) bool {
	return RollbackNecessary(t, err)
}

func (t *Transactional) ignored(err error) bool {
	for _, ignore := range t.Ignore {
		if ignore.Match(err) {
			return true
		}
	}
	return false
}

// Participates reports whether the unit tagged tag takes part in the call site.
// Untagged units always take part.
func (t *Transactional) Participates(tag string) bool {
	if tag == "" || t == nil || len(t.OnUnits) == 0 {
		return true
	}
	for _, u := range t.OnUnits {
		if u == tag {
			return true
		}
	}
	return false
}
