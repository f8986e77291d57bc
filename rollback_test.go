package persist

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errRuntime = errors.New("runtime failure")

type validationError struct {
	field string
}

func (e *validationError) Error() string {
	return "invalid " + e.field
}

// validation failures are runtime failures too
func (e *validationError) Unwrap() error {
	return errRuntime
}

func TestRollbackNecessary(t *testing.T) {
	rules := &Transactional{
		RollbackOn: []Matcher{Is(errRuntime)},
		Ignore:     []Matcher{As[*validationError]()},
	}

	tests := []struct {
		name string
		t    *Transactional
		err  error
		want bool
	}{
		{name: "nil rules", t: nil, err: errRuntime, want: false},
		{name: "nil failure", t: rules, err: nil, want: false},
		{name: "matching", t: rules, err: errRuntime, want: true},
		{name: "wrapped matching", t: rules, err: fmt.Errorf("save: %w", errRuntime), want: true},
		{name: "ignored subtype", t: rules, err: &validationError{field: "name"}, want: false},
		{name: "wrapped ignored subtype", t: rules, err: fmt.Errorf("save: %w", &validationError{field: "name"}), want: false},
		{name: "not matching", t: rules, err: errors.New("checked"), want: false},
		{name: "empty rollback on", t: &Transactional{}, err: errRuntime, want: false},
		{name: "ignore without rollback on", t: &Transactional{Ignore: []Matcher{Any()}}, err: errRuntime, want: false},
		{name: "any", t: RollbackOnAny(), err: errors.New("checked"), want: true},
		{name: "panic", t: &Transactional{RollbackOn: []Matcher{As[*PanicError]()}}, err: &PanicError{Value: "boom"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RollbackNecessary(tt.t, tt.err))
		})
	}
}

func TestRollbackNecessaryIgnoreWins(t *testing.T) {
	rules := &Transactional{RollbackOn: []Matcher{Any()}, Ignore: []Matcher{Any()}}
	assert.False(t, rules.RollbackNecessary(errRuntime))
}

func TestRollbackNecessaryPanicValue(t *testing.T) {
	rules := &Transactional{RollbackOn: []Matcher{Is(errRuntime)}}
	assert.True(t, rules.RollbackNecessary(&PanicError{Value: errRuntime}))
	assert.False(t, rules.RollbackNecessary(&PanicError{Value: "not an error"}))
}

func TestMatchFunc(t *testing.T) {
	m := MatchFunc(func(err error) bool {
		return err.Error() == "special"
	})
	rules := &Transactional{RollbackOn: []Matcher{m}}
	assert.True(t, rules.RollbackNecessary(errors.New("special")))
	assert.False(t, rules.RollbackNecessary(errors.New("common")))
}

func TestParticipates(t *testing.T) {
	assert.True(t, (*Transactional)(nil).Participates("a"))
	assert.True(t, (&Transactional{}).Participates("a"))
	assert.True(t, (&Transactional{OnUnits: []string{"a"}}).Participates(""))
	assert.True(t, (&Transactional{OnUnits: []string{"a", "b"}}).Participates("b"))
	assert.False(t, (&Transactional{OnUnits: []string{"a"}}).Participates("b"))
	assert.True(t, RollbackOnAny("b").Participates("b"))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "active", StatusActive.String())
	assert.Equal(t, "no_transaction", StatusNoTransaction.String())
	assert.Equal(t, "invalid", Status(42).String())
}
