package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerRegistry_Register(t *testing.T) {
	r := NewHandlerRegistry()
	typed := newTestHandler()
	wildcard := newTestHandler()

	r.Register(typed, "A", "B")
	r.Register(typed, "A")
	r.Register(wildcard)

	assert.Equal(t, []any{typed, wildcard}, asAny(r.GetHandlers("A")))
	assert.Equal(t, []any{typed, wildcard}, asAny(r.GetHandlers("B")))
	assert.Equal(t, []any{wildcard}, asAny(r.GetHandlers("C")))
	assert.Equal(t, 2, r.Len())
}

func TestHandlerRegistry_Unregister(t *testing.T) {
	r := NewHandlerRegistry()
	keep := newTestHandler()
	drop := newTestHandler()
	r.Register(keep, "A")
	r.Register(drop, "A", "B")
	r.Register(drop)

	r.Unregister(drop)

	assert.Equal(t, []any{keep}, asAny(r.GetHandlers("A")))
	assert.Empty(t, r.GetHandlers("B"))
	assert.Equal(t, 1, r.Len())
	assert.NotContains(t, r.handlers, "B")
}

func asAny[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
