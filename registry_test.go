package forge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_AddEntity_GetAllComponents(t *testing.T) {
	type Position struct{ X, Y float32 }
	type Velocity struct{ X, Y float32 }

	reg := NewRegistry()
	id := reg.AddEntity(Position{X: 1, Y: 2}, Velocity{X: 3, Y: 4})

	comps := reg.GetAllComponents(id)
	assert.Len(t, comps, 2)

	pos, ok := Get[Position](reg, id)
	assert.True(t, ok)
	assert.Equal(t, Position{X: 1, Y: 2}, pos)

	vel, ok := Get[Velocity](reg, id)
	assert.True(t, ok)
	assert.Equal(t, Velocity{X: 3, Y: 4}, vel)
}

func TestRegistry_AddComponents_MovesArchetype(t *testing.T) {
	type Position struct{ X float32 }
	type Tag struct{}

	reg := NewRegistry()
	id := reg.AddEntity(Position{X: 5})

	_, ok := Get[Tag](reg, id)
	assert.False(t, ok)

	reg.AddComponents(id, Tag{})

	pos, ok := Get[Position](reg, id)
	assert.True(t, ok)
	assert.Equal(t, Position{X: 5}, pos)
	assert.True(t, AnyOf[Tag](reg, id))
}

func TestRegistry_RemoveComponents(t *testing.T) {
	type Position struct{ X float32 }
	type Tag struct{}

	reg := NewRegistry()
	id := reg.AddEntity(Position{X: 5}, Tag{})

	reg.RemoveComponents(id, Tag{})

	assert.False(t, AnyOf[Tag](reg, id))
	pos, ok := Get[Position](reg, id)
	assert.True(t, ok)
	assert.Equal(t, Position{X: 5}, pos)
}

func TestRegistry_RemoveEntity(t *testing.T) {
	type Position struct{ X float32 }

	reg := NewRegistry()
	id := reg.AddEntity(Position{X: 1})
	reg.RemoveEntity(id)

	_, ok := Get[Position](reg, id)
	assert.False(t, ok)
	assert.Nil(t, reg.GetAllComponents(id))
}

func TestRegistry_RecycledRowsAreReused(t *testing.T) {
	type Position struct{ X float32 }

	reg := NewRegistry()
	first := reg.AddEntity(Position{X: 1})
	reg.RemoveEntity(first)
	second := reg.AddEntity(Position{X: 2})

	pos, ok := Get[Position](reg, second)
	assert.True(t, ok)
	assert.Equal(t, Position{X: 2}, pos)
}
