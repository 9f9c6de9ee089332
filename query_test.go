package forge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuery2_Map_MatchesSuperset(t *testing.T) {
	type Comp1 struct{ A int }
	type Comp2 struct{ B float32 }
	type Comp3 struct{}

	reg := NewRegistry()
	reg.AddEntity(Comp1{A: 1}) // comp1 only, shouldn't match
	id2 := reg.AddEntity(Comp1{A: 2}, Comp2{B: 1.37})
	id3 := reg.AddEntity(Comp1{A: 3}, Comp2{B: 4.20}, Comp3{})
	reg.AddEntity(Comp1{A: 4}, Comp3{}) // no comp2, shouldn't match
	reg.AddEntity(Comp2{B: 3.14})       // no comp1, shouldn't match

	expected := map[EntityId]Comp1{id2: {A: 2}, id3: {A: 3}}
	seen := make(map[EntityId]bool)

	NewQuery2[Comp1, Comp2](reg).Map(func(id EntityId, a *Comp1, b *Comp2) bool {
		exp, ok := expected[id]
		assert.True(t, ok, "unexpected entity %v", id)
		assert.Equal(t, exp, *a)
		seen[id] = true
		return true
	})

	assert.Len(t, seen, 2)
}

func TestQuery1_WithoutTypes_Excludes(t *testing.T) {
	type Comp1 struct{ A int }
	type Excluded struct{}

	reg := NewRegistry()
	keep := reg.AddEntity(Comp1{A: 1})
	reg.AddEntity(Comp1{A: 2}, Excluded{})

	var visited []EntityId
	NewQuery1[Comp1](reg).WithoutTypes(typeOf[Excluded]()).Map(func(id EntityId, a *Comp1) bool {
		visited = append(visited, id)
		return true
	})

	assert.Equal(t, []EntityId{keep}, visited)
}

func TestQuery1_WithAnyTypes_RequiresAtLeastOne(t *testing.T) {
	type Comp1 struct{ A int }
	type TagA struct{}
	type TagB struct{}

	reg := NewRegistry()
	reg.AddEntity(Comp1{A: 1}) // neither tag, shouldn't match
	withA := reg.AddEntity(Comp1{A: 2}, TagA{})
	withB := reg.AddEntity(Comp1{A: 3}, TagB{})

	matched := make(map[EntityId]bool)
	NewQuery1[Comp1](reg).WithAnyTypes(typeOf[TagA](), typeOf[TagB]()).Map(func(id EntityId, a *Comp1) bool {
		matched[id] = true
		return true
	})

	assert.True(t, matched[withA])
	assert.True(t, matched[withB])
	assert.Len(t, matched, 2)
}

func TestQuery1_Map_OrderIsStableAcrossRepeatedRuns(t *testing.T) {
	type Comp1 struct{ A int }

	reg := NewRegistry()
	var want []EntityId
	for i := 0; i < 20; i++ {
		want = append(want, reg.AddEntity(Comp1{A: i}))
	}

	run := func() []EntityId {
		var visited []EntityId
		NewQuery1[Comp1](reg).Map(func(id EntityId, a *Comp1) bool {
			visited = append(visited, id)
			return true
		})
		return visited
	}

	first := run()
	assert.Equal(t, want, first, "entity ids are issued in increasing order, one archetype, so Map should yield them in that order")

	for i := 0; i < 5; i++ {
		assert.Equal(t, first, run(), "repeated Map calls over an unchanged registry must agree on order")
	}
}

func TestQuery2_Map_OrderAgreesAcrossIndependentQueries(t *testing.T) {
	type Comp1 struct{ A int }
	type Comp2 struct{ B int }

	reg := NewRegistry()
	for i := 0; i < 12; i++ {
		reg.AddEntity(Comp1{A: i}, Comp2{B: i * 2})
	}

	var orderA, orderB []EntityId
	NewQuery2[Comp1, Comp2](reg).Map(func(id EntityId, a *Comp1, b *Comp2) bool {
		orderA = append(orderA, id)
		return true
	})
	NewQuery1[Comp1](reg).Map(func(id EntityId, a *Comp1) bool {
		orderB = append(orderB, id)
		return true
	})

	assert.Equal(t, orderA, orderB, "two independent queries over the same entities must assign the same ordinal to each entity, e.g. to keep point-shadow cubemap layers aligned with the deferred shading light list")
}

func TestQuery_Map_EarlyExit(t *testing.T) {
	type Comp1 struct{ A int }

	reg := NewRegistry()
	reg.AddEntity(Comp1{A: 1})
	reg.AddEntity(Comp1{A: 2})

	count := 0
	NewQuery1[Comp1](reg).Map(func(id EntityId, a *Comp1) bool {
		count++
		return false
	})

	assert.Equal(t, 1, count)
}
