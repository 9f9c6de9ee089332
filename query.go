package forge

import (
	"reflect"
	"slices"
)

// sortedArchetypes returns reg's archetypes ordered by archetypeId, and
// sortedEntities returns an archetype's live entities ordered by
// EntityId. Registry.archetypes and archetype.entities are Go maps, and
// Go deliberately randomizes map iteration order on every range — left
// unsorted, two queries issued in the same frame (e.g. the point shadow
// stage's cubemap-layer assignment and the deferred shading stage's
// findShadowIndex, both filtering for shadow-casting point lights)
// could disagree on ordinal order, misaligning sampler indices, and a
// single stage's own output could differ frame to frame on an
// unchanged scene. Sorting both levels makes Query.Map's iteration
// order a pure function of registry content, matching spec.md §3/§5's
// "fixed ECS view iteration order" guarantee. This is the one point
// where this module diverges from the teacher's ecs_query.go, which
// ranges both maps unsorted.
func sortedArchetypes(reg *Registry) []*archetype {
	ids := make([]archetypeId, 0, len(reg.archetypes))
	for id := range reg.archetypes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	result := make([]*archetype, len(ids))
	for i, id := range ids {
		result[i] = reg.archetypes[id]
	}
	return result
}

func sortedEntities(arch *archetype) []EntityId {
	ids := make([]EntityId, 0, len(arch.entities))
	for id := range arch.entities {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// idOf returns the componentId forge.Registry uses for T, registering
// it lazily on first use (so building a query before any entity of
// that shape exists still works).
func idOf[T any](reg *Registry) componentId {
	var zero T
	t := reflect.TypeOf(zero)
	return reg.getComponentId(t)
}

// typeOf returns T's reflect.Type, for passing to WithoutTypes/WithAnyTypes
// without constructing a zero value at the call site.
func typeOf[T any]() reflect.Type {
	var zero T
	return reflect.TypeOf(zero)
}

func idsOf(reg *Registry, types []reflect.Type) []componentId {
	ids := make([]componentId, len(types))
	for i, t := range types {
		ids[i] = reg.getComponentId(t)
	}
	return ids
}

func archHas(arch *archetype, id componentId) bool {
	_, ok := arch.componentData[id]
	return ok
}

func hasAll(arch *archetype, ids []componentId) bool {
	for _, id := range ids {
		if !archHas(arch, id) {
			return false
		}
	}
	return true
}

func hasAny(arch *archetype, ids []componentId) bool {
	if len(ids) == 0 {
		return true
	}
	for _, id := range ids {
		if archHas(arch, id) {
			return true
		}
	}
	return false
}

func hasNone(arch *archetype, ids []componentId) bool {
	for _, id := range ids {
		if archHas(arch, id) {
			return false
		}
	}
	return true
}

func archMatches(arch *archetype, required, without, any []componentId) bool {
	return hasAll(arch, required) && hasNone(arch, without) && hasAny(arch, any)
}

// Query1 iterates every entity carrying an A component, filtered by
// WithoutTypes/WithAnyTypes. Construct with NewQuery1 and chain filters
// before calling Map.
type Query1[A any] struct {
	reg     *Registry
	without []componentId
	any     []componentId
}

func NewQuery1[A any](reg *Registry) *Query1[A] {
	return &Query1[A]{reg: reg}
}

func (q *Query1[A]) WithoutTypes(types ...reflect.Type) *Query1[A] {
	q.without = append(q.without, idsOf(q.reg, types)...)
	return q
}

func (q *Query1[A]) WithAnyTypes(types ...reflect.Type) *Query1[A] {
	q.any = append(q.any, idsOf(q.reg, types)...)
	return q
}

// Map applies m to every matching entity's A component. Returning
// false from m stops iteration early.
func (q *Query1[A]) Map(m func(EntityId, *A) bool) {
	aId := idOf[A](q.reg)
	required := []componentId{aId}

	for _, arch := range sortedArchetypes(q.reg) {
		if !archMatches(arch, required, q.without, q.any) {
			continue
		}
		aSlice := arch.componentData[aId]
		for _, eid := range sortedEntities(arch) {
			r := arch.entities[eid]
			a := reflectSliceGet(aSlice, int(r)).Addr().Interface().(*A)
			if !m(eid, a) {
				return
			}
		}
	}
}

type Query2[A, B any] struct {
	reg     *Registry
	without []componentId
	any     []componentId
}

func NewQuery2[A, B any](reg *Registry) *Query2[A, B] {
	return &Query2[A, B]{reg: reg}
}

func (q *Query2[A, B]) WithoutTypes(types ...reflect.Type) *Query2[A, B] {
	q.without = append(q.without, idsOf(q.reg, types)...)
	return q
}

func (q *Query2[A, B]) WithAnyTypes(types ...reflect.Type) *Query2[A, B] {
	q.any = append(q.any, idsOf(q.reg, types)...)
	return q
}

func (q *Query2[A, B]) Map(m func(EntityId, *A, *B) bool) {
	aId, bId := idOf[A](q.reg), idOf[B](q.reg)
	required := []componentId{aId, bId}

	for _, arch := range sortedArchetypes(q.reg) {
		if !archMatches(arch, required, q.without, q.any) {
			continue
		}
		aSlice, bSlice := arch.componentData[aId], arch.componentData[bId]
		for _, eid := range sortedEntities(arch) {
			r := arch.entities[eid]
			a := reflectSliceGet(aSlice, int(r)).Addr().Interface().(*A)
			b := reflectSliceGet(bSlice, int(r)).Addr().Interface().(*B)
			if !m(eid, a, b) {
				return
			}
		}
	}
}

type Query3[A, B, C any] struct {
	reg     *Registry
	without []componentId
	any     []componentId
}

func NewQuery3[A, B, C any](reg *Registry) *Query3[A, B, C] {
	return &Query3[A, B, C]{reg: reg}
}

func (q *Query3[A, B, C]) WithoutTypes(types ...reflect.Type) *Query3[A, B, C] {
	q.without = append(q.without, idsOf(q.reg, types)...)
	return q
}

func (q *Query3[A, B, C]) WithAnyTypes(types ...reflect.Type) *Query3[A, B, C] {
	q.any = append(q.any, idsOf(q.reg, types)...)
	return q
}

func (q *Query3[A, B, C]) Map(m func(EntityId, *A, *B, *C) bool) {
	aId, bId, cId := idOf[A](q.reg), idOf[B](q.reg), idOf[C](q.reg)
	required := []componentId{aId, bId, cId}

	for _, arch := range sortedArchetypes(q.reg) {
		if !archMatches(arch, required, q.without, q.any) {
			continue
		}
		aSlice, bSlice, cSlice := arch.componentData[aId], arch.componentData[bId], arch.componentData[cId]
		for _, eid := range sortedEntities(arch) {
			r := arch.entities[eid]
			a := reflectSliceGet(aSlice, int(r)).Addr().Interface().(*A)
			b := reflectSliceGet(bSlice, int(r)).Addr().Interface().(*B)
			c := reflectSliceGet(cSlice, int(r)).Addr().Interface().(*C)
			if !m(eid, a, b, c) {
				return
			}
		}
	}
}

type Query4[A, B, C, D any] struct {
	reg     *Registry
	without []componentId
	any     []componentId
}

func NewQuery4[A, B, C, D any](reg *Registry) *Query4[A, B, C, D] {
	return &Query4[A, B, C, D]{reg: reg}
}

func (q *Query4[A, B, C, D]) WithoutTypes(types ...reflect.Type) *Query4[A, B, C, D] {
	q.without = append(q.without, idsOf(q.reg, types)...)
	return q
}

func (q *Query4[A, B, C, D]) WithAnyTypes(types ...reflect.Type) *Query4[A, B, C, D] {
	q.any = append(q.any, idsOf(q.reg, types)...)
	return q
}

func (q *Query4[A, B, C, D]) Map(m func(EntityId, *A, *B, *C, *D) bool) {
	aId, bId, cId, dId := idOf[A](q.reg), idOf[B](q.reg), idOf[C](q.reg), idOf[D](q.reg)
	required := []componentId{aId, bId, cId, dId}

	for _, arch := range sortedArchetypes(q.reg) {
		if !archMatches(arch, required, q.without, q.any) {
			continue
		}
		aSlice := arch.componentData[aId]
		bSlice := arch.componentData[bId]
		cSlice := arch.componentData[cId]
		dSlice := arch.componentData[dId]
		for _, eid := range sortedEntities(arch) {
			r := arch.entities[eid]
			a := reflectSliceGet(aSlice, int(r)).Addr().Interface().(*A)
			b := reflectSliceGet(bSlice, int(r)).Addr().Interface().(*B)
			c := reflectSliceGet(cSlice, int(r)).Addr().Interface().(*C)
			d := reflectSliceGet(dSlice, int(r)).Addr().Interface().(*D)
			if !m(eid, a, b, c, d) {
				return
			}
		}
	}
}

type Query5[A, B, C, D, E any] struct {
	reg     *Registry
	without []componentId
	any     []componentId
}

func NewQuery5[A, B, C, D, E any](reg *Registry) *Query5[A, B, C, D, E] {
	return &Query5[A, B, C, D, E]{reg: reg}
}

func (q *Query5[A, B, C, D, E]) WithoutTypes(types ...reflect.Type) *Query5[A, B, C, D, E] {
	q.without = append(q.without, idsOf(q.reg, types)...)
	return q
}

func (q *Query5[A, B, C, D, E]) WithAnyTypes(types ...reflect.Type) *Query5[A, B, C, D, E] {
	q.any = append(q.any, idsOf(q.reg, types)...)
	return q
}

func (q *Query5[A, B, C, D, E]) Map(m func(EntityId, *A, *B, *C, *D, *E) bool) {
	aId, bId, cId, dId, eId := idOf[A](q.reg), idOf[B](q.reg), idOf[C](q.reg), idOf[D](q.reg), idOf[E](q.reg)
	required := []componentId{aId, bId, cId, dId, eId}

	for _, arch := range sortedArchetypes(q.reg) {
		if !archMatches(arch, required, q.without, q.any) {
			continue
		}
		aSlice := arch.componentData[aId]
		bSlice := arch.componentData[bId]
		cSlice := arch.componentData[cId]
		dSlice := arch.componentData[dId]
		eSlice := arch.componentData[eId]
		for _, eid := range sortedEntities(arch) {
			r := arch.entities[eid]
			a := reflectSliceGet(aSlice, int(r)).Addr().Interface().(*A)
			b := reflectSliceGet(bSlice, int(r)).Addr().Interface().(*B)
			c := reflectSliceGet(cSlice, int(r)).Addr().Interface().(*C)
			d := reflectSliceGet(dSlice, int(r)).Addr().Interface().(*D)
			e := reflectSliceGet(eSlice, int(r)).Addr().Interface().(*E)
			if !m(eid, a, b, c, d, e) {
				return
			}
		}
	}
}
