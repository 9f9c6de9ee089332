package forge

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"reflect"
	"slices"
	"sync"
)

// EntityId identifies an entity in a Registry. Zero is never issued by
// NewRegistry's entity counter, but callers should not rely on zero
// meaning "no entity" across registries they didn't construct.
type EntityId uint64

type archetypeId uint64
type archetypeKey []componentId
type componentId uint32
type row int
type set[T comparable] = map[T]struct{}

// Registry is the scene registry spec.md §3/§6 treats as an external
// collaborator: an archetype-based ECS storing components by value in
// contiguous per-archetype slices, addressed through the generic
// QueryN/Map helpers in query.go rather than direct field access.
type Registry struct {
	archetypes  map[archetypeId]*archetype
	entityIndex map[EntityId]archetypeId

	idGeneratorLock sync.Mutex
	entityIdCounter EntityId

	componentIdCounterLock sync.Mutex
	componentIdCounter     componentId
	componentTypeIdMap     map[reflect.Type]componentId
	componentIdTypeMap     map[componentId]reflect.Type
}

// NewRegistry returns an empty scene registry ready for use.
func NewRegistry() *Registry {
	return &Registry{
		archetypes:         make(map[archetypeId]*archetype),
		entityIndex:        make(map[EntityId]archetypeId),
		componentIdCounter: componentId(0),
		componentTypeIdMap: make(map[reflect.Type]componentId),
		componentIdTypeMap: make(map[componentId]reflect.Type),
	}
}

type archetype struct {
	id            archetypeId
	key           archetypeKey
	entities      map[EntityId]row
	componentData map[componentId]any // typed slices via reflection
	recycled      []row
}

// AddEntity creates a new entity with the given component values and
// returns its id.
func (reg *Registry) AddEntity(components ...any) EntityId {
	entityId := reg.nextEntityId()
	return reg.insertEntity(entityId, components...)
}

func (reg *Registry) insertEntity(entityId EntityId, components ...any) EntityId {
	archId, _, arch := reg.archetypeFromComponents(components...)

	r := reg.archetypeReserveRow(arch)
	arch.entities[entityId] = r
	for _, component := range components {
		reg.writeComponent(arch, r, component)
	}

	reg.entityIndex[entityId] = archId

	return entityId
}

// RemoveEntity deletes an entity and all of its components.
func (reg *Registry) RemoveEntity(entityId EntityId) {
	reg.recycleEntity(entityId)
}

// AddComponents moves an entity to the archetype that has its existing
// components plus the new ones, and writes the new component values.
func (reg *Registry) AddComponents(entityId EntityId, components ...any) {
	srcArchId := reg.entityIndex[entityId]
	srcArch := reg.archetypes[srcArchId]
	srcRow := srcArch.entities[entityId]

	dstArchId, _, dstArch := reg.archetypeFromExtraComponents(srcArch, components...)
	dstRow := reg.archetypeReserveRow(dstArch)

	reg.moveComponents(srcArch, srcRow, dstArch, dstRow)
	for _, component := range components {
		reg.writeComponent(dstArch, dstRow, component)
	}

	reg.recycleEntity(entityId)

	dstArch.entities[entityId] = dstRow
	reg.entityIndex[entityId] = dstArchId
}

// RemoveComponents moves an entity to the archetype without the given
// component types.
func (reg *Registry) RemoveComponents(entityId EntityId, components ...any) {
	srcArchId := reg.entityIndex[entityId]
	srcArch := reg.archetypes[srcArchId]
	srcRow := srcArch.entities[entityId]

	removeSet := make(set[componentId])
	for _, c := range components {
		cType := reflect.TypeOf(c)
		if cType.Kind() == reflect.Pointer {
			cType = cType.Elem()
		}
		removeSet[reg.getComponentId(cType)] = struct{}{}
	}

	var dstKey archetypeKey
	for _, compId := range srcArch.key {
		if _, shouldRemove := removeSet[compId]; !shouldRemove {
			dstKey = append(dstKey, compId)
		}
	}

	dstArchId, dstArch := reg.getOrMakeArchetype(dstKey)
	dstRow := reg.archetypeReserveRow(dstArch)

	reg.moveComponents(srcArch, srcRow, dstArch, dstRow)
	reg.recycleEntity(entityId)

	dstArch.entities[entityId] = dstRow
	reg.entityIndex[entityId] = dstArchId
}

// GetAllComponents returns a copy of every component value attached to
// entityId, in archetype-storage order (unspecified across calls).
func (reg *Registry) GetAllComponents(entityId EntityId) []any {
	archId, ok := reg.entityIndex[entityId]
	if !ok {
		return nil
	}
	arch := reg.archetypes[archId]
	r := arch.entities[entityId]

	var res []any
	for _, componentsSlice := range arch.componentData {
		val := reflectSliceGet(componentsSlice, int(r))
		res = append(res, val.Interface())
	}
	return res
}

// Get fetches a copy of entityId's T component. ok is false if the
// entity has no such component or doesn't exist.
func Get[T any](reg *Registry, entityId EntityId) (value T, ok bool) {
	archId, exists := reg.entityIndex[entityId]
	if !exists {
		return value, false
	}
	arch := reg.archetypes[archId]
	id := idOf[T](reg)
	data, has := arch.componentData[id]
	if !has {
		return value, false
	}
	r := arch.entities[entityId]
	return reflectSliceGet(data, int(r)).Interface().(T), true
}

// AnyOf reports whether entityId carries a T component (typically a
// zero-sized tag type such as ShadowCasting).
func AnyOf[T any](reg *Registry, entityId EntityId) bool {
	archId, exists := reg.entityIndex[entityId]
	if !exists {
		return false
	}
	arch := reg.archetypes[archId]
	return archHas(arch, idOf[T](reg))
}

func (reg *Registry) moveComponents(srcArch *archetype, srcRow row, dstArch *archetype, dstRow row) {
	var key archetypeKey
	if len(srcArch.key) <= len(dstArch.key) {
		key = srcArch.key
	} else {
		key = dstArch.key
	}

	for _, componentId := range key {
		if _, ok := dstArch.componentData[componentId]; !ok {
			continue
		}
		srcValue := reflectSliceGet(srcArch.componentData[componentId], int(srcRow))
		reflectSliceSet(dstArch.componentData[componentId], int(dstRow), srcValue)
	}
}

func (reg *Registry) writeComponent(dstArch *archetype, dstRow row, component any) {
	componentType := reflect.TypeOf(component)
	if componentType.Kind() != reflect.Struct && componentType.Kind() == reflect.Pointer && componentType.Elem().Kind() != reflect.Struct {
		panic(fmt.Errorf("forge: expected component to be a struct or a pointer to a struct, got %s", componentType.Kind()))
	}

	reflectValue := reflect.ValueOf(component)
	if componentType.Kind() == reflect.Pointer {
		componentType = componentType.Elem()
		reflectValue = reflectValue.Elem()
	}

	componentId := reg.getComponentId(componentType)
	reflectSliceSet(dstArch.componentData[componentId], int(dstRow), reflectValue)
}

func (reg *Registry) recycleEntity(entityId EntityId) {
	archId, ok := reg.entityIndex[entityId]
	if !ok {
		return
	}
	arch := reg.archetypes[archId]

	r := arch.entities[entityId]
	arch.recycled = append(arch.recycled, r)

	delete(arch.entities, entityId)
	delete(reg.entityIndex, entityId)
}

func (reg *Registry) archetypeFromComponents(components ...any) (archetypeId, archetypeKey, *archetype) {
	archKey := reg.getArchetypeKey(components...)
	archId, arch := reg.getOrMakeArchetype(archKey)
	return archId, archKey, arch
}

func (reg *Registry) archetypeFromExtraComponents(srcArch *archetype, components ...any) (archetypeId, archetypeKey, *archetype) {
	dstArchKey := combineArchetypeKeys(
		srcArch.key,
		reg.getArchetypeKey(components...),
	)

	dstArchId, dstArch := reg.getOrMakeArchetype(dstArchKey)
	return dstArchId, dstArchKey, dstArch
}

func (reg *Registry) getOrMakeArchetype(key archetypeKey) (archetypeId, *archetype) {
	id := getArchetypeId(key)

	if arch, ok := reg.archetypes[id]; ok {
		return id, arch
	}

	arch := &archetype{
		id:            id,
		key:           key,
		entities:      make(map[EntityId]row),
		componentData: make(map[componentId]any),
		recycled:      make([]row, 0),
	}
	for _, componentId := range arch.key {
		arch.componentData[componentId] = reflectSliceMake(
			reg.componentIdTypeMap[componentId],
		)
	}

	reg.archetypes[id] = arch
	return id, arch
}

func (reg *Registry) archetypeReserveRow(arch *archetype) row {
	if len(arch.recycled) > 0 {
		r := arch.recycled[len(arch.recycled)-1]
		arch.recycled = arch.recycled[:len(arch.recycled)-1]
		return r
	}

	r := row(len(arch.entities))
	for _, componentId := range arch.key {
		arch.componentData[componentId] = reflectSliceAppend(
			arch.componentData[componentId],
			reflect.Zero(reg.componentIdTypeMap[componentId]),
		)
	}
	return r
}

// getArchetypeKey computes the canonical, sorted, deduplicated list of
// component ids for a set of component values. The archetype id is a
// hash of this key: cheap to compare, but collision-prone in theory;
// getOrMakeArchetype looks archetypes up by that hash alone and does
// not compare the keys themselves.
func (reg *Registry) getArchetypeKey(components ...any) archetypeKey {
	var res archetypeKey

	for _, component := range components {
		compType := reflect.TypeOf(component)
		if compType.Kind() == reflect.Pointer {
			compType = compType.Elem()
		}
		if compType.Kind() != reflect.Struct {
			panic("forge: component must be a struct")
		}

		res = append(res, reg.getComponentId(compType))
	}

	return dedupAndSortArchetypeKey(res)
}

func combineArchetypeKeys(a archetypeKey, b archetypeKey) archetypeKey {
	return dedupAndSortArchetypeKey(append(append(archetypeKey{}, a...), b...))
}

func dedupAndSortArchetypeKey(key archetypeKey) archetypeKey {
	dedup := make(set[componentId])

	for _, v := range key {
		dedup[v] = struct{}{}
	}

	res := make(archetypeKey, 0, len(dedup))
	for k := range dedup {
		res = append(res, k)
	}

	slices.Sort(res)
	return res
}

func getArchetypeId(key archetypeKey) archetypeId {
	hash := fnv.New64a()
	for _, componentId := range key {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(componentId))
		hash.Write(b)
	}
	return archetypeId(hash.Sum64())
}

func (reg *Registry) nextEntityId() EntityId {
	reg.idGeneratorLock.Lock()
	defer reg.idGeneratorLock.Unlock()

	reg.entityIdCounter += 1

	return reg.entityIdCounter
}

func (reg *Registry) getComponentId(componentType reflect.Type) componentId {
	reg.componentIdCounterLock.Lock()
	defer reg.componentIdCounterLock.Unlock()

	if id, ok := reg.componentTypeIdMap[componentType]; ok {
		return id
	}

	id := reg.componentIdCounter
	reg.componentIdCounter += 1

	reg.componentTypeIdMap[componentType] = id
	reg.componentIdTypeMap[id] = componentType

	return id
}
