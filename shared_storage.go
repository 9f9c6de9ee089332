package forge

import "sync"

// SharedStorage owns a stage's output (a render target, a light list,
// shadow params, ...) and hands out read-only or mutable views to
// downstream stages, mirroring the original engine's
// SharedStorage<T>/SharedStorageView<T> pair: ownership stays with the
// producing stage, consumers only ever see a view.
type SharedStorage[T any] struct {
	mu    sync.RWMutex
	value T
}

func NewSharedStorage[T any](initial T) *SharedStorage[T] {
	return &SharedStorage[T]{value: initial}
}

// View returns a read-only handle onto the storage. The producing
// stage is expected to call Set once per frame before consumers read.
func (s *SharedStorage[T]) View() SharedStorageView[T] {
	return SharedStorageView[T]{storage: s}
}

// MutableView returns a handle that can also replace the value; only
// the owning stage should hold one of these.
func (s *SharedStorage[T]) MutableView() SharedStorageMutableView[T] {
	return SharedStorageMutableView[T]{storage: s}
}

func (s *SharedStorage[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func (s *SharedStorage[T]) Set(v T) {
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
}

// SharedStorageView is the non-owning, read-only handle passed to
// stages that consume another stage's output.
type SharedStorageView[T any] struct {
	storage *SharedStorage[T]
}

func (v SharedStorageView[T]) Get() T { return v.storage.Get() }

// SharedStorageMutableView additionally allows replacing the value;
// held only by the stage that produces it.
type SharedStorageMutableView[T any] struct {
	storage *SharedStorage[T]
}

func (v SharedStorageMutableView[T]) Get() T     { return v.storage.Get() }
func (v SharedStorageMutableView[T]) Set(val T) { v.storage.Set(val) }
