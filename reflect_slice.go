package forge

import (
	"reflect"
	"unsafe"
)

// AnySlice wraps a reflect.Value holding a slice of unknown element
// type so GPU upload code (ssbo.go) can get at its backing bytes
// without the caller needing generics at the call site.
type AnySlice struct {
	typ reflect.Type
	val reflect.Value
}

// MakeAnySlice wraps a slice value (e.g. []LightGPU) for generic byte
// access.
func MakeAnySlice(slice any) AnySlice {
	val := reflect.ValueOf(slice)
	return AnySlice{typ: val.Type().Elem(), val: val}
}

func (s AnySlice) Len() int {
	return s.val.Len()
}

func (s AnySlice) Get(idx int) reflect.Value {
	return s.val.Index(idx)
}

func (s AnySlice) ElementSize() uintptr {
	return s.typ.Size()
}

// DataPointer returns an unsafe pointer to the slice's backing array,
// for handing to queue.WriteBuffer via unsafe.Slice. The slice must be
// non-empty.
func (s AnySlice) DataPointer() unsafe.Pointer {
	return unsafe.Pointer(s.val.Index(0).Addr().Pointer())
}

func reflectSliceMake(elemType reflect.Type) any {
	sliceType := reflect.SliceOf(elemType)
	return reflect.MakeSlice(sliceType, 0, 0).Interface()
}

func reflectSliceGet(slice any, idx int) reflect.Value {
	return reflect.ValueOf(slice).Index(idx)
}

func reflectSliceSet(slice any, idx int, value reflect.Value) {
	reflect.ValueOf(slice).Index(idx).Set(value)
}

func reflectSliceAppend(slice any, value reflect.Value) any {
	sliceVal := reflect.ValueOf(slice)
	return reflect.Append(sliceVal, value).Interface()
}

func reflectSliceLen(slice any) int {
	return reflect.ValueOf(slice).Len()
}
