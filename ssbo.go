package forge

import (
	"fmt"
	"unsafe"

	"github.com/cogentcore/webgpu/wgpu"
)

// SafeSSBOSizeLimit is a ceiling past which Storage refuses to grow:
// the upload returns an error instead of allocating, mirroring the
// teacher's GpuBufferManager.SafeBufferSizeLimit.
const SafeSSBOSizeLimit = 1 << 30 // 1 GiB

// maxMapPollAttempts bounds the busy-poll loop ReadToStorage runs
// waiting for MapAsync's callback, matching the teacher's Poll(false,
// nil) pattern but driven to completion synchronously instead of once
// per render frame.
const maxMapPollAttempts = 1_000_000

// Storage is an SSBO with host-side staging: a typed Go slice mirrors
// the GPU buffer's contents, growing the buffer geometrically (x1.5)
// on overflow instead of reallocating every frame, and falling back to
// a subdata write when the existing buffer already fits. Grounded on
// voxelrt/rt/gpu/manager.go's ensureBuffer and the original engine's
// SSBOWithIntermediateBuffer.
type Storage[T any] struct {
	device *wgpu.Device
	queue  *wgpu.Queue
	label  string

	host   []T
	buffer *wgpu.Buffer
	cap    int // elements the current buffer can hold
}

func NewStorage[T any](device *wgpu.Device, queue *wgpu.Queue, label string) *Storage[T] {
	return &Storage[T]{device: device, queue: queue, label: label}
}

func (s *Storage[T]) Buffer() *wgpu.Buffer { return s.buffer }
func (s *Storage[T]) Len() int             { return len(s.host) }

// Upload replaces the host mirror with data and syncs it to the GPU
// buffer, reallocating (preserving nothing — this is a full
// replacement, unlike ensureBuffer's resize-preserving growth) only
// when data no longer fits.
func (s *Storage[T]) Upload(data []T) error {
	s.host = data
	return s.sync()
}

func (s *Storage[T]) sync() error {
	var zero T
	elemSize := sizeOfElement(zero)
	neededBytes := uint64(len(s.host)) * elemSize
	if neededBytes%4 != 0 {
		neededBytes += 4 - neededBytes%4
	}

	needsRealloc := s.buffer == nil || uint64(s.cap)*elemSize < neededBytes
	if needsRealloc {
		newCap := len(s.host)
		if s.cap > 0 {
			grown := int(float64(s.cap) * 1.5)
			if grown > newCap {
				newCap = grown
			}
		}
		if newCap == 0 {
			newCap = 1
		}
		newSizeBytes := uint64(newCap) * elemSize
		if newSizeBytes > SafeSSBOSizeLimit {
			return fmt.Errorf("forge: ssbo %q would exceed safe size limit (%d bytes)", s.label, newSizeBytes)
		}

		if s.buffer != nil {
			s.buffer.Release()
		}
		buf, err := s.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label:            s.label,
			Size:             newSizeBytes,
			Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
			MappedAtCreation: false,
		})
		if err != nil {
			return fmt.Errorf("forge: ssbo %q alloc: %w", s.label, err)
		}
		s.buffer = buf
		s.cap = newCap
	}

	if len(s.host) == 0 {
		return nil
	}
	bytes := elementsToBytes(s.host)
	if err := s.queue.WriteBuffer(s.buffer, 0, bytes); err != nil {
		return fmt.Errorf("forge: ssbo %q write: %w", s.label, err)
	}
	return nil
}

// CreateStorage ensures the buffer can hold n zero-valued elements
// without requiring the caller to build a host slice first — the shape
// a compute pass needs when it writes its own output rather than
// reading back something Upload already staged.
func (s *Storage[T]) CreateStorage(n int) error {
	return s.Upload(make([]T, n))
}

// ReadToStorage copies the GPU buffer back into a fresh host slice,
// the GPU-to-CPU half of the readback voxelrt/rt/gpu/manager_hiz.go's
// ReadbackHiZ performs: copy into a MapRead-capable staging buffer,
// poll the device until the map callback fires, then copy the mapped
// bytes out before Unmap invalidates them.
func (s *Storage[T]) ReadToStorage() ([]T, error) {
	if s.buffer == nil || len(s.host) == 0 {
		return nil, nil
	}

	var zero T
	elemSize := sizeOfElement(zero)
	size := uint64(len(s.host)) * elemSize
	if size%4 != 0 {
		size += 4 - size%4
	}

	staging, err := s.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: s.label + "-readback",
		Size:  size,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return nil, fmt.Errorf("forge: ssbo %q readback alloc: %w", s.label, err)
	}
	defer staging.Release()

	encoder, err := s.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: s.label + "-readback-copy"})
	if err != nil {
		return nil, fmt.Errorf("forge: ssbo %q readback encoder: %w", s.label, err)
	}
	encoder.CopyBufferToBuffer(s.buffer, 0, staging, 0, size)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("forge: ssbo %q readback finish: %w", s.label, err)
	}
	s.queue.Submit(cmd)

	mapped := false
	var mapErr error
	staging.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status == wgpu.BufferMapAsyncStatusSuccess {
			mapped = true
		} else {
			mapErr = fmt.Errorf("forge: ssbo %q readback map failed: status %d", s.label, status)
		}
	})
	for i := 0; !mapped && mapErr == nil && i < maxMapPollAttempts; i++ {
		s.device.Poll(false, nil)
	}
	if mapErr != nil {
		return nil, mapErr
	}
	if !mapped {
		return nil, fmt.Errorf("forge: ssbo %q readback map never completed", s.label)
	}

	data := staging.GetMappedRange(0, uint(size))
	out := make([]T, len(s.host))
	copy(bytesOfElements(out), data)
	staging.Unmap()
	return out, nil
}

func sizeOfElement[T any](zero T) uint64 {
	return uint64(MakeAnySlice([]T{zero}).ElementSize())
}

func elementsToBytes[T any](elems []T) []byte {
	return wgpu.ToBytes(elems)
}

// bytesOfElements exposes dst's backing array as a byte slice so
// ReadToStorage can copy mapped GPU bytes straight into it, the
// inverse of elementsToBytes.
func bytesOfElements[T any](dst []T) []byte {
	if len(dst) == 0 {
		return nil
	}
	slice := MakeAnySlice(dst)
	n := slice.Len() * int(slice.ElementSize())
	return unsafe.Slice((*byte)(slice.DataPointer()), n)
}
