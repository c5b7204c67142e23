package safe

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// MemoryTracker receives allocation events; implemented by the memory package.
type MemoryTracker interface {
	TrackAllocation(id uint64, size int64, tag string)
	TrackDeallocation(id uint64, tag string)
}

// Mat owns exactly one gocv.Mat and closes it at most once.
type Mat struct {
	mat     gocv.Mat
	isValid int32
	mu      sync.RWMutex
	id      uint64
	tracker MemoryTracker
	tag     string
}

var (
	nextMatID     uint64
	globalTracker atomic.Pointer[trackerHolder]
)

type trackerHolder struct {
	t MemoryTracker
}

// SetTracker installs the tracker that new Mats report to. Passing nil disables tracking.
func SetTracker(t MemoryTracker) {
	if t == nil {
		globalTracker.Store(nil)
		return
	}
	globalTracker.Store(&trackerHolder{t: t})
}

func currentTracker() MemoryTracker {
	if h := globalTracker.Load(); h != nil {
		return h.t
	}
	return nil
}

func NewMat(rows, cols int, matType gocv.MatType, tag string) (*Mat, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", cols, rows)
	}

	mat := gocv.NewMatWithSize(rows, cols, matType)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("failed to create Mat with size %dx%d", cols, rows)
	}

	return newMat(mat, tag), nil
}

// Wrap takes ownership of m. The caller must not close m afterwards.
func Wrap(m gocv.Mat, tag string) (*Mat, error) {
	if m.Empty() {
		m.Close()
		return nil, fmt.Errorf("cannot wrap empty Mat (%s)", tag)
	}
	return newMat(m, tag), nil
}

// NewMatFromMat clones src; src stays owned by the caller.
func NewMatFromMat(src gocv.Mat, tag string) (*Mat, error) {
	if src.Empty() {
		return nil, fmt.Errorf("source Mat is empty")
	}

	if src.Rows() <= 0 || src.Cols() <= 0 {
		return nil, fmt.Errorf("source Mat has invalid dimensions: %dx%d", src.Cols(), src.Rows())
	}

	cloned := src.Clone()
	if cloned.Empty() {
		cloned.Close()
		return nil, fmt.Errorf("failed to clone Mat")
	}

	return newMat(cloned, tag), nil
}

func newMat(m gocv.Mat, tag string) *Mat {
	sm := &Mat{
		mat:     m,
		isValid: 1,
		id:      atomic.AddUint64(&nextMatID, 1),
		tracker: currentTracker(),
		tag:     tag,
	}

	if sm.tracker != nil {
		size := int64(m.Rows()) * int64(m.Cols()) * int64(m.ElemSize())
		sm.tracker.TrackAllocation(sm.id, size, tag)
	}

	runtime.SetFinalizer(sm, (*Mat).finalize)
	return sm
}

func (sm *Mat) IsValid() bool {
	return atomic.LoadInt32(&sm.isValid) == 1
}

// read applies f to the wrapped Mat under the read lock, or returns zero once closed.
func read[T any](sm *Mat, zero T, f func(m *gocv.Mat) T) T {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return zero
	}
	return f(&sm.mat)
}

func (sm *Mat) Empty() bool {
	return read(sm, true, (*gocv.Mat).Empty)
}

func (sm *Mat) Rows() int {
	return read(sm, 0, (*gocv.Mat).Rows)
}

func (sm *Mat) Cols() int {
	return read(sm, 0, (*gocv.Mat).Cols)
}

func (sm *Mat) Channels() int {
	return read(sm, 0, (*gocv.Mat).Channels)
}

// Type of a closed Mat is reported as 8UC1.
func (sm *Mat) Type() gocv.MatType {
	return read(sm, gocv.MatTypeCV8UC1, (*gocv.Mat).Type)
}

func (sm *Mat) Tag() string {
	return sm.tag
}

func (sm *Mat) Clone(tag string) (*Mat, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return nil, fmt.Errorf("cannot clone invalid Mat")
	}

	if sm.mat.Empty() {
		return nil, fmt.Errorf("cannot clone empty Mat")
	}

	return NewMatFromMat(sm.mat, tag)
}

// GetMat exposes the underlying Mat for read access by OpenCV calls. Ownership stays here.
func (sm *Mat) GetMat() gocv.Mat {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return sm.mat
}

func (sm *Mat) ID() uint64 {
	return sm.id
}

func (sm *Mat) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if atomic.CompareAndSwapInt32(&sm.isValid, 1, 0) {
		if sm.tracker != nil {
			sm.tracker.TrackDeallocation(sm.id, sm.tag)
		}

		sm.mat.Close()
		runtime.SetFinalizer(sm, nil)
	}
}

// finalize releases Mats that were never closed.
func (sm *Mat) finalize() {
	if atomic.LoadInt32(&sm.isValid) == 1 {
		sm.Close()
	}
}
