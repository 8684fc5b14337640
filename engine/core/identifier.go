package core

import "fmt"

// HandleTable owns values of type T and hands out 1-based ids for them.
// Released slots are reused by later acquisitions, so ids stay small and
// zero is never a valid id.
type HandleTable[T any] struct {
	slots []handleSlot[T]
	free  []uint32
	live  int
}

type handleSlot[T any] struct {
	value T
	used  bool
}

func NewHandleTable[T any](capacity int) *HandleTable[T] {
	return &HandleTable[T]{
		slots: make([]handleSlot[T], 0, capacity),
	}
}

// Acquire stores value and returns its id.
func (t *HandleTable[T]) Acquire(value T) uint32 {
	t.live++
	if n := len(t.free); n > 0 {
		// Existing free spot. Take it.
		idx := t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[idx] = handleSlot[T]{value: value, used: true}
		return idx + 1
	}
	t.slots = append(t.slots, handleSlot[T]{value: value, used: true})
	return uint32(len(t.slots))
}

// Get returns the value stored under id.
func (t *HandleTable[T]) Get(id uint32) (T, bool) {
	if id == 0 || id > uint32(len(t.slots)) || !t.slots[id-1].used {
		var zero T
		return zero, false
	}
	return t.slots[id-1].value, true
}

// Ptr returns a pointer to the stored value so it can be mutated in place.
func (t *HandleTable[T]) Ptr(id uint32) *T {
	if id == 0 || id > uint32(len(t.slots)) || !t.slots[id-1].used {
		return nil
	}
	return &t.slots[id-1].value
}

// Release frees the slot and returns the value that was stored in it.
func (t *HandleTable[T]) Release(id uint32) (T, error) {
	var zero T
	if id == 0 || id > uint32(len(t.slots)) {
		return zero, fmt.Errorf("release of id %d out of range (max=%d): %w", id, len(t.slots), ErrInvalidHandle)
	}
	slot := &t.slots[id-1]
	if !slot.used {
		return zero, fmt.Errorf("release of id %d that is not in use: %w", id, ErrInvalidHandle)
	}
	value := slot.value
	*slot = handleSlot[T]{}
	t.free = append(t.free, id-1)
	t.live--
	return value, nil
}

// Len is the number of live entries.
func (t *HandleTable[T]) Len() int {
	return t.live
}

// Each visits live entries in id order.
func (t *HandleTable[T]) Each(fn func(id uint32, value *T)) {
	for i := range t.slots {
		if t.slots[i].used {
			fn(uint32(i)+1, &t.slots[i].value)
		}
	}
}
