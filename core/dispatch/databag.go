package dispatch

import "sync"

// DataBag is a concurrent keyed map of opaque values shared between the
// handlers processing one event. Reads are safe during iteration by other
// goroutines; writes during handler execution are allowed.
type DataBag struct {
	mu     sync.RWMutex
	values map[string]any
}

func newDataBag() *DataBag {
	return &DataBag{values: make(map[string]any)}
}

// Set stores v under key, overwriting any previous value.
func (b *DataBag) Set(key string, v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = v
}

// Delete removes key, if present.
func (b *DataBag) Delete(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
}

// Keys returns a snapshot of the currently stored keys.
func (b *DataBag) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	return keys
}

// GetData is a typed try-get: it returns (zero, false) when the key is
// absent or the stored value is not assignable to T, and never panics.
func GetData[T any](b *DataBag, key string) (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var zero T
	v, ok := b.values[key]
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// MustGetData is a typed get-or-throw: it panics if the key is absent or the
// stored value is not assignable to T.
func MustGetData[T any](b *DataBag, key string) T {
	v, ok := GetData[T](b, key)
	if !ok {
		panic("dispatch: data key " + key + " missing or type mismatch")
	}
	return v
}
