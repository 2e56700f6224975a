package headers

import (
	"github.com/indigo-web/iter"
	"github.com/indigo-web/utils/strcomp"
)

type Pair struct {
	Key, Value string
}

// Headers is an associative storage for header fields. It acts as a map but uses
// linear search instead, which proves to be more efficient on a relatively low
// amount of entries, which is usually the case. Unlike a map, it also preserves
// the order the fields were added in, so requests are rendered deterministically.
type Headers struct {
	pairs      []Pair
	uniqueBuff []string
	valuesBuff []string
}

func New() *Headers {
	return NewPrealloc(0)
}

// NewPrealloc returns an instance of Headers with pre-allocated underlying storage.
func NewPrealloc(n int) *Headers {
	return &Headers{
		pairs: make([]Pair, 0, n),
	}
}

// NewFromMap returns a new instance with already inserted values from the given map.
// Note: as maps are unordered, the resulting underlying structure will also contain
// unordered pairs.
func NewFromMap(m map[string][]string) *Headers {
	h := NewPrealloc(len(m))

	for key, values := range m {
		for _, value := range values {
			h.Add(key, value)
		}
	}

	return h
}

// Add adds a new pair of key and value.
func (h *Headers) Add(key, value string) *Headers {
	h.pairs = append(h.pairs, Pair{
		Key:   key,
		Value: value,
	})
	return h
}

// Value returns the first value corresponding to the key. Otherwise, an empty
// string is returned.
func (h *Headers) Value(key string) string {
	return h.ValueOr(key, "")
}

// ValueOr returns either the first value corresponding to the key or the custom
// value, passed via the second parameter.
func (h *Headers) ValueOr(key, or string) string {
	value, found := h.Get(key)
	if !found {
		return or
	}

	return value
}

// Get returns a value and a bool, indicating whether the key was found at all.
// Key lookup is case-insensitive.
func (h *Headers) Get(key string) (value string, found bool) {
	for _, pair := range h.pairs {
		if strcomp.EqualFold(key, pair.Key) {
			return pair.Value, true
		}
	}

	return "", false
}

// Values returns all the values by the key. Returns nil if the key doesn't exist.
//
// WARNING: calling it twice will override values, returned by the first call.
// Consider copying the returned slice for safe use.
func (h *Headers) Values(key string) (values []string) {
	h.valuesBuff = h.valuesBuff[:0]

	for _, pair := range h.pairs {
		if strcomp.EqualFold(pair.Key, key) {
			h.valuesBuff = append(h.valuesBuff, pair.Value)
		}
	}

	if len(h.valuesBuff) == 0 {
		return nil
	}

	return h.valuesBuff
}

// Keys returns all unique presented keys.
//
// WARNING: calling it twice will override values, returned by the first call.
// Consider copying the returned slice for safe use.
func (h *Headers) Keys() []string {
	h.uniqueBuff = h.uniqueBuff[:0]

	for _, pair := range h.pairs {
		if contains(h.uniqueBuff, pair.Key) {
			continue
		}

		h.uniqueBuff = append(h.uniqueBuff, pair.Key)
	}

	return h.uniqueBuff
}

// Iter returns an iterator over the pairs.
func (h *Headers) Iter() iter.Iterator[Pair] {
	return iter.Slice(h.pairs)
}

// Unwrap reveals the underlying pairs slice. Try to avoid the method if possible,
// as changing the signature may not affect a major version.
func (h *Headers) Unwrap() []Pair {
	return h.pairs
}

// Has indicates whether there's an entry of the key.
func (h *Headers) Has(key string) bool {
	_, found := h.Get(key)
	return found
}

// Len returns a number of stored pairs.
func (h *Headers) Len() int {
	return len(h.pairs)
}

// Clear all the entries. However, the allocated space won't be freed.
func (h *Headers) Clear() *Headers {
	h.pairs = h.pairs[:0]
	return h
}

func contains(collection []string, key string) bool {
	for _, element := range collection {
		if strcomp.EqualFold(element, key) {
			return true
		}
	}

	return false
}
