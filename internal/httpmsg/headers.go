package httpmsg

import "strings"

// entry is the (original-case name, value) pair stored for a single
// lowercased header key.
type entry struct {
	name  string
	value string
}

// Headers stores the headers of one HTTP message. Lookup is
// case-insensitive; the original case of the first occurrence of a header
// name is what gets serialized back out by Build.
type Headers struct {
	order []string // lowercased keys, in first-occurrence order
	m     map[string]entry
}

// NewHeaders returns an empty header set.
func NewHeaders() *Headers {
	return &Headers{m: make(map[string]entry, 8)}
}

func lower(name string) string { return strings.ToLower(name) }

// Add records a header, preserving the original-case name and value of the
// first occurrence. A repeated header (same name, case-insensitively) is a
// no-op: later occurrences never override the first.
func (h *Headers) Add(name, value string) {
	k := lower(name)
	if _, ok := h.m[k]; ok {
		return
	}
	h.order = append(h.order, k)
	h.m[k] = entry{name: name, value: value}
}

// Set replaces (or adds) a header's value outright, used by the proxy core
// plugin when it injects headers like Via that are not part of the parsed
// original request.
func (h *Headers) Set(name, value string) {
	k := lower(name)
	if e, ok := h.m[k]; ok {
		e.value = value
		h.m[k] = e
		return
	}
	h.order = append(h.order, k)
	h.m[k] = entry{name: name, value: value}
}

// Del removes a header by name, case-insensitively.
func (h *Headers) Del(name string) {
	k := lower(name)
	if _, ok := h.m[k]; !ok {
		return
	}
	delete(h.m, k)
	for i, ok := range h.order {
		if ok == k {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Get returns a header's value and whether it was present.
func (h *Headers) Get(name string) (string, bool) {
	e, ok := h.m[lower(name)]
	return e.value, ok
}

// GetDefault returns a header's value or def if absent.
func (h *Headers) GetDefault(name, def string) string {
	if v, ok := h.Get(name); ok {
		return v
	}
	return def
}

// Has reports whether a header is present, case-insensitively.
func (h *Headers) Has(name string) bool {
	_, ok := h.m[lower(name)]
	return ok
}

// Len returns the number of distinct headers.
func (h *Headers) Len() int { return len(h.order) }

// Range calls fn for each header in first-occurrence order, using the
// original-case name recorded at Add time. Iteration stops if fn returns
// false.
func (h *Headers) Range(fn func(name, value string) bool) {
	for _, k := range h.order {
		e := h.m[k]
		if !fn(e.name, e.value) {
			return
		}
	}
}

// Clone deep-copies the header set, used when a pipelined successor message
// is created so the predecessor's headers remain valid.
func (h *Headers) Clone() *Headers {
	out := NewHeaders()
	out.order = append([]string(nil), h.order...)
	out.m = make(map[string]entry, len(h.m))
	for k, v := range h.m {
		out.m[k] = v
	}
	return out
}
