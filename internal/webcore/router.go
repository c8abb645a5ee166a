package webcore

import "github.com/lucidwire/govy/internal/plugin"

// Router is the two-level route table of spec.md §4.6: protocol (HTTP,
// HTTPS, WebSocket) crossed with a local path, resolving to the Web
// sub-plugin that registered it. Built per connection from that
// connection's Web sub-plugin instances and read-only once built.
type Router struct {
	routes map[string]map[string]plugin.Web // protocol -> path -> plugin
}

// NewRouter indexes every route every built Web sub-plugin advertises.
// A later plugin registering an already-claimed (protocol, path) pair
// overrides the earlier one; this mirrors Go map assignment semantics and
// keeps route resolution a single map lookup.
func NewRouter(webs []plugin.Web) *Router {
	r := &Router{routes: make(map[string]map[string]plugin.Web)}
	for _, w := range webs {
		for _, route := range w.Routes() {
			byPath, ok := r.routes[route.Protocol]
			if !ok {
				byPath = make(map[string]plugin.Web)
				r.routes[route.Protocol] = byPath
			}
			byPath[route.Path] = w
		}
	}
	return r
}

// Resolve looks up the Web sub-plugin registered for protocol and path.
func (r *Router) Resolve(protocol, path string) (plugin.Web, bool) {
	byPath, ok := r.routes[protocol]
	if !ok {
		return nil, false
	}
	w, ok := byPath[path]
	return w, ok
}
