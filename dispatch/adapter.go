package dispatch

import "github.com/entityruntime/agentcore/toolregistry"

// FromToolRegistry converts a resolved entity tool set into the map shape
// DispatchRound consumes, discarding the registry's summarizer hook (the
// context manager looks summarizers up separately by tool name).
func FromToolRegistry(resolved map[string]*toolregistry.Handle) map[string]*Handle {
	out := make(map[string]*Handle, len(resolved))
	for name, h := range resolved {
		out[name] = &Handle{Definition: h.Definition, Invoke: h.Invoke}
	}
	return out
}
