// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package registry implements the capability registry: the mapping
// from a capability tag to the plugins that produce or consume it,
// and lookup of a plugin by name.
//
// The registry is built once at startup and treated as immutable for
// the lifetime of a run; it holds no synchronization because nothing
// mutates it after the final Register call.
package registry

import (
	"context"

	"github.com/ingestlabs/extractcore/pkg/types"
)

// Plugin is the uniform interface every extraction plugin implements.
// A plugin accepts any Operation it declares support for and refuses
// the rest with an InputInvalid error; the executor never introspects
// Operation.Params itself (see pkg/ops and pkg/pipeline).
type Plugin interface {
	// Descriptor returns this plugin's static metadata.
	Descriptor() types.PluginDescriptor
	// Invoke runs the plugin against req. ctx carries the job's
	// cancellation signal, checked only at the start of Invoke — the
	// call itself is treated as atomic once started.
	Invoke(ctx context.Context, req types.PluginRequest) (types.PluginResponse, error)
}

// entry pairs a plugin with its descriptor, captured once at
// registration time so Descriptor() is not re-invoked on every index
// lookup.
type entry struct {
	name       string
	plugin     Plugin
	descriptor types.PluginDescriptor
}

// Registry is an ordered plugin list plus inverted capability
// indices. The zero value is not usable (Register writes into maps
// that only New allocates); construct with New.
type Registry struct {
	entries    []entry
	producers  map[string][]int // capability -> indices into entries, in registration order
	consumers  map[string][]int
	byName     map[string][]int // first index wins on lookup; all indices kept for completeness
}

// New returns an empty, ready-to-use Registry.
func New() *Registry {
	return &Registry{
		producers: make(map[string][]int),
		consumers: make(map[string][]int),
		byName:    make(map[string][]int),
	}
}

// Register appends plugin to the registry and updates the inverted
// indices. It performs no deduplication: registering two plugins
// under the same name is legal, and ByName resolves to the first one
// registered. Register returns true if this name was already
// registered, so callers can choose to log a warning — this is the
// "either tighten or make explicit" resolution for the spec's
// duplicate-name open question: the behavior stays order-dependent,
// but is no longer silent.
func (r *Registry) Register(plugin Plugin) (alreadyRegistered bool) {
	d := plugin.Descriptor()
	idx := len(r.entries)
	r.entries = append(r.entries, entry{name: d.Name, plugin: plugin, descriptor: d})

	_, alreadyRegistered = r.byName[d.Name]
	r.byName[d.Name] = append(r.byName[d.Name], idx)

	for _, cap := range d.OutputCapabilities {
		r.producers[cap] = append(r.producers[cap], idx)
	}
	for _, cap := range d.InputCapabilities {
		r.consumers[cap] = append(r.consumers[cap], idx)
	}
	return alreadyRegistered
}

// ProducersOf returns, in registration order, the plugins that
// declare cap as an output capability.
func (r *Registry) ProducersOf(cap string) []Plugin {
	return r.resolve(r.producers[cap])
}

// ConsumersOf returns, in registration order, the plugins that
// declare cap as an input capability.
func (r *Registry) ConsumersOf(cap string) []Plugin {
	return r.resolve(r.consumers[cap])
}

// ByName returns the first-registered plugin with the given name, and
// false if no plugin was ever registered under that name.
func (r *Registry) ByName(name string) (Plugin, bool) {
	idxs, ok := r.byName[name]
	if !ok || len(idxs) == 0 {
		return nil, false
	}
	return r.entries[idxs[0]].plugin, true
}

// Descriptors returns every registered plugin's descriptor, in
// registration order.
func (r *Registry) Descriptors() []types.PluginDescriptor {
	out := make([]types.PluginDescriptor, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.descriptor
	}
	return out
}

func (r *Registry) resolve(idxs []int) []Plugin {
	if len(idxs) == 0 {
		return nil
	}
	out := make([]Plugin, len(idxs))
	for i, idx := range idxs {
		out[i] = r.entries[idx].plugin
	}
	return out
}
