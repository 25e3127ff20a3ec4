// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ingestlabs/extractcore/internal/xerrors"
	"github.com/ingestlabs/extractcore/pkg/types"
)

// manifestDescriptor carries the name, description, capability and
// runtime-hint fields of types.PluginDescriptor with YAML tags; the
// performance hints and cache policy are not read from a manifest.
// Kept separate so the wire format can evolve independently of the
// in-memory struct's json tags.
type manifestDescriptor struct {
	Name               string   `yaml:"name"`
	Description        string   `yaml:"description"`
	InputCapabilities  []string `yaml:"input_capabilities"`
	OutputCapabilities []string `yaml:"output_capabilities"`
	Runtime            struct {
		MaxFileSizeBytes int64 `yaml:"max_file_size_bytes"`
		RequiresGPU      bool  `yaml:"requires_gpu"`
		Experimental     bool  `yaml:"experimental"`
	} `yaml:"runtime"`
}

type manifest struct {
	Plugins []manifestDescriptor `yaml:"plugins"`
}

// LoadDescriptorsYAML reads a manifest file listing N plugin
// descriptors and returns their types.PluginDescriptor form. It does
// not construct Plugin implementations — those are wired separately
// per spec.md §1 ("individual ML models... are external collaborators");
// this only recovers the static metadata half of a registration.
//
// Generalizes the source's one-YAML-file-per-plugin pattern
// (video-extract-cli's registry_helper.rs, one Arc::new(XPlugin::
// from_yaml(...)) call per plugin) into a single multi-descriptor
// manifest, since this core treats plugins as data rather than one
// hardcoded type per model.
func LoadDescriptorsYAML(path string) ([]types.PluginDescriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.NewIOFailed(fmt.Errorf("reading plugin manifest %s: %w", path, err))
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, xerrors.NewInputInvalid(fmt.Errorf("parsing plugin manifest %s: %w", path, err))
	}

	out := make([]types.PluginDescriptor, len(m.Plugins))
	for i, d := range m.Plugins {
		out[i] = types.PluginDescriptor{
			Name:               d.Name,
			Description:        d.Description,
			InputCapabilities:  d.InputCapabilities,
			OutputCapabilities: d.OutputCapabilities,
			Runtime: types.RuntimeHints{
				MaxFileSizeBytes: d.Runtime.MaxFileSizeBytes,
				RequiresGPU:      d.Runtime.RequiresGPU,
				Experimental:     d.Runtime.Experimental,
			},
		}
	}
	return out, nil
}
