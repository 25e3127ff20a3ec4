// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingestlabs/extractcore/pkg/types"
)

type stubPlugin struct {
	name    string
	inputs  []string
	outputs []string
}

func (s stubPlugin) Descriptor() types.PluginDescriptor {
	return types.PluginDescriptor{Name: s.name, InputCapabilities: s.inputs, OutputCapabilities: s.outputs}
}

func (s stubPlugin) Invoke(ctx context.Context, req types.PluginRequest) (types.PluginResponse, error) {
	return types.PluginResponse{Output: req.Input}, nil
}

func TestRegistryProducersAndConsumers(t *testing.T) {
	r := New()
	r.Register(stubPlugin{name: "video-decoder", outputs: []string{"keyframes"}})
	r.Register(stubPlugin{name: "face-detection", inputs: []string{"keyframes"}, outputs: []string{"face-boxes"}})
	r.Register(stubPlugin{name: "caption-generation", inputs: []string{"keyframes"}, outputs: []string{"caption"}})

	producers := r.ProducersOf("keyframes")
	require.Len(t, producers, 1)
	assert.Equal(t, "video-decoder", producers[0].Descriptor().Name)

	consumers := r.ConsumersOf("keyframes")
	require.Len(t, consumers, 2)
	assert.Equal(t, "face-detection", consumers[0].Descriptor().Name)
	assert.Equal(t, "caption-generation", consumers[1].Descriptor().Name)
}

func TestRegistryByNameFirstMatchWins(t *testing.T) {
	r := New()
	first := stubPlugin{name: "ocr", outputs: []string{"text-v1"}}
	second := stubPlugin{name: "ocr", outputs: []string{"text-v2"}}

	alreadyA := r.Register(first)
	alreadyB := r.Register(second)

	assert.False(t, alreadyA, "first registration should report alreadyRegistered=false")
	assert.True(t, alreadyB, "second registration under the same name should report alreadyRegistered=true")

	got, ok := r.ByName("ocr")
	require.True(t, ok)
	assert.Equal(t, []string{"text-v1"}, got.Descriptor().OutputCapabilities)
}

func TestRegistryByNameUnknown(t *testing.T) {
	r := New()
	_, ok := r.ByName("does-not-exist")
	assert.False(t, ok)
}

func TestRegistryDescriptorsPreservesOrder(t *testing.T) {
	r := New()
	r.Register(stubPlugin{name: "a"})
	r.Register(stubPlugin{name: "b"})
	r.Register(stubPlugin{name: "c"})

	names := make([]string, 0, 3)
	for _, d := range r.Descriptors() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestLoadDescriptorsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugins.yaml")
	content := `
plugins:
  - name: transcription
    description: speech to text
    input_capabilities: [audio]
    output_capabilities: [transcription]
    runtime:
      requires_gpu: true
  - name: ocr
    input_capabilities: [keyframes]
    output_capabilities: [text]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	descriptors, err := LoadDescriptorsYAML(path)
	require.NoError(t, err)
	require.Len(t, descriptors, 2)
	assert.Equal(t, "transcription", descriptors[0].Name)
	assert.True(t, descriptors[0].Runtime.RequiresGPU)
	assert.Equal(t, []string{"audio"}, descriptors[0].InputCapabilities)
	assert.Equal(t, "ocr", descriptors[1].Name)
}

func TestLoadDescriptorsYAMLMissingFile(t *testing.T) {
	_, err := LoadDescriptorsYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
