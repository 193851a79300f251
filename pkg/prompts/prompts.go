// Package prompts ships the built-in coaching prompt presets. Each preset
// bundles a system instruction with the generation parameters tuned for one
// focus area (serve, forehand, rally play, or a general review).
package prompts

import (
	"fmt"
	"sort"
	"sync"

	_ "embed"

	"gopkg.in/yaml.v3"

	"tenniscoach/pkg/gemini"
)

//go:embed presets.yaml
var presetsYAML []byte

// Preset is one coaching focus area.
type Preset struct {
	Name              string   `yaml:"name"`
	Description       string   `yaml:"description"`
	SystemInstruction string   `yaml:"system_instruction"`
	UserPrompt        string   `yaml:"user_prompt"`
	Temperature       *float32 `yaml:"temperature,omitempty"`
	MaxOutputTokens   int32    `yaml:"max_output_tokens,omitempty"`
	MediaResolution   string   `yaml:"media_resolution,omitempty"`
}

// GenerationConfig translates the preset's tuning knobs to request form.
func (p Preset) GenerationConfig() *gemini.GenerationConfig {
	if p.Temperature == nil && p.MaxOutputTokens == 0 && p.MediaResolution == "" {
		return nil
	}
	return &gemini.GenerationConfig{
		Temperature:     p.Temperature,
		MaxOutputTokens: p.MaxOutputTokens,
		MediaResolution: p.MediaResolution,
	}
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

var (
	loadOnce sync.Once
	loadErr  error
	registry map[string]Preset
)

func load() {
	var pf presetFile
	if err := yaml.Unmarshal(presetsYAML, &pf); err != nil {
		loadErr = fmt.Errorf("parsing embedded presets: %w", err)
		return
	}
	registry = make(map[string]Preset, len(pf.Presets))
	for _, p := range pf.Presets {
		if p.Name == "" || p.SystemInstruction == "" {
			loadErr = fmt.Errorf("preset %q missing name or system instruction", p.Name)
			return
		}
		registry[p.Name] = p
	}
}

// Get returns the named preset.
func Get(name string) (Preset, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return Preset{}, loadErr
	}
	p, ok := registry[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown preset %q (available: %v)", name, Names())
	}
	return p, nil
}

// Names lists the available preset names, sorted.
func Names() []string {
	loadOnce.Do(load)
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
