// Package voices loads the voice catalog and resolves which voice narrates
// each language of a project.
package voices

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"reelmill/internal/services"
)

//go:embed sample_voices.yaml
var sampleCatalog []byte

// Provider is an external text-to-speech command.
type Provider struct {
	Name          string   `yaml:"name"`
	Command       string   `yaml:"command"`
	Args          []string `yaml:"args"`
	Extension     string   `yaml:"extension"`
	SupportsStyle bool     `yaml:"supports_style"`
}

// Voice is one selectable narrator.
type Voice struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Provider  string   `yaml:"provider"`
	Model     string   `yaml:"model"`
	Languages []string `yaml:"languages"`
}

// Catalog is the parsed voice table.
type Catalog struct {
	DefaultVoice string     `yaml:"default_voice"`
	Providers    []Provider `yaml:"providers"`
	Voices       []Voice    `yaml:"voices"`

	providers map[string]Provider
	voices    map[string]Voice
}

// Load reads and validates the catalog at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrConfiguration, "voices", "load",
				fmt.Sprintf("voice catalog %s not found (create with 'reelmill config init')", path), err)
		}
		return nil, fmt.Errorf("read voice catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var catalog Catalog
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&catalog); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "voices", "parse", "invalid voice catalog", err)
	}
	if err := catalog.index(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// Sample returns the embedded example catalog.
func Sample() []byte {
	return bytes.Clone(sampleCatalog)
}

// WriteSample writes the embedded example catalog to path.
func WriteSample(path string) error {
	if err := os.WriteFile(path, sampleCatalog, 0o644); err != nil {
		return fmt.Errorf("write sample voice catalog: %w", err)
	}
	return nil
}

func (c *Catalog) index() error {
	c.providers = make(map[string]Provider, len(c.Providers))
	for _, p := range c.Providers {
		name := strings.TrimSpace(p.Name)
		if name == "" || strings.TrimSpace(p.Command) == "" {
			return services.Wrap(services.ErrConfiguration, "voices", "index", "provider requires name and command", nil)
		}
		if _, dup := c.providers[name]; dup {
			return services.Wrap(services.ErrConfiguration, "voices", "index", fmt.Sprintf("duplicate provider %q", name), nil)
		}
		c.providers[name] = p
	}
	c.voices = make(map[string]Voice, len(c.Voices))
	for _, v := range c.Voices {
		if strings.TrimSpace(v.ID) == "" {
			return services.Wrap(services.ErrConfiguration, "voices", "index", "voice without id", nil)
		}
		if _, ok := c.providers[v.Provider]; !ok {
			return services.Wrap(services.ErrConfiguration, "voices", "index",
				fmt.Sprintf("voice %q references unknown provider %q", v.ID, v.Provider), nil)
		}
		if len(v.Languages) == 0 {
			return services.Wrap(services.ErrConfiguration, "voices", "index", fmt.Sprintf("voice %q lists no languages", v.ID), nil)
		}
		c.voices[v.ID] = v
	}
	if c.DefaultVoice != "" {
		if _, ok := c.voices[c.DefaultVoice]; !ok {
			return services.Wrap(services.ErrConfiguration, "voices", "index",
				fmt.Sprintf("default voice %q is not in the catalog", c.DefaultVoice), nil)
		}
	}
	return nil
}

// Voice looks up a voice by id.
func (c *Catalog) Voice(id string) (Voice, bool) {
	v, ok := c.voices[strings.TrimSpace(id)]
	return v, ok
}

// Provider looks up a provider by name.
func (c *Catalog) Provider(name string) (Provider, bool) {
	p, ok := c.providers[name]
	return p, ok
}
