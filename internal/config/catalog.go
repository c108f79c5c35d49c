package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Provider describes one model provider of the catalog.
type Provider struct {
	Key          string   `yaml:"key"`
	Name         string   `yaml:"name"`
	APIKeyEnv    string   `yaml:"api_key_env"`
	BaseURL      string   `yaml:"base_url"`
	DefaultModel string   `yaml:"default_model"`
	Models       []string `yaml:"models"`
}

// APIKey reads the provider's key from the environment.
func (p *Provider) APIKey() (string, error) {
	key := os.Getenv(p.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable is not set. Please set it in your environment", p.APIKeyEnv)
	}
	return key, nil
}

// HasModel reports whether model is listed for the provider.
func (p *Provider) HasModel(model string) bool {
	for _, m := range p.Models {
		if m == model {
			return true
		}
	}
	return false
}

// Catalog is the ordered list of providers farcode knows about.
type Catalog struct {
	DefaultProvider string     `yaml:"default_provider"`
	Providers       []Provider `yaml:"providers"`
}

// LoadCatalog parses the embedded provider catalog.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

// ParseCatalog parses a catalog document and checks that every provider has
// a key, a base URL and a default model.
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse provider catalog: %w", err)
	}

	seen := make(map[string]bool, len(catalog.Providers))
	for i, p := range catalog.Providers {
		switch {
		case p.Key == "":
			return nil, fmt.Errorf("provider %d has no key", i)
		case seen[p.Key]:
			return nil, fmt.Errorf("duplicate provider %q", p.Key)
		case p.BaseURL == "":
			return nil, fmt.Errorf("provider %q has no base_url", p.Key)
		case p.DefaultModel == "":
			return nil, fmt.Errorf("provider %q has no default_model", p.Key)
		}
		seen[p.Key] = true
	}

	if catalog.DefaultProvider == "" && len(catalog.Providers) > 0 {
		catalog.DefaultProvider = catalog.Providers[0].Key
	}
	if catalog.DefaultProvider != "" && !seen[catalog.DefaultProvider] {
		return nil, fmt.Errorf("default provider %q is not in the catalog", catalog.DefaultProvider)
	}

	return &catalog, nil
}

// Provider returns a provider by key, case-insensitively, or nil if not found.
func (c *Catalog) Provider(key string) *Provider {
	for i := range c.Providers {
		if strings.EqualFold(c.Providers[i].Key, key) {
			return &c.Providers[i]
		}
	}
	return nil
}

// ProviderAt returns the provider at a 1-based position, as numbered by
// /providers and /model.
func (c *Catalog) ProviderAt(n int) *Provider {
	if n < 1 || n > len(c.Providers) {
		return nil
	}
	return &c.Providers[n-1]
}

// Keys lists provider keys in catalog order.
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.Providers))
	for i, p := range c.Providers {
		keys[i] = p.Key
	}
	return keys
}
