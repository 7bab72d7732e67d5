// Package catalog lists the image models the application offers and decides
// which provider role serves each one.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"imagesynth/imagegen"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Model is one catalog entry.
type Model struct {
	ID           string        `yaml:"id" json:"id"`
	Name         string        `yaml:"name" json:"name"`
	Description  string        `yaml:"description" json:"description"`
	Role         imagegen.Role `yaml:"role" json:"role"`
	DefaultSteps int           `yaml:"default_steps" json:"default_steps"`
	Paid         bool          `yaml:"paid" json:"paid"`
}

type catalogFile struct {
	Default string  `yaml:"default"`
	Models  []Model `yaml:"models"`
}

// Catalog is an immutable, ordered set of models. It implements
// imagegen.ModelRouter.
type Catalog struct {
	defaultID string
	models    []Model
	byID      map[string]int
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded catalog is invalid: %v", err))
	}
	return c
}

// Load reads the catalog at path, or returns the embedded catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if len(f.Models) == 0 {
		return nil, fmt.Errorf("no models defined")
	}

	c := &Catalog{byID: make(map[string]int, len(f.Models))}
	for i, m := range f.Models {
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			return nil, fmt.Errorf("model %d has no id", i)
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate model id %q", m.ID)
		}
		switch m.Role {
		case "":
			m.Role = imagegen.RolePrimary
		case imagegen.RolePrimary, imagegen.RoleSecondary:
		default:
			return nil, fmt.Errorf("model %q: unknown role %q", m.ID, m.Role)
		}
		if m.DefaultSteps <= 0 {
			m.DefaultSteps = imagegen.DefaultSteps
		}
		if m.Name == "" {
			m.Name = m.ID
		}
		c.byID[m.ID] = len(c.models)
		c.models = append(c.models, m)
	}

	c.defaultID = f.Default
	if c.defaultID == "" {
		c.defaultID = c.models[0].ID
	}
	if _, ok := c.byID[c.defaultID]; !ok {
		return nil, fmt.Errorf("default model %q is not in the catalog", c.defaultID)
	}
	if c.models[c.byID[c.defaultID]].Role != imagegen.RolePrimary {
		return nil, fmt.Errorf("default model %q must be a primary model", c.defaultID)
	}
	return c, nil
}

// Models returns the entries in file order.
func (c *Catalog) Models() []Model {
	out := make([]Model, len(c.models))
	copy(out, c.models)
	return out
}

// Lookup returns the entry for id.
func (c *Catalog) Lookup(id string) (Model, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Model{}, false
	}
	return c.models[i], true
}

// RoleFor implements imagegen.ModelRouter. Models missing from the catalog
// are sent to the primary, which accepts any Hugging Face model id.
func (c *Catalog) RoleFor(model string) imagegen.Role {
	if m, ok := c.Lookup(model); ok {
		return m.Role
	}
	return imagegen.DefaultRouter{}.RoleFor(model)
}

// DefaultModel implements imagegen.ModelRouter.
func (c *Catalog) DefaultModel() string {
	return c.defaultID
}

// WithDefault returns a copy of c whose default is id. It fails when id is
// not a primary model in the catalog.
func (c *Catalog) WithDefault(id string) (*Catalog, error) {
	m, ok := c.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("catalog: unknown model %q", id)
	}
	if m.Role != imagegen.RolePrimary {
		return nil, fmt.Errorf("catalog: default model %q must be a primary model", id)
	}
	cp := *c
	cp.defaultID = id
	return &cp, nil
}

var _ imagegen.ModelRouter = (*Catalog)(nil)
