package permissions

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/tenantguard/pkg/apperr"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// Permission is an entry in the permission catalog
type Permission struct {
	Code        string   `json:"code" yaml:"code"`
	Name        string   `json:"name" yaml:"name"`
	Category    string   `json:"category" yaml:"category"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// Catalog is an immutable set of permission definitions.
// A Catalog is safe for concurrent use without synchronization.
type Catalog struct {
	perms map[string]Permission
	order []string
}

type catalogFile struct {
	Permissions []Permission `yaml:"permissions"`
}

// NewCatalog validates perms and builds a catalog from them
func NewCatalog(perms []Permission) (*Catalog, error) {
	c := &Catalog{
		perms: make(map[string]Permission, len(perms)),
		order: make([]string, 0, len(perms)),
	}

	for _, p := range perms {
		if p.Code == "" {
			return nil, apperr.Validation("permission code is required")
		}
		if _, exists := c.perms[p.Code]; exists {
			return nil, apperr.Validation("duplicate permission code %q", p.Code)
		}
		p.DependsOn = append([]string(nil), p.DependsOn...)
		c.perms[p.Code] = p
		c.order = append(c.order, p.Code)
	}

	for _, code := range c.order {
		for _, dep := range c.perms[code].DependsOn {
			if _, ok := c.perms[dep]; !ok {
				return nil, apperr.Validation("permission %q depends on unknown permission %q", code, dep)
			}
		}
	}

	sort.Strings(c.order)
	return c, nil
}

// LoadCatalog parses a YAML catalog document
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, apperr.Validation("failed to parse permission catalog: %v", err)
	}
	return NewCatalog(file.Permissions)
}

// LoadCatalogFile loads a YAML catalog from disk
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open permission catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// DefaultCatalog returns the built-in ERP permission catalog
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(bytes.NewReader(defaultCatalogYAML))
	if err != nil {
		panic(fmt.Sprintf("embedded permission catalog is invalid: %v", err))
	}
	return c
}

// Extend returns a new catalog holding the current definitions plus perms.
// Existing codes cannot be redefined.
func (c *Catalog) Extend(perms ...Permission) (*Catalog, error) {
	all := make([]Permission, 0, len(c.perms)+len(perms))
	for _, code := range c.order {
		all = append(all, c.perms[code])
	}
	for _, p := range perms {
		if _, exists := c.perms[p.Code]; exists {
			return nil, apperr.Validation("permission %q is already defined", p.Code)
		}
	}
	return NewCatalog(append(all, perms...))
}

// Get returns the definition for code
func (c *Catalog) Get(code string) (Permission, bool) {
	p, ok := c.perms[code]
	if !ok {
		return Permission{}, false
	}
	p.DependsOn = append([]string(nil), p.DependsOn...)
	return p, true
}

// Has reports whether code is defined
func (c *Catalog) Has(code string) bool {
	_, ok := c.perms[code]
	return ok
}

// Codes returns every defined code in sorted order
func (c *Catalog) Codes() []string {
	return append([]string(nil), c.order...)
}

// Len returns the number of definitions
func (c *Catalog) Len() int {
	return len(c.order)
}

// ByCategory returns the permissions of one category sorted by code
func (c *Catalog) ByCategory(category string) []Permission {
	var out []Permission
	for _, code := range c.order {
		if p := c.perms[code]; p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// Categories returns the distinct categories in sorted order
func (c *Catalog) Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, code := range c.order {
		cat := c.perms[code].Category
		if _, ok := seen[cat]; ok {
			continue
		}
		seen[cat] = struct{}{}
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// Implied returns the transitive dependency closure of code, excluding code
// itself, in sorted order. Unknown codes imply nothing.
func (c *Catalog) Implied(code string) []string {
	visited := map[string]bool{code: true}
	stack := append([]string(nil), c.perms[code].DependsOn...)
	var out []string

	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[next] {
			continue
		}
		visited[next] = true
		out = append(out, next)
		stack = append(stack, c.perms[next].DependsOn...)
	}

	sort.Strings(out)
	return out
}

// Implies reports whether holding granted also grants code through dependencies
func (c *Catalog) Implies(granted, code string) bool {
	for _, dep := range c.Implied(granted) {
		if dep == code {
			return true
		}
	}
	return false
}
