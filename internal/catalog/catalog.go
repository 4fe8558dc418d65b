// Package catalog holds the fixed household users and spending categories.
//
// The catalog is static for the lifetime of a process: it is decoded once
// from TOML (the embedded default or an override file) and only read after.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"despesas/internal/core"
)

// DefaultFallbackColor is used for categories without a configured color.
const DefaultFallbackColor = "#94a3b8"

//go:embed default.toml
var defaultTOML string

var ErrEmptyCatalog = errors.New("catalog has no users or no categories")

type file struct {
	FallbackColor string          `toml:"fallback_color"`
	Users         []core.User     `toml:"users"`
	Categories    []core.Category `toml:"categories"`
}

// Catalog is a read-only view of users and categories.
type Catalog struct {
	fallback   string
	users      []core.User
	categories []core.Category
	userByID   map[string]core.User
	colorByCat map[string]string
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultTOML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog file, or returns the default when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a TOML catalog document.
func Parse(doc string) (*Catalog, error) {
	var f file
	if _, err := toml.Decode(doc, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return build(f)
}

func build(f file) (*Catalog, error) {
	if len(f.Users) == 0 || len(f.Categories) == 0 {
		return nil, ErrEmptyCatalog
	}
	c := &Catalog{
		fallback:   f.FallbackColor,
		users:      f.Users,
		categories: f.Categories,
		userByID:   make(map[string]core.User, len(f.Users)),
		colorByCat: make(map[string]string, len(f.Categories)),
	}
	if c.fallback == "" {
		c.fallback = DefaultFallbackColor
	}
	for _, u := range f.Users {
		if u.ID == "" || u.Name == "" {
			return nil, fmt.Errorf("user %+v: id and name are required", u)
		}
		if _, dup := c.userByID[u.ID]; dup {
			return nil, fmt.Errorf("duplicate user id %q", u.ID)
		}
		c.userByID[u.ID] = u
	}
	for _, cat := range f.Categories {
		if cat.Name == "" {
			return nil, errors.New("category name is required")
		}
		if _, dup := c.colorByCat[cat.Name]; dup {
			return nil, fmt.Errorf("duplicate category %q", cat.Name)
		}
		c.colorByCat[cat.Name] = cat.Color
	}
	return c, nil
}

// Users returns the users in configured order.
func (c *Catalog) Users() []core.User {
	return append([]core.User(nil), c.users...)
}

// User looks up a user by id.
func (c *Catalog) User(id string) (core.User, bool) {
	u, ok := c.userByID[id]
	return u, ok
}

// Categories returns the categories in configured order.
func (c *Catalog) Categories() []core.Category {
	return append([]core.Category(nil), c.categories...)
}

func (c *Catalog) HasCategory(name string) bool {
	_, ok := c.colorByCat[name]
	return ok
}

func (c *Catalog) CategoryNames() []string {
	out := make([]string, len(c.categories))
	for i, cat := range c.categories {
		out[i] = cat.Name
	}
	return out
}

// Color returns the display color of a category, falling back for
// unknown names or categories configured without one.
func (c *Catalog) Color(category string) string {
	if col := c.colorByCat[category]; col != "" {
		return col
	}
	return c.fallback
}

// FallbackColor is the color of unknown categories.
func (c *Catalog) FallbackColor() string { return c.fallback }

// DefaultCategory is preselected in new-expense forms.
func (c *Catalog) DefaultCategory() string { return c.categories[0].Name }
