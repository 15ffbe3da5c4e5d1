// Package catalog serves the storefront's category menu and product search.
package catalog

import (
	"strings"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
)

// Tree is an immutable category hierarchy. It is built once per fetch and
// handed to whoever renders the menu.
type Tree struct {
	Roots []domain.Category `json:"categories"`
	index map[string]*domain.Category
	path  map[string][]string
}

// BuildTree assembles roots and attaches each subcategory under its parent
// category unless the tree already lists it there. Flat lists are nested
// by ParentID.
func BuildTree(categories []domain.Category, subcategories []domain.Subcategory) Tree {
	subs := make(map[string][]domain.Category)
	for _, sub := range subcategories {
		subs[sub.CategoryID] = append(subs[sub.CategoryID], domain.Category{
			ID:       sub.ID,
			Name:     sub.Name,
			Slug:     sub.Slug,
			ParentID: sub.CategoryID,
		})
	}

	t := Tree{Roots: attachSubcategories(nest(categories), subs)}
	t.reindex()
	return t
}

func attachSubcategories(nodes []domain.Category, subs map[string][]domain.Category) []domain.Category {
	out := make([]domain.Category, len(nodes))
	for i, n := range nodes {
		children := attachSubcategories(n.Children, subs)
		for _, sub := range subs[n.ID] {
			if !containsID(children, sub.ID) {
				children = append(children, sub)
			}
		}
		if len(children) == 0 {
			children = nil
		}
		n.Children = children
		out[i] = n
	}
	return out
}

// nest turns a flat list into a forest. Categories that already carry
// children are kept as they are.
func nest(categories []domain.Category) []domain.Category {
	byID := make(map[string]int, len(categories))
	for i, c := range categories {
		byID[c.ID] = i
	}

	children := make(map[string][]domain.Category)
	var roots []string
	for _, c := range categories {
		if _, ok := byID[c.ParentID]; ok && c.ParentID != c.ID {
			children[c.ParentID] = append(children[c.ParentID], c)
			continue
		}
		roots = append(roots, c.ID)
	}

	var attach func(c domain.Category) domain.Category
	attach = func(c domain.Category) domain.Category {
		c.Children = append([]domain.Category(nil), c.Children...)
		for _, child := range children[c.ID] {
			if !containsID(c.Children, child.ID) {
				c.Children = append(c.Children, attach(child))
			}
		}
		return c
	}

	out := make([]domain.Category, 0, len(roots))
	for _, id := range roots {
		out = append(out, attach(categories[byID[id]]))
	}
	return out
}

func (t *Tree) reindex() {
	t.index = make(map[string]*domain.Category)
	t.path = make(map[string][]string)
	var walk func(nodes []domain.Category, trail []string)
	walk = func(nodes []domain.Category, trail []string) {
		for i := range nodes {
			n := &nodes[i]
			here := append(append([]string(nil), trail...), n.ID)
			t.index[n.ID] = n
			t.path[n.ID] = here
			if n.Slug != "" {
				t.index[strings.ToLower(n.Slug)] = n
				t.path[strings.ToLower(n.Slug)] = here
			}
			walk(n.Children, here)
		}
	}
	walk(t.Roots, nil)
}

// Find looks a category up by id or slug.
func (t Tree) Find(key string) (domain.Category, bool) {
	n, ok := t.index[key]
	if !ok {
		n, ok = t.index[strings.ToLower(key)]
	}
	if !ok {
		return domain.Category{}, false
	}
	return *n, true
}

// Breadcrumbs returns the chain of categories from the root down to key.
func (t Tree) Breadcrumbs(key string) []domain.Category {
	ids, ok := t.path[key]
	if !ok {
		ids = t.path[strings.ToLower(key)]
	}
	out := make([]domain.Category, 0, len(ids))
	for _, id := range ids {
		if n, ok := t.index[id]; ok {
			crumb := *n
			crumb.Children = nil
			out = append(out, crumb)
		}
	}
	return out
}

func (t Tree) Len() int {
	n := 0
	for k, c := range t.index {
		if k == c.ID {
			n++
		}
	}
	return n
}

func containsID(nodes []domain.Category, id string) bool {
	for _, n := range nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}
