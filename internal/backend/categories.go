package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
)

type wireCategory struct {
	MongoID       string          `json:"_id"`
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Slug          string          `json:"slug"`
	Parent        json.RawMessage `json:"parent"`
	ParentID      string          `json:"parentId"`
	Category      json.RawMessage `json:"category"`
	Image         string          `json:"image"`
	Children      []wireCategory  `json:"children"`
	Subcategories []wireCategory  `json:"subcategories"`
}

func (wc wireCategory) toCategory() domain.Category {
	c := domain.Category{
		ID:       firstNonEmpty(wc.MongoID, wc.ID),
		Name:     wc.Name,
		Slug:     wc.Slug,
		ParentID: firstNonEmpty(wc.ParentID, refID(wc.Parent)),
		Image:    wc.Image,
	}
	for _, child := range append(wc.Children, wc.Subcategories...) {
		cc := child.toCategory()
		if cc.ParentID == "" {
			cc.ParentID = c.ID
		}
		c.Children = append(c.Children, cc)
	}
	return c
}

// refID reads a reference that is either an id string or a populated object.
func refID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		MongoID string `json:"_id"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return firstNonEmpty(obj.MongoID, obj.ID)
	}
	return ""
}

func (c *Client) fetchCategories(ctx context.Context, path string) ([]domain.Category, error) {
	var raw json.RawMessage
	if err := c.get(ctx, path, nil, &raw); err != nil {
		return nil, err
	}
	list := unwrapList(raw, "categories", "tree")
	if list == nil {
		return []domain.Category{}, nil
	}
	var wire []wireCategory
	if err := json.Unmarshal(list, &wire); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	out := make([]domain.Category, 0, len(wire))
	for _, wc := range wire {
		out = append(out, wc.toCategory())
	}
	return out, nil
}

// Categories calls GET /api/categories.
func (c *Client) Categories(ctx context.Context) ([]domain.Category, error) {
	return c.fetchCategories(ctx, "/api/categories")
}

// CategoryTree calls GET /api/categories/tree.
func (c *Client) CategoryTree(ctx context.Context) ([]domain.Category, error) {
	return c.fetchCategories(ctx, "/api/categories/tree")
}

// Subcategories calls GET /api/subcategories.
func (c *Client) Subcategories(ctx context.Context) ([]domain.Subcategory, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/api/subcategories", nil, &raw); err != nil {
		return nil, err
	}
	list := unwrapList(raw, "subcategories")
	if list == nil {
		return []domain.Subcategory{}, nil
	}
	var wire []wireCategory
	if err := json.Unmarshal(list, &wire); err != nil {
		return nil, fmt.Errorf("decode subcategories: %w", err)
	}
	out := make([]domain.Subcategory, 0, len(wire))
	for _, wc := range wire {
		out = append(out, domain.Subcategory{
			ID:         firstNonEmpty(wc.MongoID, wc.ID),
			Name:       wc.Name,
			Slug:       wc.Slug,
			CategoryID: firstNonEmpty(refID(wc.Category), wc.ParentID, refID(wc.Parent)),
		})
	}
	return out, nil
}
