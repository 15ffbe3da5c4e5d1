package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
)

// Source is the remote catalog API.
type Source interface {
	CategoryTree(ctx context.Context) ([]domain.Category, error)
	Categories(ctx context.Context) ([]domain.Category, error)
	Subcategories(ctx context.Context) ([]domain.Subcategory, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error)
}

const DefaultMenuTTL = 5 * time.Minute

// MenuCache holds the most recently fetched Tree for ttl. Concurrent misses
// share one fetch. When a refresh fails the previous tree keeps being
// served.
type MenuCache struct {
	source Source
	ttl    time.Duration
	now    func() time.Time
	group  singleflight.Group

	mu        sync.RWMutex
	tree      Tree
	fetchedAt time.Time
	loaded    bool
}

func NewMenuCache(source Source, ttl time.Duration) *MenuCache {
	if ttl <= 0 {
		ttl = DefaultMenuTTL
	}
	return &MenuCache{source: source, ttl: ttl, now: time.Now}
}

// Tree returns the cached tree, refreshing it when stale. The returned error
// is non-nil only when a refresh failed; the tree is then the last good one,
// or empty if there never was one.
func (c *MenuCache) Tree(ctx context.Context) (Tree, error) {
	c.mu.RLock()
	tree, fetchedAt, loaded := c.tree, c.fetchedAt, c.loaded
	c.mu.RUnlock()

	if loaded && c.now().Sub(fetchedAt) < c.ttl {
		return tree, nil
	}

	v, err, _ := c.group.Do("menu", func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx))
	})
	if err != nil {
		if !loaded {
			tree = BuildTree(nil, nil)
		}
		return tree, err
	}
	return v.(Tree), nil
}

func (c *MenuCache) fetch(ctx context.Context) (Tree, error) {
	var (
		categories    []domain.Category
		subcategories []domain.Subcategory
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		categories, err = c.source.CategoryTree(gctx)
		if err != nil {
			return fmt.Errorf("fetch category tree: %w", err)
		}
		if len(categories) > 0 {
			return nil
		}
		// Older catalogs serve only the flat list; BuildTree nests it.
		categories, err = c.source.Categories(gctx)
		if err != nil {
			return fmt.Errorf("fetch categories: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		subcategories, err = c.source.Subcategories(gctx)
		if err != nil {
			return fmt.Errorf("fetch subcategories: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Tree{}, err
	}

	tree := BuildTree(categories, subcategories)

	c.mu.Lock()
	c.tree = tree
	c.fetchedAt = c.now()
	c.loaded = true
	c.mu.Unlock()

	return tree, nil
}

// Invalidate forces the next call to refetch.
func (c *MenuCache) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
