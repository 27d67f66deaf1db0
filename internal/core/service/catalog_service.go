package service

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rl1809/biosalim/internal/core/domain"
	"github.com/rl1809/biosalim/internal/port"
)

// CatalogService serves the storefront from an in-memory mirror of the
// catalog store. The mirror only changes after the store acknowledged a
// write, so a failed write never shows up to shoppers.
type CatalogService struct {
	repo    port.CatalogRepository
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.RWMutex
	products []domain.Product
	loaded   bool
	sfg      singleflight.Group
}

func NewCatalogService(repo port.CatalogRepository, timeout time.Duration, logger *slog.Logger) *CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{
		repo:    repo,
		timeout: timeout,
		logger:  logger,
	}
}

// Reload replaces the mirror with the store's current contents. Concurrent
// calls share one store read.
func (s *CatalogService) Reload(ctx context.Context) error {
	_, err, _ := s.sfg.Do("catalog", func() (interface{}, error) {
		ctx, cancel := boundedContext(ctx, s.timeout)
		defer cancel()

		products, err := s.repo.ListProducts(ctx)
		if err != nil {
			s.logger.Error("catalog reload failed", "error", err)
			return nil, storeErr("list products", err)
		}

		s.mu.Lock()
		s.products = products
		s.loaded = true
		s.mu.Unlock()

		s.logger.Debug("catalog reloaded", "products", len(products))
		return nil, nil
	})
	return err
}

// List returns a snapshot of the catalog, filtered by category when one is
// given.
func (s *CatalogService) List(ctx context.Context, category domain.Category) ([]domain.Product, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if category == "" || p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

// Categories returns the distinct categories present in the catalog in
// first-seen order.
func (s *CatalogService) Categories(ctx context.Context) ([]domain.Category, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Category
	for _, p := range s.products {
		if p.Category != "" && !slices.Contains(out, p.Category) {
			out = append(out, p.Category)
		}
	}
	return out, nil
}

func (s *CatalogService) Get(ctx context.Context, id string) (domain.Product, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return domain.Product{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexLocked(id); i >= 0 {
		return s.products[i], nil
	}
	return domain.Product{}, domain.ErrNotFound
}

func (s *CatalogService) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}
	if product.Category == "" {
		product.Category = domain.CategoryOther
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return domain.Product{}, err
	}

	storeCtx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	created, err := s.repo.CreateProduct(storeCtx, product)
	if err != nil {
		s.logger.Error("create product failed", "name", product.Name, "error", err)
		return domain.Product{}, storeErr("create product", err)
	}

	s.mu.Lock()
	s.products = append(s.products, created)
	s.mu.Unlock()

	s.logger.Info("product created", "id", created.ID, "name", created.Name)
	return created, nil
}

func (s *CatalogService) Update(ctx context.Context, id string, patch domain.ProductPatch) (domain.Product, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return domain.Product{}, err
	}

	// reject bad input before touching the store
	s.mu.RLock()
	i := s.indexLocked(id)
	var current domain.Product
	if i >= 0 {
		current = s.products[i]
	}
	s.mu.RUnlock()
	if i >= 0 {
		if _, err := patch.Apply(current); err != nil {
			return domain.Product{}, err
		}
	}

	storeCtx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	updated, err := s.repo.UpdateProduct(storeCtx, id, patch)
	if err != nil {
		s.logger.Warn("update product failed", "id", id, "error", err)
		return domain.Product{}, storeErr("update product", err)
	}

	s.mu.Lock()
	if j := s.indexLocked(id); j >= 0 {
		s.products[j] = updated
	} else {
		s.products = append(s.products, updated)
	}
	s.mu.Unlock()

	s.logger.Info("product updated", "id", id)
	return updated, nil
}

// Delete removes a product. Deleting an absent product succeeds without
// changing anything.
func (s *CatalogService) Delete(ctx context.Context, id string) error {
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}

	storeCtx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	if err := s.repo.DeleteProduct(storeCtx, id); err != nil {
		s.logger.Error("delete product failed", "id", id, "error", err)
		return storeErr("delete product", err)
	}

	s.mu.Lock()
	if i := s.indexLocked(id); i >= 0 {
		s.products = slices.Delete(slices.Clone(s.products), i, i+1)
	}
	s.mu.Unlock()

	s.logger.Info("product deleted", "id", id)
	return nil
}

func (s *CatalogService) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	return s.Reload(ctx)
}

func (s *CatalogService) indexLocked(id string) int {
	for i, p := range s.products {
		if p.ID == id {
			return i
		}
	}
	return -1
}
