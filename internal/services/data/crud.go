package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TheMichaelB/possync/internal/models"
	"github.com/TheMichaelB/possync/internal/store"
)

// ListProducts returns the product catalog: fresh when online, cached
// otherwise. Never fails visibly; degraded paths return what is
// available, down to an empty slice.
func (s *Service) ListProducts(ctx context.Context) ([]models.Product, error) {
	return list(ctx, s, "/products", store.CollectionProducts,
		func(p *models.Product) string { return p.ID })
}

// ListCustomers returns all customers.
func (s *Service) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	return list(ctx, s, "/customers", store.CollectionCustomers,
		func(c *models.Customer) string { return c.ID })
}

// ListDiscounts returns all discounts.
func (s *Service) ListDiscounts(ctx context.Context) ([]models.Discount, error) {
	return list(ctx, s, "/discounts", store.CollectionDiscounts,
		func(d *models.Discount) string { return d.ID })
}

// ListOrders returns cached or fresh orders. The orders collection is
// a cache only; queued order creations are not folded into reads.
func (s *Service) ListOrders(ctx context.Context) ([]models.Order, error) {
	return list(ctx, s, "/orders", store.CollectionOrders,
		func(o *models.Order) string { return o.ID })
}

// GetSettings returns store settings, nil when nothing is known.
func (s *Service) GetSettings(ctx context.Context) (*models.Settings, error) {
	if s.monitor.IsOnline() {
		resp, err := s.transport.Request(ctx, "GET", "/settings", nil)
		if err == nil {
			var fresh models.Settings
			if err := json.Unmarshal(resp, &fresh); err == nil {
				warmCache(s, store.CollectionSettings,
					[]models.Settings{fresh},
					func(*models.Settings) string { return store.SettingsKey })
				return &fresh, nil
			}
			s.logger.WithError(err).Error("Malformed settings response")
		} else {
			s.logger.WithError(err).Warn("Online settings read failed, serving cache")
		}
	}

	raw, err := s.store.Get(store.CollectionSettings, store.SettingsKey)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.WithError(err).Warn("Settings cache unavailable")
		}
		return nil, nil
	}

	var cached models.Settings
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, nil
	}
	return &cached, nil
}

// CreateProduct adds a catalog item.
func (s *Service) CreateProduct(ctx context.Context, p models.Product) (*models.Product, error) {
	return writeEntity[models.Product](ctx, s, models.EntityProduct, models.ActionCreate,
		"POST", "/products", p, store.CollectionProducts,
		func(out *models.Product) string { return out.ID })
}

// UpdateProduct replaces a catalog item. The full record must be
// supplied; there are no partial-update semantics locally.
func (s *Service) UpdateProduct(ctx context.Context, p models.Product) (*models.Product, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("product id is required")
	}
	return writeEntity[models.Product](ctx, s, models.EntityProduct, models.ActionUpdate,
		"PATCH", "/products/"+p.ID, p, store.CollectionProducts,
		func(out *models.Product) string { return out.ID })
}

// DeleteProduct removes a catalog item.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	return s.deleteEntity(ctx, models.EntityProduct, "/products/"+id,
		store.CollectionProducts, id)
}

// CreateCustomer registers a customer.
func (s *Service) CreateCustomer(ctx context.Context, c models.Customer) (*models.Customer, error) {
	return writeEntity[models.Customer](ctx, s, models.EntityCustomer, models.ActionCreate,
		"POST", "/customers", c, store.CollectionCustomers,
		func(out *models.Customer) string { return out.ID })
}

// UpdateCustomer replaces a customer record.
func (s *Service) UpdateCustomer(ctx context.Context, c models.Customer) (*models.Customer, error) {
	if c.ID == "" {
		return nil, fmt.Errorf("customer id is required")
	}
	return writeEntity[models.Customer](ctx, s, models.EntityCustomer, models.ActionUpdate,
		"PATCH", "/customers/"+c.ID, c, store.CollectionCustomers,
		func(out *models.Customer) string { return out.ID })
}

// CreateDiscount adds a discount rule.
func (s *Service) CreateDiscount(ctx context.Context, d models.Discount) (*models.Discount, error) {
	return writeEntity[models.Discount](ctx, s, models.EntityDiscount, models.ActionCreate,
		"POST", "/discounts", d, store.CollectionDiscounts,
		func(out *models.Discount) string { return out.ID })
}

// UpdateDiscount replaces a discount rule.
func (s *Service) UpdateDiscount(ctx context.Context, d models.Discount) (*models.Discount, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("discount id is required")
	}
	return writeEntity[models.Discount](ctx, s, models.EntityDiscount, models.ActionUpdate,
		"PATCH", "/discounts/"+d.ID, d, store.CollectionDiscounts,
		func(out *models.Discount) string { return out.ID })
}

// DeleteDiscount removes a discount rule.
func (s *Service) DeleteDiscount(ctx context.Context, id string) error {
	return s.deleteEntity(ctx, models.EntityDiscount, "/discounts/"+id,
		store.CollectionDiscounts, id)
}

// CreateOrder submits a sale. Offline (or failed) submissions queue
// durably and the caller is told the order is pending sync.
func (s *Service) CreateOrder(ctx context.Context, o models.Order) (*models.Order, error) {
	return writeEntity[models.Order](ctx, s, models.EntityOrder, models.ActionCreate,
		"POST", "/orders", o, store.CollectionOrders,
		func(out *models.Order) string { return out.ID })
}

// UpdateSettings replaces store settings.
func (s *Service) UpdateSettings(ctx context.Context, st models.Settings) (*models.Settings, error) {
	return writeEntity[models.Settings](ctx, s, models.EntitySettings, models.ActionUpdate,
		"PATCH", "/settings", st, store.CollectionSettings,
		func(*models.Settings) string { return store.SettingsKey })
}

// writeEntity is the shared create/update path: remote first, then an
// optimistic cache mirror of the server's canonical record.
func writeEntity[T any](
	ctx context.Context,
	s *Service,
	entityType models.EntityType,
	action models.Action,
	method, path string,
	payload T,
	collection string,
	keyFn func(*T) string,
) (*T, error) {
	resp, err := s.write(ctx, entityType, action, method, path, payload)
	if err != nil {
		return nil, err
	}

	canonical := payload
	if len(resp) > 0 {
		if err := json.Unmarshal(resp, &canonical); err != nil {
			// Server accepted the write but replied with something
			// unexpected; keep the submitted record as the local view.
			s.logger.WithError(err).Warn("Undecodable write response, caching submitted record")
			canonical = payload
		}
	}

	if key := keyFn(&canonical); key != "" {
		s.cachePut(collection, key, canonical)
	}

	return &canonical, nil
}

// deleteEntity is the shared delete path.
func (s *Service) deleteEntity(ctx context.Context, entityType models.EntityType, path, collection, id string) error {
	if id == "" {
		return fmt.Errorf("%s id is required", entityType)
	}

	// Delete payloads carry just the id; the reconciler extracts it
	// to build the DELETE endpoint during replay.
	payload := map[string]string{"id": id}

	_, err := s.write(ctx, entityType, models.ActionDelete, "DELETE", path, payload)
	if err != nil {
		return err
	}

	s.cacheDelete(collection, id)
	return nil
}
