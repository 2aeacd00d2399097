package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// UpsertProduct writes a catalog product for a tenant.
func (s *Store) UpsertProduct(ctx context.Context, tenantID uuid.UUID, p pricing.Product) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if p.ID == uuid.Nil {
		return errors.New("repo: product id required")
	}
	units := p.UnitsPerPackage
	if units <= 0 {
		units = 1
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO products (id, tenant_id, name, catalog_price, units_per_package)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    catalog_price = EXCLUDED.catalog_price,
		    units_per_package = EXCLUDED.units_per_package
		WHERE products.tenant_id = EXCLUDED.tenant_id`,
		p.ID, tenantID, p.Name, p.CatalogPrice, units)
	return err
}
