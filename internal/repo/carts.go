package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/discount"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

const cartColumns = `id, tenant_id, customer_ref, status, version, discount, legacy_discount, customer_state, created_at, updated_at`

// GetCart loads the customer's cart with its items joined to products.
func (s *Store) GetCart(ctx context.Context, tenantID uuid.UUID, customerRef string) (cart.Cart, error) {
	if err := requireTenant(tenantID); err != nil {
		return cart.Cart{}, err
	}
	row := s.DB.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE tenant_id = $1 AND customer_ref = $2`, tenantID, customerRef)
	c, err := scanCart(row)
	if err != nil {
		return cart.Cart{}, mapNoRows(err, cart.ErrNotFound)
	}
	items, err := s.cartItems(ctx, c.ID)
	if err != nil {
		return cart.Cart{}, err
	}
	c.Items = items
	return c, nil
}

// EnsureCart creates the cart on first use. A committed cart is reopened so
// the next generation starts empty and OPEN.
func (s *Store) EnsureCart(ctx context.Context, tenantID uuid.UUID, customerRef string) (cart.Cart, error) {
	if err := requireTenant(tenantID); err != nil {
		return cart.Cart{}, err
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO carts (id, tenant_id, customer_ref, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, $5)
		ON CONFLICT (tenant_id, customer_ref) DO UPDATE
		SET status = $4, updated_at = $5
		WHERE carts.status IN ('COMMITTED', 'ABORTED')`,
		uuid.New(), tenantID, customerRef, string(cart.StatusOpen), s.now())
	if err != nil {
		return cart.Cart{}, fmt.Errorf("ensure cart: %w", err)
	}
	return s.GetCart(ctx, tenantID, customerRef)
}

// GetProduct returns a tenant's product.
func (s *Store) GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (pricing.Product, error) {
	if err := requireTenant(tenantID); err != nil {
		return pricing.Product{}, err
	}
	var p pricing.Product
	err := s.DB.QueryRow(ctx, `
		SELECT id, name, catalog_price, units_per_package
		FROM products WHERE tenant_id = $1 AND id = $2`, tenantID, productID).
		Scan(&p.ID, &p.Name, &p.CatalogPrice, &p.UnitsPerPackage)
	if err != nil {
		return pricing.Product{}, mapNoRows(err, cart.ErrNotFound)
	}
	return p, nil
}

func (s *Store) InsertItem(ctx context.Context, cartID, productID uuid.UUID, qty int) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.DB.Exec(ctx, `
		INSERT INTO cart_items (id, cart_id, product_id, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5)`, id, cartID, productID, qty, s.now())
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert cart item: %w", err)
	}
	return id, s.touch(ctx, cartID)
}

func (s *Store) SetItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, qty int) error {
	return s.execItem(ctx, cartID, `UPDATE cart_items SET quantity = $3 WHERE cart_id = $1 AND id = $2`, cartID, itemID, qty)
}

func (s *Store) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	return s.execItem(ctx, cartID, `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`, cartID, itemID)
}

func (s *Store) SetItemOverride(ctx context.Context, cartID, itemID uuid.UUID, price *decimal.Decimal, approved bool) error {
	var value decimal.NullDecimal
	if price != nil {
		value = decimal.NewNullDecimal(*price)
	}
	return s.execItem(ctx, cartID, `
		UPDATE cart_items SET price_override = $3, override_approved = $4
		WHERE cart_id = $1 AND id = $2`, cartID, itemID, value, approved && price != nil)
}

// ClearOverrides drops overrides that are not backed by an approval.
func (s *Store) ClearOverrides(ctx context.Context, cartID uuid.UUID, itemIDs []uuid.UUID) error {
	if len(itemIDs) == 0 {
		return nil
	}
	_, err := s.DB.Exec(ctx, `
		UPDATE cart_items SET price_override = NULL, override_approved = false
		WHERE cart_id = $1 AND id = ANY($2)`, cartID, itemIDs)
	if err != nil {
		return fmt.Errorf("clear overrides: %w", err)
	}
	return nil
}

func (s *Store) SetDiscount(ctx context.Context, cartID uuid.UUID, approved *discount.Approved) error {
	var payload []byte
	if approved != nil {
		var err error
		if payload, err = json.Marshal(approved); err != nil {
			return fmt.Errorf("encode discount: %w", err)
		}
	}
	return s.execCart(ctx, `UPDATE carts SET discount = $2, updated_at = $3 WHERE id = $1`, cartID, payload, s.now())
}

func (s *Store) SetCustomerState(ctx context.Context, cartID uuid.UUID, state string) error {
	return s.execCart(ctx, `UPDATE carts SET customer_state = $2, updated_at = $3 WHERE id = $1`, cartID, state, s.now())
}

// ClearCart empties the cart and starts its next generation.
func (s *Store) ClearCart(ctx context.Context, cartID uuid.UUID, status cart.Status) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return fmt.Errorf("clear cart items: %w", err)
		}
		tag, err := tx.Exec(ctx, `
			UPDATE carts SET discount = NULL, legacy_discount = 0, version = version + 1,
			status = $2, updated_at = $3 WHERE id = $1`, cartID, string(status), s.now())
		if err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return cart.ErrNotFound
		}
		return nil
	})
}

// CustomerHistory reports whether the customer has a non-cancelled order and
// the lowest unit price they paid per product.
func (s *Store) CustomerHistory(ctx context.Context, tenantID uuid.UUID, customerRef string) (cart.History, error) {
	if err := requireTenant(tenantID); err != nil {
		return cart.History{}, err
	}
	rows, err := s.DB.Query(ctx, `
		SELECT oi.product_id, MIN(oi.paid_unit_price)
		FROM orders o JOIN order_items oi ON oi.order_id = o.id
		WHERE o.tenant_id = $1 AND o.customer_ref = $2 AND o.status <> 'CANCELLED'
		GROUP BY oi.product_id`, tenantID, customerRef)
	if err != nil {
		return cart.History{}, fmt.Errorf("customer history: %w", err)
	}
	defer rows.Close()
	hist := cart.History{BestPrices: map[uuid.UUID]decimal.Decimal{}}
	for rows.Next() {
		var productID uuid.UUID
		var price decimal.Decimal
		if err := rows.Scan(&productID, &price); err != nil {
			return cart.History{}, err
		}
		hist.BestPrices[productID] = price
	}
	if err := rows.Err(); err != nil {
		return cart.History{}, err
	}
	hist.Returning = len(hist.BestPrices) > 0
	return hist, nil
}

func (s *Store) cartItems(ctx context.Context, cartID uuid.UUID) ([]cart.Item, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT ci.id, ci.quantity, ci.price_override, ci.override_approved,
		       p.id, p.name, p.catalog_price, p.units_per_package
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.created_at, ci.id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()
	items := []cart.Item{}
	for rows.Next() {
		var it cart.Item
		var override decimal.NullDecimal
		if err := rows.Scan(&it.ID, &it.Quantity, &override, &it.OverrideApproved,
			&it.Product.ID, &it.Product.Name, &it.Product.CatalogPrice, &it.Product.UnitsPerPackage); err != nil {
			return nil, err
		}
		if override.Valid {
			price := override.Decimal
			it.PriceOverride = &price
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) execItem(ctx context.Context, cartID uuid.UUID, sql string, args ...any) error {
	tag, err := s.DB.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return s.touch(ctx, cartID)
}

func (s *Store) execCart(ctx context.Context, sql string, args ...any) error {
	tag, err := s.DB.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update cart: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

func (s *Store) touch(ctx context.Context, cartID uuid.UUID) error {
	_, err := s.DB.Exec(ctx, `UPDATE carts SET updated_at = $2 WHERE id = $1`, cartID, s.now())
	return err
}

func scanCart(row pgx.Row) (cart.Cart, error) {
	var c cart.Cart
	var status string
	var rawDiscount []byte
	if err := row.Scan(&c.ID, &c.TenantID, &c.CustomerRef, &status, &c.Version, &rawDiscount,
		&c.LegacyDiscount, &c.CustomerState, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return cart.Cart{}, err
	}
	c.Status = cart.Status(status)
	approved, err := decodeDiscount(rawDiscount)
	if err != nil {
		return cart.Cart{}, err
	}
	c.Discount = approved
	return c, nil
}

func decodeDiscount(raw []byte) (*discount.Approved, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var approved discount.Approved
	if err := json.Unmarshal(raw, &approved); err != nil {
		return nil, fmt.Errorf("decode cart discount: %w", err)
	}
	return &approved, nil
}
