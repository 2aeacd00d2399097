package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-checkout/internal/discount"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/shipping"
)

const orderColumns = `id, tenant_id, customer_ref, cart_id, cart_version, number, status, subtotal,
	discount_source, discount_percent, discount_amount, discounted_subtotal, shipping_charge,
	shipping_tier, tax_rate, tax_amount, cgst, sgst, igst, grand_total_raw, grand_total,
	rounding_adjustment, created_at`

// CreateOrder writes the order header and its items in one transaction. A
// second order for the same cart generation fails with order.ErrDuplicate.
func (s *Store) CreateOrder(ctx context.Context, o order.Order) error {
	if err := requireTenant(o.TenantID); err != nil {
		return err
	}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
			o.ID, o.TenantID, o.CustomerRef, o.CartID, o.CartVersion, o.Number, string(o.Status), o.Subtotal,
			string(o.DiscountSource), o.DiscountPercent, o.DiscountAmount, o.DiscountedSubtotal, o.ShippingCharge,
			string(o.ShippingTier), o.TaxRate, o.TaxAmount, o.CGST, o.SGST, o.IGST, o.GrandTotalRaw, o.GrandTotal,
			o.RoundingAdjustment, o.CreatedAt)
		if err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for i, it := range o.Items {
			batch.Queue(`INSERT INTO order_items
				(order_id, position, product_id, name, quantity, original_unit_price, paid_unit_price, line_total, price_source)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				o.ID, i, it.ProductID, it.Name, it.Quantity, it.OriginalUnitPrice, it.PaidUnitPrice, it.LineTotal, string(it.PriceSource))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if isUniqueViolation(err) {
		return order.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// LatestOrder returns the newest non-cancelled order of the customer.
func (s *Store) LatestOrder(ctx context.Context, tenantID uuid.UUID, customerRef string) (order.Order, error) {
	if err := requireTenant(tenantID); err != nil {
		return order.Order{}, err
	}
	row := s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE tenant_id = $1 AND customer_ref = $2 AND status <> 'CANCELLED'
		ORDER BY created_at DESC LIMIT 1`, tenantID, customerRef)
	o, err := scanOrder(row)
	if err != nil {
		return order.Order{}, mapNoRows(err, order.ErrNotFound)
	}
	return o, nil
}

// GetOrder returns an order with its items.
func (s *Store) GetOrder(ctx context.Context, tenantID, orderID uuid.UUID) (order.Order, error) {
	if err := requireTenant(tenantID); err != nil {
		return order.Order{}, err
	}
	row := s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE tenant_id = $1 AND id = $2`, tenantID, orderID)
	o, err := scanOrder(row)
	if err != nil {
		return order.Order{}, mapNoRows(err, order.ErrNotFound)
	}
	if o.Items, err = s.orderItems(ctx, o.ID); err != nil {
		return order.Order{}, err
	}
	return o, nil
}

// ListOrders pages through a tenant's orders, optionally for one customer.
// Items are not loaded.
func (s *Store) ListOrders(ctx context.Context, tenantID uuid.UUID, customerRef string, limit, offset int) ([]order.Order, int, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.DB.QueryRow(ctx, `SELECT count(*) FROM orders
		WHERE tenant_id = $1 AND ($2 = '' OR customer_ref = $2)`, tenantID, customerRef).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE tenant_id = $1 AND ($2 = '' OR customer_ref = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`, tenantID, customerRef, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	orders := []order.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

// CancelOrder moves a placed order to CANCELLED.
func (s *Store) CancelOrder(ctx context.Context, tenantID, orderID uuid.UUID) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	tag, err := s.DB.Exec(ctx, `UPDATE orders SET status = 'CANCELLED'
		WHERE tenant_id = $1 AND id = $2 AND status = 'PLACED'`, tenantID, orderID)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrInvalidState
	}
	return nil
}

func (s *Store) orderItems(ctx context.Context, orderID uuid.UUID) ([]order.Item, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT product_id, name, quantity, original_unit_price, paid_unit_price, line_total, price_source
		FROM order_items WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()
	items := []order.Item{}
	for rows.Next() {
		var it order.Item
		var source string
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Quantity, &it.OriginalUnitPrice,
			&it.PaidUnitPrice, &it.LineTotal, &source); err != nil {
			return nil, err
		}
		it.PriceSource = pricing.Source(source)
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row) (order.Order, error) {
	var o order.Order
	var status, source, tier string
	err := row.Scan(&o.ID, &o.TenantID, &o.CustomerRef, &o.CartID, &o.CartVersion, &o.Number, &status,
		&o.Subtotal, &source, &o.DiscountPercent, &o.DiscountAmount, &o.DiscountedSubtotal,
		&o.ShippingCharge, &tier, &o.TaxRate, &o.TaxAmount, &o.CGST, &o.SGST, &o.IGST,
		&o.GrandTotalRaw, &o.GrandTotal, &o.RoundingAdjustment, &o.CreatedAt)
	if err != nil {
		return order.Order{}, err
	}
	o.Status = order.Status(status)
	o.DiscountSource = discount.Source(source)
	o.ShippingTier = shipping.Tier(tier)
	o.Items = []order.Item{}
	return o, nil
}
