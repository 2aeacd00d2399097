package notify

import (
	"fmt"
	"strings"

	"github.com/noah-isme/toko-checkout/internal/order"
)

// ConfirmationText renders the order summary sent after checkout.
func ConfirmationText(o order.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s confirmed.\n", o.Number)
	for _, it := range o.Items {
		fmt.Fprintf(&b, "- %s x%d @ %s = %s\n", it.Name, it.Quantity, it.PaidUnitPrice.StringFixed(2), it.LineTotal.StringFixed(2))
	}
	fmt.Fprintf(&b, "Subtotal: %s\n", o.Subtotal.StringFixed(2))
	if o.DiscountAmount.Sign() > 0 {
		fmt.Fprintf(&b, "Discount: -%s\n", o.DiscountAmount.StringFixed(2))
	}
	fmt.Fprintf(&b, "Shipping: %s\n", o.ShippingCharge.StringFixed(2))
	fmt.Fprintf(&b, "Tax: %s\n", o.TaxAmount.StringFixed(2))
	fmt.Fprintf(&b, "Total: %s", o.GrandTotal.StringFixed(2))
	return b.String()
}

// ShippingPromptText asks for the delivery address of an order.
func ShippingPromptText(o order.Order) string {
	return fmt.Sprintf("Please share the delivery address for order %s: name, phone, street, city, state and postal code.", o.Number)
}
