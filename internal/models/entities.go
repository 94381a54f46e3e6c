package models

import "time"

// Product is a catalog item.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	SKU      string `json:"sku,omitempty"`
	Barcode  string `json:"barcode,omitempty"`
	Price    string `json:"price"` // decimal string, e.g. "12.50"
	Category string `json:"category,omitempty"`
	StockQty int    `json:"stock_qty"`
	Active   bool   `json:"active"`
}

// Customer is a registered buyer.
type Customer struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	LoyaltyPoints int    `json:"loyalty_points"`
}

// DiscountKind distinguishes percentage from fixed-amount discounts.
type DiscountKind string

const (
	DiscountPercent DiscountKind = "percent"
	DiscountFixed   DiscountKind = "fixed"
)

// Discount is a price reduction rule.
type Discount struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Kind   DiscountKind `json:"kind"`
	Value  string       `json:"value"` // percent or decimal amount, per Kind
	Active bool         `json:"active"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	UnitPrice string `json:"unit_price"`
}

// Order is a completed or pending sale.
type Order struct {
	ID            string      `json:"id,omitempty"`
	CustomerID    string      `json:"customer_id,omitempty"`
	Items         []OrderItem `json:"items"`
	Total         string      `json:"total"`
	PaymentMethod string      `json:"payment_method"`
	Status        string      `json:"status,omitempty"`
	CreatedAt     time.Time   `json:"created_at,omitempty"`
}

// Settings holds per-store configuration. At most one row exists locally.
type Settings struct {
	ID            string `json:"id,omitempty"`
	StoreName     string `json:"store_name"`
	Currency      string `json:"currency"`
	TaxRate       string `json:"tax_rate"`
	ReceiptFooter string `json:"receipt_footer,omitempty"`
}

// CachedEntity wraps a locally cached record with the timestamps the
// store assigns at cache-write time. The timestamps never leave the
// store layer; callers see only the payload.
type CachedEntity struct {
	Key          string    `json:"key"`
	Payload      []byte    `json:"payload"`
	LastModified time.Time `json:"last_modified"`
	Version      time.Time `json:"version"`
}
