package models

import "time"

const (
	OrderPending   = "pending"
	OrderCompleted = "completed"
)

type Order struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	Items     []LineItem `json:"items"`
}

// LineItem is one entry in an order. VariationID is zero when the customer
// bought the plain product without selecting a variation.
type LineItem struct {
	ID          int64 `json:"id"`
	OrderID     int64 `json:"order_id"`
	ProductID   int64 `json:"product_id"`
	VariationID int64 `json:"variation_id"`
	Quantity    int   `json:"quantity"`
}

// LicenseConfig attaches licensing details to a product or one of its
// variations (VariationID zero means the parent product). A line item is
// eligible for provisioning only when both fields are set.
type LicenseConfig struct {
	ProductID         int64  `json:"product_id"`
	VariationID       int64  `json:"variation_id"`
	ExternalProductID string `json:"external_product_id"`
	LicenseQuantity   int    `json:"license_quantity"`
}
