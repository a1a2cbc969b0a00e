package models

import "time"

const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusExpired   = "expired"
)

// Contract mirrors one license-key bundle provisioned on the remote
// licensing service for a single purchased unit. Rows are written once by
// the provisioner and never updated or deleted here.
type Contract struct {
	ID                  string    `json:"id"`
	OrderID             int64     `json:"order_id"`
	ItemID              int64     `json:"item_id"`
	ItemNumber          int       `json:"item_number"`
	UserID              int64     `json:"user_id"`
	ProductID           string    `json:"product_id"`
	Name                string    `json:"name"`
	Information         string    `json:"information"`
	ContractKey         string    `json:"contract_key"`
	LicenseKeysQuantity int       `json:"license_keys_quantity"`
	CanGetInfo          bool      `json:"can_get_info"`
	CanGenerate         bool      `json:"can_generate"`
	CanDestroy          bool      `json:"can_destroy"`
	CanDestroyAll       bool      `json:"can_destroy_all"`
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}
