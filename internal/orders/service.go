// Package orders owns the order-confirmation workflow: the one place in
// the system where a completed purchase turns into provisioned contracts.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"keymint.app/commerce/internal/email"
	"keymint.app/commerce/internal/logger"
	"keymint.app/commerce/models"
	"keymint.app/commerce/storage"
)

var ErrOrderNotFound = errors.New("orders: order not found")

type provisioner interface {
	Provision(ctx context.Context, order *models.Order, itemID int64, itemNumber int, externalProductID string, licenseQuantity int) (*models.Contract, error)
}

type Service struct {
	Store       storage.Store
	Provisioner provisioner
	// Notify controls the best-effort purchase email.
	Notify bool
}

func NewService(store storage.Store, p provisioner, notify bool) *Service {
	return &Service{Store: store, Provisioner: p, Notify: notify}
}

// Confirm is the single provisioning trigger: it fires on final order
// confirmation, marks the order completed, and provisions one contract per
// purchased unit of every eligible line item. A unit's failure is logged
// and aggregated; the remaining units still run. Re-running Confirm on the
// same order is safe, every unit is idempotent on its
// (order, item, unit) triple.
func (s *Service) Confirm(ctx context.Context, orderID int64) error {
	order, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("orders: failed to load order %d: %w", orderID, err)
	}
	if order == nil {
		return ErrOrderNotFound
	}

	if order.Status != models.OrderCompleted {
		if err := s.Store.SetOrderStatus(ctx, orderID, models.OrderCompleted); err != nil {
			return fmt.Errorf("orders: failed to complete order %d: %w", orderID, err)
		}
		order.Status = models.OrderCompleted
	}

	logger.Info("order confirmed, provisioning contracts", map[string]interface{}{
		"order_id":   order.ID,
		"user_id":    order.UserID,
		"item_count": len(order.Items),
	})

	var result *multierror.Error
	var created []*models.Contract

	for _, item := range order.Items {
		config, err := s.resolveLicenseConfig(ctx, item)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if config == nil {
			// Not a licensed product.
			continue
		}

		for unit := 1; unit <= item.Quantity; unit++ {
			contract, err := s.Provisioner.Provision(ctx, order, item.ID, unit, config.ExternalProductID, config.LicenseQuantity)
			if err != nil {
				logger.Error("unit provisioning failed", map[string]interface{}{
					"error":       err.Error(),
					"order_id":    order.ID,
					"item_id":     item.ID,
					"item_number": unit,
				})
				result = multierror.Append(result, err)
				continue
			}
			if contract != nil {
				created = append(created, contract)
			}
		}
	}

	if s.Notify && len(created) > 0 {
		s.sendPurchaseEmail(ctx, order, created)
	}

	return result.ErrorOrNil()
}

// resolveLicenseConfig prefers the purchased variation's configuration and
// falls back to the parent product's. Nil means the item is not eligible.
func (s *Service) resolveLicenseConfig(ctx context.Context, item models.LineItem) (*models.LicenseConfig, error) {
	if item.VariationID != 0 {
		config, err := s.Store.LicenseConfigFor(ctx, item.ProductID, item.VariationID)
		if err != nil {
			return nil, fmt.Errorf("orders: failed to load variation config: %w", err)
		}
		if config != nil && eligible(config) {
			return config, nil
		}
	}

	config, err := s.Store.LicenseConfigFor(ctx, item.ProductID, 0)
	if err != nil {
		return nil, fmt.Errorf("orders: failed to load product config: %w", err)
	}
	if config != nil && eligible(config) {
		return config, nil
	}
	return nil, nil
}

func eligible(config *models.LicenseConfig) bool {
	return config.ExternalProductID != "" && config.LicenseQuantity > 0
}

func (s *Service) sendPurchaseEmail(ctx context.Context, order *models.Order, contracts []*models.Contract) {
	user, err := s.Store.GetUser(ctx, order.UserID)
	if err != nil || user == nil || user.Email == "" {
		logger.Warn("skipping purchase email, no recipient", map[string]interface{}{
			"order_id": order.ID,
			"user_id":  order.UserID,
		})
		return
	}

	var keys strings.Builder
	for _, contract := range contracts {
		fmt.Fprintf(&keys, "  %s (%d license keys)\n", contract.ContractKey, contract.LicenseKeysQuantity)
	}

	body := fmt.Sprintf(`Hello %s,

Thank you for your purchase! Your license contracts for order #%d are ready.

CONTRACT KEYS
%s
You can view your contracts any time in your account area.

Best regards,
The Keymint Team`, firstName(user.DisplayName), order.ID, keys.String())

	subject := fmt.Sprintf("Your license keys for order #%d", order.ID)
	if err := email.Send(user.Email, subject, body); err != nil {
		// Contracts are already persisted; mail failure is not fatal.
		logger.Error("failed to send purchase email", map[string]interface{}{
			"error":    err.Error(),
			"order_id": order.ID,
			"email":    user.Email,
		})
	}
}

func firstName(displayName string) string {
	if displayName == "" {
		return "there"
	}
	return strings.Split(displayName, " ")[0]
}
