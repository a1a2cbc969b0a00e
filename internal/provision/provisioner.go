// Package provision turns one purchased unit into one persisted contract,
// calling the remote licensing service with bounded retries.
package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"go.uber.org/atomic"

	"keymint.app/commerce/internal/licensing"
	"keymint.app/commerce/internal/logger"
	"keymint.app/commerce/models"
)

type Options struct {
	// MaxAttempts caps the total round trips per unit, first call included.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// ReuseKeyOnRetry keeps the same contract key across retries instead of
	// minting a fresh one. The default (false) mints per attempt so a
	// key-collision retry cannot hit the same collision twice.
	ReuseKeyOnRetry bool
	// ReportErrors forwards terminal failures to Sentry.
	ReportErrors bool
}

// Stats are cumulative counters since process start.
type Stats struct {
	Provisioned int64 `json:"provisioned"`
	Skipped     int64 `json:"skipped"`
	Retries     int64 `json:"retries"`
	Failures    int64 `json:"failures"`
}

type Provisioner struct {
	store  storage
	client *licensing.Client
	opts   Options

	provisioned atomic.Int64
	skipped     atomic.Int64
	retries     atomic.Int64
	failures    atomic.Int64
}

// storage is the slice of the contract store the provisioner needs.
type storage interface {
	SaveContract(ctx context.Context, contract *models.Contract) error
	ContractExists(ctx context.Context, orderID, itemID int64, itemNumber int) (bool, error)
}

func New(store storage, client *licensing.Client, opts Options) *Provisioner {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 15
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 100 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 2 * time.Second
	}
	return &Provisioner{
		store:  store,
		client: client,
		opts:   opts,
	}
}

// Provision creates and persists the contract for one unit of one line
// item. It is idempotent per (order, item, unit): an existing contract
// short-circuits before any remote call. The returned contract is nil when
// provisioning was skipped.
func (p *Provisioner) Provision(ctx context.Context, order *models.Order, itemID int64, itemNumber int, externalProductID string, licenseQuantity int) (*models.Contract, error) {
	exists, err := p.store.ContractExists(ctx, order.ID, itemID, itemNumber)
	if err != nil {
		return nil, fmt.Errorf("provision: existence check failed: %w", err)
	}
	if exists {
		p.skipped.Inc()
		logger.Debug("contract already provisioned, skipping", map[string]interface{}{
			"order_id":    order.ID,
			"item_id":     itemID,
			"item_number": itemNumber,
		})
		return nil, nil
	}

	req := &licensing.CreateContractRequest{
		ProductID:           externalProductID,
		LicenseKeysQuantity: licenseQuantity,
		ContractKey:         uuid.NewString(),
		ContractName:        fmt.Sprintf("Order #%d", order.ID),
		ContractInformation: fmt.Sprintf("Order #%d", order.ID),
		Status:              models.StatusActive,
		CanGetInfo:          "1",
		CanGenerate:         "1",
		CanDestroy:          "1",
		CanDestroyAll:       "0",
	}

	payload, err := p.callWithRetry(ctx, req, order.ID, itemID, itemNumber)
	if err != nil {
		p.failures.Inc()
		p.report(err)
		return nil, err
	}

	now := time.Now()
	contract := &models.Contract{
		ID:                  uuid.NewString(),
		OrderID:             order.ID,
		ItemID:              itemID,
		ItemNumber:          itemNumber,
		UserID:              order.UserID,
		ProductID:           payload.ProductID,
		Name:                payload.Name,
		Information:         payload.Information,
		ContractKey:         payload.ContractKey,
		LicenseKeysQuantity: payload.LicenseKeysQuantity,
		CanGetInfo:          bool(payload.CanGetInfo),
		CanGenerate:         bool(payload.CanGenerate),
		CanDestroy:          bool(payload.CanDestroy),
		CanDestroyAll:       bool(payload.CanDestroyAll),
		Status:              payload.Status,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := p.store.SaveContract(ctx, contract); err != nil {
		p.failures.Inc()
		p.report(err)
		return nil, fmt.Errorf("provision: failed to persist contract: %w", err)
	}

	p.provisioned.Inc()
	logger.Info("contract provisioned", map[string]interface{}{
		"order_id":     order.ID,
		"item_id":      itemID,
		"item_number":  itemNumber,
		"contract_key": contract.ContractKey,
	})

	return contract, nil
}

func (p *Provisioner) callWithRetry(ctx context.Context, req *licensing.CreateContractRequest, orderID, itemID int64, itemNumber int) (*licensing.ContractPayload, error) {
	var lastErr error
	wait := p.opts.InitialBackoff

	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		payload, err := p.client.CreateContract(ctx, req)
		if err == nil {
			return payload, nil
		}
		lastErr = err

		if !licensing.IsRetryable(err) {
			logger.Error("terminal licensing error, giving up", map[string]interface{}{
				"error":       err.Error(),
				"order_id":    orderID,
				"item_id":     itemID,
				"item_number": itemNumber,
				"attempt":     attempt,
			})
			return nil, err
		}

		if attempt == p.opts.MaxAttempts {
			break
		}

		p.retries.Inc()
		logger.Warn("retrying contract creation", map[string]interface{}{
			"error":       err.Error(),
			"order_id":    orderID,
			"item_id":     itemID,
			"item_number": itemNumber,
			"attempt":     attempt,
			"backoff":     wait.String(),
		})

		if !p.opts.ReuseKeyOnRetry {
			req.ContractKey = uuid.NewString()
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("provision: aborted while retrying: %w", ctx.Err())
		case <-time.After(wait):
		}

		wait *= 2
		if wait > p.opts.MaxBackoff {
			wait = p.opts.MaxBackoff
		}
	}

	return nil, fmt.Errorf("provision: gave up after %d attempts: %w", p.opts.MaxAttempts, lastErr)
}

func (p *Provisioner) report(err error) {
	if p.opts.ReportErrors {
		sentry.CaptureException(err)
	}
}

func (p *Provisioner) Stats() Stats {
	return Stats{
		Provisioned: p.provisioned.Load(),
		Skipped:     p.skipped.Load(),
		Retries:     p.retries.Load(),
		Failures:    p.failures.Load(),
	}
}
