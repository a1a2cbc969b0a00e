package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"keymint.app/commerce/models"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to prepare migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

const contractColumns = `id, order_id, item_id, item_number, user_id, product_id,
	name, information, contract_key, license_keys_quantity,
	can_get_info, can_generate, can_destroy, can_destroy_all,
	status, created_at, updated_at`

func (s *SQLiteStore) SaveContract(ctx context.Context, contract *models.Contract) error {
	// INSERT OR IGNORE plus the unique index on (order_id, item_id,
	// item_number) makes duplicate provisioning a no-op even when two
	// confirmations race past the existence check.
	query := `INSERT OR IGNORE INTO contracts (` + contractColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		contract.ID,
		contract.OrderID,
		contract.ItemID,
		contract.ItemNumber,
		contract.UserID,
		contract.ProductID,
		contract.Name,
		contract.Information,
		contract.ContractKey,
		contract.LicenseKeysQuantity,
		contract.CanGetInfo,
		contract.CanGenerate,
		contract.CanDestroy,
		contract.CanDestroyAll,
		contract.Status,
		contract.CreatedAt,
		contract.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save contract: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ContractExists(ctx context.Context, orderID, itemID int64, itemNumber int) (bool, error) {
	query := `SELECT COUNT(*) FROM contracts WHERE order_id = ? AND item_id = ? AND item_number = ?`

	var count int
	err := s.db.QueryRowContext(ctx, query, orderID, itemID, itemNumber).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check contract existence: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) ContractsByOrder(ctx context.Context, orderID int64) ([]*models.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts
		WHERE order_id = ? ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	return scanContracts(rows)
}

func (s *SQLiteStore) ContractsByUser(ctx context.Context, userID int64, offset, limit int) ([]*models.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts
		WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	return scanContracts(rows)
}

func (s *SQLiteStore) CountContractsByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contracts WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count contracts: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) SearchContracts(ctx context.Context, query string, offset, limit int) ([]*models.Contract, error) {
	sqlQuery := `SELECT ` + contractColumns + ` FROM contracts`
	args := []interface{}{}
	if query != "" {
		sqlQuery += ` WHERE name LIKE ? OR information LIKE ? OR contract_key LIKE ?`
		pattern := likePattern(query)
		args = append(args, pattern, pattern, pattern)
	}
	sqlQuery += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search contracts: %w", err)
	}
	return scanContracts(rows)
}

func (s *SQLiteStore) CountContracts(ctx context.Context, query string) (int, error) {
	sqlQuery := `SELECT COUNT(*) FROM contracts`
	args := []interface{}{}
	if query != "" {
		sqlQuery += ` WHERE name LIKE ? OR information LIKE ? OR contract_key LIKE ?`
		pattern := likePattern(query)
		args = append(args, pattern, pattern, pattern)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count contracts: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	query := `SELECT id, user_id, status, created_at FROM orders WHERE id = ?`

	var order models.Order
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.UserID,
		&order.Status,
		&order.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, variation_id, quantity FROM order_items WHERE order_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.LineItem
		err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.VariationID, &item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return &order, nil
}

func (s *SQLiteStore) SaveOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO orders (id, user_id, status, created_at) VALUES (?, ?, ?, ?)`,
		order.ID, order.UserID, order.Status, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ?`, order.ID)
	if err != nil {
		return fmt.Errorf("failed to clear order items: %w", err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, product_id, variation_id, quantity) VALUES (?, ?, ?, ?, ?)`,
			item.ID, order.ID, item.ProductID, item.VariationID, item.Quantity)
		if err != nil {
			return fmt.Errorf("failed to save order item: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) SetOrderStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LicenseConfigFor(ctx context.Context, productID, variationID int64) (*models.LicenseConfig, error) {
	query := `SELECT product_id, variation_id, external_product_id, license_quantity
		FROM license_configs WHERE product_id = ? AND variation_id = ?`

	var config models.LicenseConfig
	err := s.db.QueryRowContext(ctx, query, productID, variationID).Scan(
		&config.ProductID,
		&config.VariationID,
		&config.ExternalProductID,
		&config.LicenseQuantity,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get license config: %w", err)
	}
	return &config, nil
}

func (s *SQLiteStore) SaveLicenseConfig(ctx context.Context, config *models.LicenseConfig) error {
	query := `INSERT OR REPLACE INTO license_configs
		(product_id, variation_id, external_product_id, license_quantity) VALUES (?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		config.ProductID, config.VariationID, config.ExternalProductID, config.LicenseQuantity)
	if err != nil {
		return fmt.Errorf("failed to save license config: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.scanUser(ctx, `SELECT id, display_name, email, api_token, is_admin, created_at FROM users WHERE id = ?`, id)
}

func (s *SQLiteStore) FindUserByToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	return s.scanUser(ctx, `SELECT id, display_name, email, api_token, is_admin, created_at FROM users WHERE api_token = ?`, token)
}

func (s *SQLiteStore) scanUser(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	var token sql.NullString
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.DisplayName,
		&user.Email,
		&token,
		&user.IsAdmin,
		&user.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.APIToken = token.String
	return &user, nil
}

func (s *SQLiteStore) SearchUsers(ctx context.Context, query string, limit int) ([]*models.User, error) {
	pattern := likePattern(query)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name, email, api_token, is_admin, created_at FROM users
		WHERE display_name LIKE ? OR email LIKE ? ORDER BY id LIMIT ?`,
		pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var user models.User
		var token sql.NullString
		err := rows.Scan(&user.ID, &user.DisplayName, &user.Email, &token, &user.IsAdmin, &user.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.APIToken = token.String
		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func (s *SQLiteStore) SaveUser(ctx context.Context, user *models.User) error {
	query := `INSERT OR REPLACE INTO users (id, display_name, email, api_token, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.DisplayName, user.Email, user.APIToken, user.IsAdmin, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanContracts(rows *sql.Rows) ([]*models.Contract, error) {
	defer rows.Close()

	var contracts []*models.Contract
	for rows.Next() {
		var contract models.Contract
		err := rows.Scan(
			&contract.ID,
			&contract.OrderID,
			&contract.ItemID,
			&contract.ItemNumber,
			&contract.UserID,
			&contract.ProductID,
			&contract.Name,
			&contract.Information,
			&contract.ContractKey,
			&contract.LicenseKeysQuantity,
			&contract.CanGetInfo,
			&contract.CanGenerate,
			&contract.CanDestroy,
			&contract.CanDestroyAll,
			&contract.Status,
			&contract.CreatedAt,
			&contract.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		contracts = append(contracts, &contract)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contracts: %w", err)
	}
	return contracts, nil
}

func likePattern(query string) string {
	return "%" + query + "%"
}
