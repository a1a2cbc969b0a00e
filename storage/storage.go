package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"keymint.app/commerce/models"
)

// Store is everything the provisioning workflow and the read endpoints need
// from persistence. SQLiteStore is the real implementation; MemoryStore
// backs tests.
type Store interface {
	// SaveContract inserts one contract. The write is conflict-safe: a
	// second contract for the same (order, item, unit) triple is dropped
	// without error so racing confirmations cannot duplicate rows.
	SaveContract(ctx context.Context, contract *models.Contract) error
	ContractExists(ctx context.Context, orderID, itemID int64, itemNumber int) (bool, error)
	ContractsByOrder(ctx context.Context, orderID int64) ([]*models.Contract, error)
	ContractsByUser(ctx context.Context, userID int64, offset, limit int) ([]*models.Contract, error)
	CountContractsByUser(ctx context.Context, userID int64) (int, error)
	// SearchContracts matches query case-insensitively against name,
	// information and contract key. An empty query matches everything.
	SearchContracts(ctx context.Context, query string, offset, limit int) ([]*models.Contract, error)
	CountContracts(ctx context.Context, query string) (int, error)

	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	SaveOrder(ctx context.Context, order *models.Order) error
	SetOrderStatus(ctx context.Context, id int64, status string) error

	LicenseConfigFor(ctx context.Context, productID, variationID int64) (*models.LicenseConfig, error)
	SaveLicenseConfig(ctx context.Context, config *models.LicenseConfig) error

	GetUser(ctx context.Context, id int64) (*models.User, error)
	FindUserByToken(ctx context.Context, token string) (*models.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error

	Close() error
}

type contractTriple struct {
	orderID    int64
	itemID     int64
	itemNumber int
}

type MemoryStore struct {
	mu        sync.Mutex
	contracts []*models.Contract
	triples   map[contractTriple]bool
	orders    map[int64]*models.Order
	configs   map[[2]int64]*models.LicenseConfig
	users     map[int64]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		triples: make(map[contractTriple]bool),
		orders:  make(map[int64]*models.Order),
		configs: make(map[[2]int64]*models.LicenseConfig),
		users:   make(map[int64]*models.User),
	}
}

func (m *MemoryStore) SaveContract(ctx context.Context, contract *models.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	triple := contractTriple{contract.OrderID, contract.ItemID, contract.ItemNumber}
	if m.triples[triple] {
		// Same semantics as INSERT OR IGNORE against the unique index.
		return nil
	}

	copied := *contract
	m.contracts = append(m.contracts, &copied)
	m.triples[triple] = true
	return nil
}

func (m *MemoryStore) ContractExists(ctx context.Context, orderID, itemID int64, itemNumber int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triples[contractTriple{orderID, itemID, itemNumber}], nil
}

func (m *MemoryStore) ContractsByOrder(ctx context.Context, orderID int64) ([]*models.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found []*models.Contract
	for _, contract := range m.contracts {
		if contract.OrderID == orderID {
			copied := *contract
			found = append(found, &copied)
		}
	}
	sortNewestFirst(found)
	return found, nil
}

func (m *MemoryStore) ContractsByUser(ctx context.Context, userID int64, offset, limit int) ([]*models.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found []*models.Contract
	for _, contract := range m.contracts {
		if contract.UserID == userID {
			copied := *contract
			found = append(found, &copied)
		}
	}
	sortNewestFirst(found)
	return slicePage(found, offset, limit), nil
}

func (m *MemoryStore) CountContractsByUser(ctx context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, contract := range m.contracts {
		if contract.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) SearchContracts(ctx context.Context, query string, offset, limit int) ([]*models.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found []*models.Contract
	for _, contract := range m.contracts {
		if contractMatches(contract, query) {
			copied := *contract
			found = append(found, &copied)
		}
	}
	sortNewestFirst(found)
	return slicePage(found, offset, limit), nil
}

func (m *MemoryStore) CountContracts(ctx context.Context, query string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, contract := range m.contracts {
		if contractMatches(contract, query) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, exists := m.orders[id]
	if !exists {
		return nil, nil
	}
	copied := *order
	copied.Items = append([]models.LineItem(nil), order.Items...)
	return &copied, nil
}

func (m *MemoryStore) SaveOrder(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *order
	copied.Items = append([]models.LineItem(nil), order.Items...)
	m.orders[order.ID] = &copied
	return nil
}

func (m *MemoryStore) SetOrderStatus(ctx context.Context, id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if order, exists := m.orders[id]; exists {
		order.Status = status
	}
	return nil
}

func (m *MemoryStore) LicenseConfigFor(ctx context.Context, productID, variationID int64) (*models.LicenseConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	config, exists := m.configs[[2]int64{productID, variationID}]
	if !exists {
		return nil, nil
	}
	copied := *config
	return &copied, nil
}

func (m *MemoryStore) SaveLicenseConfig(ctx context.Context, config *models.LicenseConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *config
	m.configs[[2]int64{config.ProductID, config.VariationID}] = &copied
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[id]
	if !exists {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (m *MemoryStore) FindUserByToken(ctx context.Context, token string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token == "" {
		return nil, nil
	}
	for _, user := range m.users {
		if user.APIToken == token {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) SearchUsers(ctx context.Context, query string, limit int) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	needle := strings.ToLower(query)
	var found []*models.User
	for _, user := range m.users {
		if strings.Contains(strings.ToLower(user.DisplayName), needle) ||
			strings.Contains(strings.ToLower(user.Email), needle) {
			copied := *user
			found = append(found, &copied)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

func (m *MemoryStore) SaveUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func contractMatches(contract *models.Contract, query string) bool {
	if query == "" {
		return true
	}
	needle := strings.ToLower(query)
	return strings.Contains(strings.ToLower(contract.Name), needle) ||
		strings.Contains(strings.ToLower(contract.Information), needle) ||
		strings.Contains(strings.ToLower(contract.ContractKey), needle)
}

func sortNewestFirst(contracts []*models.Contract) {
	sort.SliceStable(contracts, func(i, j int) bool {
		if contracts[i].CreatedAt.Equal(contracts[j].CreatedAt) {
			return contracts[i].ID > contracts[j].ID
		}
		return contracts[i].CreatedAt.After(contracts[j].CreatedAt)
	})
}

func slicePage(contracts []*models.Contract, offset, limit int) []*models.Contract {
	if offset >= len(contracts) {
		return nil
	}
	contracts = contracts[offset:]
	if limit > 0 && len(contracts) > limit {
		contracts = contracts[:limit]
	}
	return contracts
}
