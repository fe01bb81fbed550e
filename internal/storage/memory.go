package storage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orderease/backend/internal/models"
)

// MemoryStore holds all data in memory, used for tests and local development
type MemoryStore struct {
	dishes map[uint]*models.Dish
	orders map[string]*models.Order
	drafts map[string]*models.WhatsAppOrder

	// Mutexes for thread safety
	dishMu  sync.RWMutex
	orderMu sync.RWMutex
	draftMu sync.RWMutex

	dishCounter uint

	// Overridable clock for display-id tests
	now func() time.Time
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		dishes: make(map[uint]*models.Dish),
		orders: make(map[string]*models.Order),
		drafts: make(map[string]*models.WhatsAppOrder),
		now:    time.Now,
	}
}

// Reads hand out copies and writes store copies, so no two callers ever
// hold the same mutable object. The database store gets the equivalent
// isolation from gorm scanning into fresh structs.

func cloneDish(d *models.Dish) *models.Dish {
	cp := *d
	return &cp
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp
}

func cloneDraft(d *models.WhatsAppOrder) *models.WhatsAppOrder {
	cp := *d
	cp.Items = append([]models.OrderItem(nil), d.Items...)
	return &cp
}

// Dish operations

func (m *MemoryStore) CreateDish(dish *models.Dish) (*models.Dish, error) {
	m.dishMu.Lock()
	defer m.dishMu.Unlock()

	for _, existing := range m.dishes {
		if strings.EqualFold(existing.Name, dish.Name) {
			return nil, fmt.Errorf("dish %q already exists", dish.Name)
		}
	}

	m.dishCounter++
	dish.ID = m.dishCounter
	dish.CreatedAt = m.now()
	dish.UpdatedAt = dish.CreatedAt

	m.dishes[dish.ID] = cloneDish(dish)
	return dish, nil
}

func (m *MemoryStore) GetDish(id uint) (*models.Dish, error) {
	m.dishMu.RLock()
	defer m.dishMu.RUnlock()

	dish, exists := m.dishes[id]
	if !exists {
		return nil, fmt.Errorf("dish not found")
	}
	return cloneDish(dish), nil
}

func (m *MemoryStore) GetAllDishes() ([]*models.Dish, error) {
	m.dishMu.RLock()
	defer m.dishMu.RUnlock()

	var dishes []*models.Dish
	for _, dish := range m.dishes {
		dishes = append(dishes, cloneDish(dish))
	}
	sortDishesByName(dishes)
	return dishes, nil
}

func (m *MemoryStore) GetAvailableDishes() ([]*models.Dish, error) {
	m.dishMu.RLock()
	defer m.dishMu.RUnlock()

	var dishes []*models.Dish
	for _, dish := range m.dishes {
		if dish.Available {
			dishes = append(dishes, cloneDish(dish))
		}
	}
	sortDishesByName(dishes)
	return dishes, nil
}

func (m *MemoryStore) UpdateDish(dish *models.Dish) error {
	m.dishMu.Lock()
	defer m.dishMu.Unlock()

	if _, exists := m.dishes[dish.ID]; !exists {
		return fmt.Errorf("dish not found")
	}
	dish.UpdatedAt = m.now()
	m.dishes[dish.ID] = cloneDish(dish)
	return nil
}

func (m *MemoryStore) DeleteDish(id uint) error {
	m.dishMu.Lock()
	defer m.dishMu.Unlock()

	if _, exists := m.dishes[id]; !exists {
		return fmt.Errorf("dish not found")
	}
	delete(m.dishes, id)
	return nil
}

// sortDishesByName keeps catalog order deterministic; the parser documents
// first-match-by-catalog-order as its tie-break.
func sortDishesByName(dishes []*models.Dish) {
	sort.Slice(dishes, func(i, j int) bool {
		return strings.ToLower(dishes[i].Name) < strings.ToLower(dishes[j].Name)
	})
}

// Order operations

func (m *MemoryStore) CreateOrder(order *models.Order) (*models.Order, error) {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()

	now := m.now()
	prefix := DisplayIDPrefix(now)

	// Find the highest suffix for today's prefix
	nextNumber := 1
	for _, existing := range m.orders {
		if !strings.HasPrefix(existing.DisplayOrderID, prefix+"-") {
			continue
		}
		suffix := strings.TrimPrefix(existing.DisplayOrderID, prefix+"-")
		if n, err := strconv.Atoi(suffix); err == nil && n >= nextNumber {
			nextNumber = n + 1
		}
	}

	order.ID = uuid.NewString()
	order.DisplayOrderID = FormatDisplayID(prefix, nextNumber)
	if order.Status == "" {
		order.Status = models.OrderStatusQueued
	}
	order.CreatedAt = now
	order.UpdatedAt = now

	m.orders[order.ID] = cloneOrder(order)
	return order, nil
}

func (m *MemoryStore) GetOrder(id string) (*models.Order, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	order, exists := m.orders[id]
	if !exists {
		return nil, fmt.Errorf("order not found")
	}
	return cloneOrder(order), nil
}

func (m *MemoryStore) GetOrderByDisplayID(displayID string) (*models.Order, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	for _, order := range m.orders {
		if order.DisplayOrderID == displayID {
			return cloneOrder(order), nil
		}
	}
	return nil, fmt.Errorf("order not found")
}

func (m *MemoryStore) GetAllOrders() ([]*models.Order, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	var orders []*models.Order
	for _, order := range m.orders {
		orders = append(orders, cloneOrder(order))
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (m *MemoryStore) GetOrdersByStatus(status string) ([]*models.Order, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	var orders []*models.Order
	for _, order := range m.orders {
		if order.Status == status {
			orders = append(orders, cloneOrder(order))
		}
	}
	return orders, nil
}

func (m *MemoryStore) UpdateOrder(order *models.Order) error {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()

	if _, exists := m.orders[order.ID]; !exists {
		return fmt.Errorf("order not found")
	}
	order.UpdatedAt = m.now()
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *MemoryStore) DeleteOrder(id string) error {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()

	if _, exists := m.orders[id]; !exists {
		return fmt.Errorf("order not found")
	}
	delete(m.orders, id)
	return nil
}

// WhatsApp draft order operations

func (m *MemoryStore) CreateWhatsAppOrder(draft *models.WhatsAppOrder) (*models.WhatsAppOrder, error) {
	m.draftMu.Lock()
	defer m.draftMu.Unlock()

	now := m.now()

	// At most one non-terminal draft per phone number: the new draft
	// supersedes any existing one.
	for _, existing := range m.drafts {
		if existing.PhoneNumber == draft.PhoneNumber && !existing.IsTerminal() {
			existing.Status = models.DraftStatusCancelled
			existing.UpdatedAt = now
		}
	}

	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	if draft.Status == "" {
		draft.Status = models.DraftStatusCollectingItems
	}
	draft.Recalculate()
	draft.CreatedAt = now
	draft.UpdatedAt = now

	m.drafts[draft.ID] = cloneDraft(draft)
	return draft, nil
}

func (m *MemoryStore) GetWhatsAppOrder(id string) (*models.WhatsAppOrder, error) {
	m.draftMu.RLock()
	defer m.draftMu.RUnlock()

	draft, exists := m.drafts[id]
	if !exists {
		return nil, fmt.Errorf("whatsapp order not found")
	}
	return cloneDraft(draft), nil
}

func (m *MemoryStore) GetWhatsAppOrderByPaymentID(paymentID string) (*models.WhatsAppOrder, error) {
	m.draftMu.RLock()
	defer m.draftMu.RUnlock()

	for _, draft := range m.drafts {
		if draft.PaymentID != "" && draft.PaymentID == paymentID {
			return cloneDraft(draft), nil
		}
	}
	return nil, fmt.Errorf("whatsapp order not found")
}

func (m *MemoryStore) GetWhatsAppOrderByPaymentLinkID(linkID string) (*models.WhatsAppOrder, error) {
	m.draftMu.RLock()
	defer m.draftMu.RUnlock()

	for _, draft := range m.drafts {
		if draft.PaymentLinkID != "" && draft.PaymentLinkID == linkID {
			return cloneDraft(draft), nil
		}
	}
	return nil, fmt.Errorf("whatsapp order not found")
}

func (m *MemoryStore) GetPendingWhatsAppOrder(phone string) (*models.WhatsAppOrder, error) {
	m.draftMu.RLock()
	defer m.draftMu.RUnlock()

	var latest *models.WhatsAppOrder
	for _, draft := range m.drafts {
		if draft.PhoneNumber != phone || draft.IsTerminal() {
			continue
		}
		if latest == nil || draft.CreatedAt.After(latest.CreatedAt) {
			latest = draft
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("no pending whatsapp order")
	}
	return cloneDraft(latest), nil
}

func (m *MemoryStore) GetLatestPendingPayment(phone string) (*models.WhatsAppOrder, error) {
	m.draftMu.RLock()
	defer m.draftMu.RUnlock()

	var latest *models.WhatsAppOrder
	for _, draft := range m.drafts {
		if draft.Status != models.DraftStatusPendingPayment {
			continue
		}
		if phone != "" && draft.PhoneNumber != phone {
			continue
		}
		if latest == nil || draft.CreatedAt.After(latest.CreatedAt) {
			latest = draft
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("no pending payment order")
	}
	return cloneDraft(latest), nil
}

func (m *MemoryStore) GetWhatsAppOrdersByStatus(status string) ([]*models.WhatsAppOrder, error) {
	m.draftMu.RLock()
	defer m.draftMu.RUnlock()

	var drafts []*models.WhatsAppOrder
	for _, draft := range m.drafts {
		if draft.Status == status {
			drafts = append(drafts, cloneDraft(draft))
		}
	}
	return drafts, nil
}

func (m *MemoryStore) UpdateWhatsAppOrder(draft *models.WhatsAppOrder) error {
	m.draftMu.Lock()
	defer m.draftMu.Unlock()

	if _, exists := m.drafts[draft.ID]; !exists {
		return fmt.Errorf("whatsapp order not found")
	}
	draft.Recalculate()
	draft.UpdatedAt = m.now()
	m.drafts[draft.ID] = cloneDraft(draft)
	return nil
}
