package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orderease/backend/internal/models"
)

// DatabaseStore implements Store backed by PostgreSQL via GORM
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a new database-backed storage
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Dish operations

func (d *DatabaseStore) CreateDish(dish *models.Dish) (*models.Dish, error) {
	if err := d.db.Create(dish).Error; err != nil {
		return nil, fmt.Errorf("failed to create dish: %v", err)
	}
	return dish, nil
}

func (d *DatabaseStore) GetDish(id uint) (*models.Dish, error) {
	var dish models.Dish
	if err := d.db.First(&dish, id).Error; err != nil {
		return nil, fmt.Errorf("dish not found")
	}
	return &dish, nil
}

func (d *DatabaseStore) GetAllDishes() ([]*models.Dish, error) {
	var dishes []*models.Dish
	if err := d.db.Order("lower(name)").Find(&dishes).Error; err != nil {
		return nil, err
	}
	return dishes, nil
}

func (d *DatabaseStore) GetAvailableDishes() ([]*models.Dish, error) {
	var dishes []*models.Dish
	if err := d.db.Where("available = ?", true).Order("lower(name)").Find(&dishes).Error; err != nil {
		return nil, err
	}
	return dishes, nil
}

func (d *DatabaseStore) UpdateDish(dish *models.Dish) error {
	return d.db.Save(dish).Error
}

func (d *DatabaseStore) DeleteDish(id uint) error {
	result := d.db.Delete(&models.Dish{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("dish not found")
	}
	return nil
}

// Order operations

// CreateOrder assigns today's next display order id and inserts, all inside
// one transaction. The unique index on display_order_id backstops the
// lookup+insert against concurrent writers; on a duplicate we retry with a
// fresh sequence number.
func (d *DatabaseStore) CreateOrder(order *models.Order) (*models.Order, error) {
	const maxAttempts = 3

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := d.db.Transaction(func(tx *gorm.DB) error {
			prefix := DisplayIDPrefix(time.Now())

			var latest models.Order
			nextNumber := 1
			err := tx.Where("display_order_id LIKE ?", prefix+"-%").
				Order("display_order_id DESC").
				First(&latest).Error
			if err == nil {
				suffix := strings.TrimPrefix(latest.DisplayOrderID, prefix+"-")
				var n int
				if _, scanErr := fmt.Sscanf(suffix, "%d", &n); scanErr == nil {
					nextNumber = n + 1
				}
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			order.ID = uuid.NewString()
			order.DisplayOrderID = FormatDisplayID(prefix, nextNumber)
			if order.Status == "" {
				order.Status = models.OrderStatusQueued
			}
			return tx.Create(order).Error
		})
		if err == nil {
			return order, nil
		}
		lastErr = err
		if !isDuplicateKeyError(err) {
			break
		}
	}
	return nil, fmt.Errorf("failed to create order: %v", lastErr)
}

func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// pgx surfaces unique violations as SQLSTATE 23505
	return err != nil && strings.Contains(err.Error(), "23505")
}

func (d *DatabaseStore) GetOrder(id string) (*models.Order, error) {
	var order models.Order
	if err := d.db.Where("id = ?", id).First(&order).Error; err != nil {
		return nil, fmt.Errorf("order not found")
	}
	return &order, nil
}

func (d *DatabaseStore) GetOrderByDisplayID(displayID string) (*models.Order, error) {
	var order models.Order
	if err := d.db.Where("display_order_id = ?", displayID).First(&order).Error; err != nil {
		return nil, fmt.Errorf("order not found")
	}
	return &order, nil
}

func (d *DatabaseStore) GetAllOrders() ([]*models.Order, error) {
	var orders []*models.Order
	if err := d.db.Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (d *DatabaseStore) GetOrdersByStatus(status string) ([]*models.Order, error) {
	var orders []*models.Order
	if err := d.db.Where("status = ?", status).Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (d *DatabaseStore) UpdateOrder(order *models.Order) error {
	return d.db.Save(order).Error
}

func (d *DatabaseStore) DeleteOrder(id string) error {
	result := d.db.Where("id = ?", id).Delete(&models.Order{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("order not found")
	}
	return nil
}

// WhatsApp draft order operations

func (d *DatabaseStore) CreateWhatsAppOrder(draft *models.WhatsAppOrder) (*models.WhatsAppOrder, error) {
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	if draft.Status == "" {
		draft.Status = models.DraftStatusCollectingItems
	}
	draft.Recalculate()

	err := d.db.Transaction(func(tx *gorm.DB) error {
		// Supersede any non-terminal draft for this phone number
		if err := tx.Model(&models.WhatsAppOrder{}).
			Where("phone_number = ? AND status NOT IN ?", draft.PhoneNumber,
				[]string{models.DraftStatusPaid, models.DraftStatusCancelled}).
			Update("status", models.DraftStatusCancelled).Error; err != nil {
			return err
		}
		return tx.Create(draft).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create whatsapp order: %v", err)
	}
	return draft, nil
}

func (d *DatabaseStore) GetWhatsAppOrder(id string) (*models.WhatsAppOrder, error) {
	var draft models.WhatsAppOrder
	if err := d.db.Where("id = ?", id).First(&draft).Error; err != nil {
		return nil, fmt.Errorf("whatsapp order not found")
	}
	return &draft, nil
}

func (d *DatabaseStore) GetWhatsAppOrderByPaymentID(paymentID string) (*models.WhatsAppOrder, error) {
	var draft models.WhatsAppOrder
	if err := d.db.Where("payment_id = ? AND payment_id <> ''", paymentID).First(&draft).Error; err != nil {
		return nil, fmt.Errorf("whatsapp order not found")
	}
	return &draft, nil
}

func (d *DatabaseStore) GetWhatsAppOrderByPaymentLinkID(linkID string) (*models.WhatsAppOrder, error) {
	var draft models.WhatsAppOrder
	if err := d.db.Where("payment_link_id = ? AND payment_link_id <> ''", linkID).First(&draft).Error; err != nil {
		return nil, fmt.Errorf("whatsapp order not found")
	}
	return &draft, nil
}

func (d *DatabaseStore) GetPendingWhatsAppOrder(phone string) (*models.WhatsAppOrder, error) {
	var draft models.WhatsAppOrder
	err := d.db.Where("phone_number = ? AND status NOT IN ?", phone,
		[]string{models.DraftStatusPaid, models.DraftStatusCancelled}).
		Order("created_at DESC").
		First(&draft).Error
	if err != nil {
		return nil, fmt.Errorf("no pending whatsapp order")
	}
	return &draft, nil
}

func (d *DatabaseStore) GetLatestPendingPayment(phone string) (*models.WhatsAppOrder, error) {
	query := d.db.Where("status = ?", models.DraftStatusPendingPayment)
	if phone != "" {
		query = query.Where("phone_number = ?", phone)
	}

	var draft models.WhatsAppOrder
	if err := query.Order("created_at DESC").First(&draft).Error; err != nil {
		return nil, fmt.Errorf("no pending payment order")
	}
	return &draft, nil
}

func (d *DatabaseStore) GetWhatsAppOrdersByStatus(status string) ([]*models.WhatsAppOrder, error) {
	var drafts []*models.WhatsAppOrder
	if err := d.db.Where("status = ?", status).Find(&drafts).Error; err != nil {
		return nil, err
	}
	return drafts, nil
}

func (d *DatabaseStore) UpdateWhatsAppOrder(draft *models.WhatsAppOrder) error {
	draft.Recalculate()
	return d.db.Save(draft).Error
}
