package repository

import (
	"time"

	"github.com/markverse/replenish/app/models"
	"gorm.io/gorm"
)

// replenishmentRepository implements the ReplenishmentRepository interface
type replenishmentRepository struct {
	db *gorm.DB
}

// NewReplenishmentRepository creates a new replenishment repository instance
func NewReplenishmentRepository(db *gorm.DB) ReplenishmentRepository {
	return &replenishmentRepository{db: db}
}

// Create creates a new replenishment row
func (r *replenishmentRepository) Create(repl *models.Replenishment) error {
	return r.db.Create(repl).Error
}

// GetByID retrieves a replenishment by its ID
func (r *replenishmentRepository) GetByID(id uint) (*models.Replenishment, error) {
	var repl models.Replenishment
	err := r.db.First(&repl, id).Error
	if err != nil {
		return nil, err
	}
	return &repl, nil
}

// GetByIDForCustomer retrieves a replenishment scoped to its owning customer
func (r *replenishmentRepository) GetByIDForCustomer(id, customerID uint) (*models.Replenishment, error) {
	var repl models.Replenishment
	err := r.db.Where("id = ? AND customer_id = ?", id, customerID).First(&repl).Error
	if err != nil {
		return nil, err
	}
	return &repl, nil
}

// GetBySchedulerID retrieves a replenishment by its stable schedule engine id
func (r *replenishmentRepository) GetBySchedulerID(schedulerID string) (*models.Replenishment, error) {
	var repl models.Replenishment
	err := r.db.Where("scheduler_id = ?", schedulerID).First(&repl).Error
	if err != nil {
		return nil, err
	}
	return &repl, nil
}

// UpdateWithVersion applies updates guarded by the optimistic version column.
// A "last_payment_date" update also appends the ReplenishmentPayment audit row
// in the same transaction, so the trail cannot diverge from the field.
func (r *replenishmentRepository) UpdateWithVersion(repl *models.Replenishment, updates map[string]interface{}) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if paid := paymentDateFromUpdates(updates); paid != nil {
			audit := models.ReplenishmentPayment{
				ReplenishmentID: repl.ID,
				PaymentDate:     *paid,
			}
			if err := tx.Create(&audit).Error; err != nil {
				return err
			}
		}

		updates["version"] = gorm.Expr("version + 1")
		res := tx.Model(&models.Replenishment{}).
			Where("id = ? AND version = ?", repl.ID, repl.Version).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleReplenishment
		}
		return nil
	})
}

// Delete hard deletes a replenishment and its payment history
func (r *replenishmentRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("replenishment_id = ?", id).Delete(&models.ReplenishmentPayment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Replenishment{}, id).Error
	})
}

// ListByCustomer retrieves all replenishments of a customer with payment history
func (r *replenishmentRepository) ListByCustomer(customerID uint) ([]models.Replenishment, error) {
	var repls []models.Replenishment
	err := r.db.Preload("Payments").
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&repls).Error
	return repls, err
}

// ListAll retrieves replenishments across all customers with optional filters
func (r *replenishmentRepository) ListAll(filter ReplenishmentFilter) ([]models.Replenishment, error) {
	query := r.db.Preload("Payments").Order("created_at DESC")
	if filter.CustomerID != 0 {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Unit != "" {
		query = query.Where("unit = ?", filter.Unit)
	}
	if filter.Interval != 0 {
		query = query.Where("`interval` = ?", filter.Interval)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var repls []models.Replenishment
	err := query.Find(&repls).Error
	return repls, err
}

// ListPayments retrieves the payment audit trail of one replenishment
func (r *replenishmentRepository) ListPayments(replenishmentID uint) ([]models.ReplenishmentPayment, error) {
	var payments []models.ReplenishmentPayment
	err := r.db.Where("replenishment_id = ?", replenishmentID).
		Order("payment_date ASC").
		Find(&payments).Error
	return payments, err
}

// paymentDateFromUpdates extracts a non-nil payment date from an update map.
func paymentDateFromUpdates(updates map[string]interface{}) *time.Time {
	v, ok := updates["last_payment_date"]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	}
	return nil
}
