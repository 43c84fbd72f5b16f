package repository

import (
	"errors"

	"github.com/markverse/replenish/app/models"
	"gorm.io/gorm"
)

// ErrStaleReplenishment is returned when a versioned update matched no row,
// meaning a concurrent writer advanced the row first.
var ErrStaleReplenishment = errors.New("replenishment was modified concurrently")

// CustomerRepository defines the interface for customer-related database operations
type CustomerRepository interface {
	Create(customer *models.Customer) error
	GetByID(id uint) (*models.Customer, error)
	GetByEmail(email string) (*models.Customer, error)
	GetByAPIKeyHash(hash string) (*models.Customer, error)
	Update(customer *models.Customer) error
	Delete(id uint) error
	Count() (int64, error)
}

// ReplenishmentFilter narrows admin listings. Zero values mean "no filter".
type ReplenishmentFilter struct {
	CustomerID uint
	Unit       models.ReplenishmentUnit
	Interval   int
	Status     models.ReplenishmentStatus
}

// ReplenishmentRepository defines the interface for replenishment-related database operations
type ReplenishmentRepository interface {
	Create(r *models.Replenishment) error
	GetByID(id uint) (*models.Replenishment, error)
	GetByIDForCustomer(id, customerID uint) (*models.Replenishment, error)
	GetBySchedulerID(schedulerID string) (*models.Replenishment, error)
	// UpdateWithVersion applies updates only when the row still carries
	// r.Version, bumping the version in the same statement. Setting
	// "last_payment_date" creates the matching ReplenishmentPayment audit row
	// inside the same transaction.
	UpdateWithVersion(r *models.Replenishment, updates map[string]interface{}) error
	Delete(id uint) error
	ListByCustomer(customerID uint) ([]models.Replenishment, error)
	ListAll(filter ReplenishmentFilter) ([]models.Replenishment, error)
	ListPayments(replenishmentID uint) ([]models.ReplenishmentPayment, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Customer      CustomerRepository
	Replenishment ReplenishmentRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Customer:      NewCustomerRepository(db),
		Replenishment: NewReplenishmentRepository(db),
	}
}
