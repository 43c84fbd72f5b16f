package replenisher

import (
	"errors"

	"gorm.io/gorm"

	"github.com/markverse/replenish/app/models"
	"github.com/markverse/replenish/app/repository"
)

// Query is the read-only projection over replenishments and their payment
// history. It never mutates state and never talks to the schedule engine.
type Query struct {
	repos *repository.Repositories
}

// NewQuery creates a query facade
func NewQuery(repos *repository.Repositories) *Query {
	return &Query{repos: repos}
}

// ListForCustomer returns all replenishments of one customer, payment history
// included.
func (q *Query) ListForCustomer(customerID uint) ([]models.Replenishment, error) {
	return q.repos.Replenishment.ListByCustomer(customerID)
}

// GetForCustomer returns one replenishment scoped to its owning customer.
func (q *Query) GetForCustomer(replenishmentID, customerID uint) (*models.Replenishment, error) {
	repl, err := q.repos.Replenishment.GetByIDForCustomer(replenishmentID, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReplenishmentNotFound
		}
		return nil, err
	}

	payments, err := q.repos.Replenishment.ListPayments(repl.ID)
	if err != nil {
		return nil, err
	}
	repl.Payments = payments
	return repl, nil
}

// ListAll returns replenishments across the platform with optional filters.
func (q *Query) ListAll(filter repository.ReplenishmentFilter) ([]models.Replenishment, error) {
	return q.repos.Replenishment.ListAll(filter)
}
