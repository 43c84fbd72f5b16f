package replenisher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markverse/replenish/app/models"
	"github.com/markverse/replenish/app/repository"
)

func TestQueryListForCustomer(t *testing.T) {
	fx := newWorkerFixture(t)
	query := NewQuery(fx.repos)
	ctx := context.Background()

	repl, err := fx.scheduler.Create(ctx, fx.customer.ID, testOrder(), RecurrenceParams{
		Interval: 1,
		Unit:     models.UnitDay,
	})
	require.NoError(t, err)
	require.NoError(t, fx.worker.HandleOccurrence(ctx, fx.occurrenceFor(t, repl, 0)))

	repls, err := query.ListForCustomer(fx.customer.ID)
	require.NoError(t, err)
	require.Len(t, repls, 1)
	assert.Equal(t, repl.ID, repls[0].ID)
	assert.Len(t, repls[0].Payments, 1)

	// Another customer sees nothing
	repls, err = query.ListForCustomer(fx.customer.ID + 100)
	require.NoError(t, err)
	assert.Empty(t, repls)
}

func TestQueryGetForCustomer(t *testing.T) {
	fx := newWorkerFixture(t)
	query := NewQuery(fx.repos)
	ctx := context.Background()

	repl, err := fx.scheduler.Create(ctx, fx.customer.ID, testOrder(), RecurrenceParams{
		Interval: 1,
		Unit:     models.UnitDay,
	})
	require.NoError(t, err)
	require.NoError(t, fx.worker.HandleOccurrence(ctx, fx.occurrenceFor(t, repl, 0)))

	got, err := query.GetForCustomer(repl.ID, fx.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, repl.ID, got.ID)
	assert.Len(t, got.Payments, 1)

	_, err = query.GetForCustomer(repl.ID, fx.customer.ID+100)
	assert.ErrorIs(t, err, ErrReplenishmentNotFound)

	_, err = query.GetForCustomer(9999, fx.customer.ID)
	assert.ErrorIs(t, err, ErrReplenishmentNotFound)
}

func TestQueryListAllFilters(t *testing.T) {
	fx := newSchedulerFixture(t)
	query := NewQuery(fx.repos)
	ctx := context.Background()

	_, err := fx.scheduler.Create(ctx, fx.customer.ID, testOrder(), RecurrenceParams{
		Interval: 1,
		Unit:     models.UnitDay,
	})
	require.NoError(t, err)

	weekly, err := fx.scheduler.Create(ctx, fx.customer.ID, testOrder(), RecurrenceParams{
		Interval: 2,
		Unit:     models.UnitWeek,
	})
	require.NoError(t, err)

	all, err := query.ListAll(repository.ReplenishmentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	weeklies, err := query.ListAll(repository.ReplenishmentFilter{Unit: models.UnitWeek})
	require.NoError(t, err)
	require.Len(t, weeklies, 1)
	assert.Equal(t, weekly.ID, weeklies[0].ID)

	none, err := query.ListAll(repository.ReplenishmentFilter{Status: models.ReplenishmentFailed})
	require.NoError(t, err)
	assert.Empty(t, none)
}
