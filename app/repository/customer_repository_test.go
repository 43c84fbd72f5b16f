package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/markverse/replenish/app/models"
)

func TestCustomerRepository_CreateAndLookup(t *testing.T) {
	repo := NewCustomerRepository(setupTestDB(t))

	cu, apiKey, err := models.CreateCustomer("Jane Example", "jane@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, repo.Create(cu))
	require.NotZero(t, cu.ID)

	byEmail, err := repo.GetByEmail("jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, cu.ID, byEmail.ID)

	byKey, err := repo.GetByAPIKeyHash(models.HashAPIKey(apiKey))
	require.NoError(t, err)
	assert.Equal(t, cu.ID, byKey.ID)

	_, err = repo.GetByAPIKeyHash(models.HashAPIKey("unknown-key"))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCustomerRepository_SoftDelete(t *testing.T) {
	repo := NewCustomerRepository(setupTestDB(t))

	cu, _, err := models.CreateCustomer("Jane Example", "jane@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, repo.Create(cu))

	require.NoError(t, repo.Delete(cu.ID))

	_, err = repo.GetByID(cu.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
