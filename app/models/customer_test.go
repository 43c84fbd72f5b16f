package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCustomer(t *testing.T) {
	cu, apiKey, err := CreateCustomer("Jane Example", "jane@example.com", "secret123")
	require.NoError(t, err)
	require.NotEmpty(t, apiKey)

	assert.Equal(t, ROLE_CUSTOMER, cu.Role)
	assert.Equal(t, STATUS_ACTIVE, cu.Status)
	assert.NotEqual(t, "secret123", cu.Password)
	assert.True(t, CheckPasswordHash("secret123", cu.Password))
	assert.False(t, CheckPasswordHash("wrong", cu.Password))

	// Only the hash is stored
	assert.NotEqual(t, apiKey, cu.APIKeyHash)
	assert.Equal(t, HashAPIKey(apiKey), cu.APIKeyHash)
	assert.Len(t, cu.APIKeyHash, 64)
}

func TestCreateCustomerValidation(t *testing.T) {
	tests := []struct {
		name     string
		custName string
		email    string
		password string
	}{
		{"Short name", "Jo", "jo@example.com", "secret123"},
		{"Bad email", "Jane Example", "not-an-email", "secret123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := CreateCustomer(tt.custName, tt.email, tt.password)
			assert.Error(t, err)
		})
	}
}

func TestGenerateAPIKeyUnique(t *testing.T) {
	k1, err := GenerateAPIKey()
	require.NoError(t, err)
	k2, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.Len(t, k1, 64)
	assert.NotEqual(t, k1, k2)
}
