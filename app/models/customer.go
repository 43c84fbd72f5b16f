package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ROLE_CUSTOMER = "customer"
	ROLE_ADMIN    = "admin"

	STATUS_ACTIVE   = "active"
	STATUS_DISABLED = "disabled"
)

type Customer struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email       string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Password    string         `gorm:"type:text" json:"-" validate:"required,min=6"`
	Role        string         `gorm:"type:varchar(50);default:'customer'" json:"role" validate:"oneof=customer admin"`
	Status      string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active disabled"`
	APIKeyHash  string         `gorm:"type:varchar(64);index" json:"-"`
	Country     string         `gorm:"type:varchar(2);default:null" json:"country" validate:"max=2"`
	LastLoginAt *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (cu *Customer) Validate() error {
	v := validator.New()

	return v.Struct(cu)
}

// CreateCustomer builds a validated customer with a hashed password and a fresh
// API key. The plain API key is returned exactly once; only its hash is stored.
func CreateCustomer(name, email, password string) (*Customer, string, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	apiKey, err := GenerateAPIKey()
	if err != nil {
		return nil, "", err
	}

	cu := &Customer{
		Name:       name,
		Email:      email,
		Password:   pw,
		Role:       ROLE_CUSTOMER,
		Status:     STATUS_ACTIVE,
		APIKeyHash: HashAPIKey(apiKey),
	}

	if err := cu.Validate(); err != nil {
		return nil, "", err
	}

	return cu, apiKey, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateAPIKey returns a new random API key (hex, 64 chars).
func GenerateAPIKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// HashAPIKey returns the SHA-256 hex digest stored in place of the key itself.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}
