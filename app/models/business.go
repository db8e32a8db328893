package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	BusinessStatusActive   = "active"
	BusinessStatusInactive = "inactive"
	BusinessStatusDisabled = "disabled"
)

// Business is the tenant that sells appointment slots. The Google token pair
// is stored here after the owner connects their calendar; it is handed to the
// meetings package per operation and never cached anywhere else.
type Business struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	Name               string     `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Email              string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"email" validate:"required,email"`
	Phone              string     `gorm:"type:varchar(32)" json:"phone"`
	Status             string     `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	GoogleAccountID    string     `gorm:"type:varchar(191);index" json:"google_account_id"`
	GoogleAccessToken  string     `gorm:"type:text" json:"-"`
	GoogleRefreshToken string     `gorm:"type:text" json:"-"`
	GoogleTokenExpiry  *time.Time `gorm:"type:timestamp;default:null" json:"-"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b *Business) Validate() error {
	v := validator.New()

	return v.Struct(b)
}

// HasGoogleCredentials reports whether the business connected a Google
// account we can mint calendar clients from.
func (b *Business) HasGoogleCredentials() bool {
	return strings.TrimSpace(b.GoogleRefreshToken) != "" || strings.TrimSpace(b.GoogleAccessToken) != ""
}
