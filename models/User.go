package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MFAType string

const (
	MFA_TYPE_TOTP   MFAType = "totp"
	MFA_TYPE_EMAIL  MFAType = "email"
	MFA_TYPE_BACKUP MFAType = "backup"
)

type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Name         string `gorm:"size:64;not null"`
	Email        string `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`

	Wallet    float64         `gorm:"type:decimal(12,2);not null;default:0"`
	Inventory []InventoryItem `gorm:"foreignKey:UserID"`

	LoginAttempts     int  `gorm:"not null;default:0"`
	IsLocked          bool `gorm:"not null;default:false"`
	LockUntil         *time.Time
	LockNotifiedUntil *time.Time
	LastLoginAttempt  *time.Time
	LastLogin         *time.Time

	MFAEnabled          bool         `gorm:"column:mfa_enabled;not null;default:false"`
	MFAType             MFAType      `gorm:"column:mfa_type;size:16"`
	MFASecret           *string      `gorm:"column:mfa_secret"`
	MFAPendingType      MFAType      `gorm:"column:mfa_pending_type;size:16"`
	MFAPendingSecret    *string      `gorm:"column:mfa_pending_secret"`
	EmailMFACode        *string      `gorm:"column:email_mfa_code;size:64"`
	EmailMFACodeExpires *time.Time   `gorm:"column:email_mfa_code_expires"`
	BackupCodes         []BackupCode `gorm:"foreignKey:UserID"`

	LastPasswordChange *time.Time
	PasswordHistory    []PasswordHistory `gorm:"foreignKey:UserID"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// IsAccountLocked reports whether the lock is still in force at now.
func (u *User) IsAccountLocked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

type PasswordHistory struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"size:36;index;not null"`
	Hash      string `gorm:"not null"`
	ChangedAt time.Time
}

type BackupCode struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"size:36;index;not null"`
	CodeHash  string `gorm:"not null"`
	CreatedAt time.Time
}

type InventoryItem struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UserID    string    `gorm:"size:36;uniqueIndex:idx_inventory_user_item;not null" json:"-"`
	ItemID    string    `gorm:"size:36;uniqueIndex:idx_inventory_user_item;not null" json:"id"`
	Title     string    `json:"title"`
	PricePaid float64   `gorm:"type:decimal(12,2)" json:"pricePaid"`
	WonAt     time.Time `json:"wonAt"`
}

// RequestMeta describes where a request came from. It is attached to every
// audit entry written on behalf of the request.
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
	Location  *Location
}
