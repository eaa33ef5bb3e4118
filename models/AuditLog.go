package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditAction string

const (
	AUDIT_LOGIN_SUCCESS       AuditAction = "LOGIN_SUCCESS"
	AUDIT_LOGIN_FAILED        AuditAction = "LOGIN_FAILED"
	AUDIT_LOGOUT              AuditAction = "LOGOUT"
	AUDIT_SIGNUP              AuditAction = "SIGNUP"
	AUDIT_PASSWORD_CHANGE     AuditAction = "PASSWORD_CHANGE"
	AUDIT_MFA_ENABLED         AuditAction = "MFA_ENABLED"
	AUDIT_MFA_DISABLED        AuditAction = "MFA_DISABLED"
	AUDIT_BID_PLACED          AuditAction = "BID_PLACED"
	AUDIT_ITEM_CREATED        AuditAction = "ITEM_CREATED"
	AUDIT_AUCTION_CLOSED      AuditAction = "AUCTION_CLOSED"
	AUDIT_ACCOUNT_LOCKED      AuditAction = "ACCOUNT_LOCKED"
	AUDIT_ACCOUNT_UNLOCKED    AuditAction = "ACCOUNT_UNLOCKED"
	AUDIT_SUSPICIOUS_ACTIVITY AuditAction = "SUSPICIOUS_ACTIVITY"
)

type Location struct {
	Country string `gorm:"size:64" json:"country,omitempty"`
	City    string `gorm:"size:128" json:"city,omitempty"`
	Region  string `gorm:"size:128" json:"region,omitempty"`
}

func (l *Location) Known() bool {
	return l != nil && (l.Country != "" || l.City != "" || l.Region != "")
}

// Details holds action specific data and is stored as a JSON column.
type Details map[string]interface{}

func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *Details) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*d = Details{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return errors.New("unsupported type for audit details")
	}
	return json.Unmarshal(raw, d)
}

// AuditLog is append-only: rows are inserted and never updated or deleted.
type AuditLog struct {
	ID        string      `gorm:"primaryKey;size:36" json:"id"`
	UserID    *string     `gorm:"size:36;index:idx_audit_user_time,priority:1" json:"userId"`
	Action    AuditAction `gorm:"size:32;index:idx_audit_action_time,priority:1;not null" json:"action"`
	Details   Details     `gorm:"type:text" json:"details"`
	IPAddress string      `gorm:"size:45;index" json:"ipAddress"`
	UserAgent string      `gorm:"size:512" json:"userAgent"`
	Location  Location    `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	RiskScore int         `gorm:"not null;default:0" json:"riskScore"`
	Timestamp time.Time   `gorm:"index:idx_audit_user_time,priority:2;index:idx_audit_action_time,priority:2;not null" json:"timestamp"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
