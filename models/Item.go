package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ItemStatus string

const (
	ITEM_STATUS_ACTIVE ItemStatus = "active"
	ITEM_STATUS_SOLD   ItemStatus = "sold"
)

type Item struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `gorm:"not null" json:"description"`
	Category    string     `gorm:"size:64;default:General" json:"category"`
	StartPrice  float64    `gorm:"type:decimal(12,2);not null" json:"start_price"`
	CurrentBid  float64    `gorm:"type:decimal(12,2);not null" json:"current_bid"`
	Bids        []Bid      `gorm:"foreignKey:ItemID" json:"bids"`
	CreatedBy   string     `gorm:"size:36;index;not null" json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	EndTime     time.Time  `gorm:"index:idx_items_status_end,priority:2;not null" json:"end_time"`
	Status      ItemStatus `gorm:"size:16;index:idx_items_status_end,priority:1;not null" json:"status"`
	WinnerID    *string    `gorm:"size:36" json:"winnerId,omitempty"`
}

func (i *Item) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

type Bid struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	ItemID    string    `gorm:"size:36;index;not null" json:"-"`
	UserID    string    `gorm:"size:36;not null" json:"userId"`
	Amount    float64   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}
