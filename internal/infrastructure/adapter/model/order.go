package model

import (
	"time"
)

// Order represents the database model for orders
type Order struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Customer  string    `gorm:"size:128;not null"`
	Item      string    `gorm:"size:128;not null"`
	Quantity  int       `gorm:"not null"`
	Status    string    `gorm:"size:32;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName specifies the table name for Order
func (Order) TableName() string {
	return "orders"
}

// Order status values
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusCancelled = "cancelled"
)
