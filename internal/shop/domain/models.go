package domain

import "time"

// ShopAccount is an installed merchant store. The shop domain is the primary key.
type ShopAccount struct {
	Shop        string    `gorm:"column:id;primaryKey" json:"shop"`
	AccessToken string    `gorm:"not null" json:"-"`
	Scope       string    `gorm:"not null;default:''" json:"scope"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ShopAccount) TableName() string { return "shops" }
