package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// swagger:model
type UUIDBase struct {
	ID        string         `gorm:"primaryKey;type:varchar(36)" json:"id" bson:"_id"`
	CreatedAt time.Time      `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time      `json:"updatedAt" bson:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-" bson:"-"`
}

func (b *UUIDBase) BeforeCreate(tx *gorm.DB) (err error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return
}

// Touch 为非 GORM 存储（mongo）补齐主键与时间戳
func (b *UUIDBase) Touch(now time.Time) {
	if b.ID == "" {
		b.ID = GenerateUUID()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

func GenerateUUID() string {
	return uuid.New().String()
}
