package model

import (
	"time"
)

type UserRole string

const (
	Student    UserRole = "student"
	Instructor UserRole = "instructor"
	Admin      UserRole = "admin"
)

func (r UserRole) Valid() bool {
	switch r {
	case Student, Instructor, Admin:
		return true
	}
	return false
}

// CanAuthor 教师与管理员可以创建测验
func (r UserRole) CanAuthor() bool {
	return r == Instructor || r == Admin
}

// User 用户目录条目。UID 为身份提供方签发的稳定标识，ID 为内部主键
// swagger:model User
type User struct {
	UUIDBase     `bson:",inline"`
	UID          string    `gorm:"size:128;uniqueIndex;not null" json:"uid" bson:"uid"`
	Email        string    `gorm:"size:100;index;not null" json:"email" bson:"email"`
	DisplayName  string    `gorm:"size:100;not null" json:"displayName" bson:"display_name"`
	Password     string    `gorm:"size:100" json:"-" bson:"password,omitempty"`
	Role         UserRole  `gorm:"size:20;not null" json:"role" bson:"role"`
	IsActive     bool      `json:"isActive" bson:"is_active"`
	LastActiveAt time.Time `json:"lastActiveAt" bson:"last_active_at"`
}

func (User) TableName() string {
	return "users"
}
