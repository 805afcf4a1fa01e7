package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 表示系统中的账号信息。
type User struct {
	gorm.Model
	Name               string   `gorm:"size:128"`
	Email              string   `gorm:"uniqueIndex;size:255"`
	PasswordHash       string   `gorm:"size:255"`
	MustChangePassword bool     `gorm:"default:false"`
	Resumes            []Resume `gorm:"constraint:OnDelete:CASCADE"`
}

// 简历导出状态。
const (
	ExportStatusNone      = ""
	ExportStatusPending   = "pending"
	ExportStatusCompleted = "completed"
	ExportStatusFailed    = "failed"
)

// Resume 表示用户创建的简历。Content 保存 basics、sections 与 sectionOrder，
// Revision 用于乐观并发控制。
type Resume struct {
	gorm.Model
	Title        string         `gorm:"size:255"`
	Content      datatypes.JSON `gorm:"type:jsonb"`
	Revision     int64          `gorm:"not null;default:1"`
	UserID       uint           `gorm:"index"`
	User         User           `gorm:"constraint:OnDelete:CASCADE"`
	PdfObjectKey string         `gorm:"size:512"`
	Status       string         `gorm:"size:32"`
}

// Template 表示用户保存的简历结构模板。
type Template struct {
	gorm.Model
	Name        string         `gorm:"size:255"`
	Description string         `gorm:"size:1024"`
	Structure   datatypes.JSON `gorm:"type:jsonb"`
	UserID      uint           `gorm:"index"`
	User        User           `gorm:"constraint:OnDelete:CASCADE"`
}
