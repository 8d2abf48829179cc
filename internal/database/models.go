package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SectionDocument 保存某个页面的区块文档，目前只有 slug 为 home 的一行。
type SectionDocument struct {
	gorm.Model
	Slug          string         `gorm:"uniqueIndex;size:64"`
	Content       datatypes.JSON `gorm:"type:jsonb"`
	SchemaVersion int            `gorm:"default:1"`
	Revision      int64          `gorm:"not null;default:0"`
}

// Models 返回需要自动迁移的全部模型。
func Models() []any {
	return []any{&SectionDocument{}}
}
