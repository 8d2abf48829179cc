package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"siteCMS/internal/database"
	"siteCMS/internal/sections"
)

// GormStore 把文档保存在 section_documents 表的 jsonb 列中。
type GormStore struct {
	db   *gorm.DB
	slug string
}

// NewGormStore 构造首页文档的 GormStore。
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, slug: HomeSlug}
}

// Load 读取当前文档；还没有保存过时返回空文档与版本 0。
func (s *GormStore) Load(ctx context.Context) (Record, error) {
	var row database.SectionDocument
	err := s.db.WithContext(ctx).Where("slug = ?", s.slug).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return newRecord(nil, 0, row.UpdatedAt)
	case err != nil:
		return Record{}, fmt.Errorf("load section document: %w", err)
	}
	return newRecord(row.Content, row.Revision, row.UpdatedAt)
}

// Save 写入文档并把版本加一。
func (s *GormStore) Save(ctx context.Context, doc sections.Document, expected *int64) (Record, error) {
	raw, err := sections.Marshal(doc)
	if err != nil {
		return Record{}, err
	}

	var saved database.SectionDocument
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row database.SectionDocument
		err := tx.Where("slug = ?", s.slug).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if expected != nil && *expected != 0 {
				return ErrRevisionConflict
			}
			saved = database.SectionDocument{
				Slug:          s.slug,
				Content:       datatypes.JSON(raw),
				SchemaVersion: sections.CurrentVersion,
				Revision:      1,
			}
			created := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "slug"}},
				DoNothing: true,
			}).Create(&saved)
			if created.Error != nil {
				return created.Error
			}
			if created.RowsAffected == 1 {
				return nil
			}
			// 并发的首次保存已经建好了这一行，改走更新分支。
			if expected != nil {
				return ErrRevisionConflict
			}
			err = tx.Where("slug = ?", s.slug).First(&row).Error
		}
		if err != nil {
			return err
		}
		if expected != nil && *expected != row.Revision {
			return ErrRevisionConflict
		}

		query := tx.Model(&database.SectionDocument{}).Where("id = ?", row.ID)
		if expected != nil {
			query = query.Where("revision = ?", *expected)
		}
		result := query.Updates(map[string]any{
			"content":        datatypes.JSON(raw),
			"schema_version": sections.CurrentVersion,
			"revision":       gorm.Expr("revision + 1"),
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRevisionConflict
		}
		return tx.First(&saved, row.ID).Error
	})
	if err != nil {
		if errors.Is(err, ErrRevisionConflict) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("save section document: %w", err)
	}
	return newRecord(saved.Content, saved.Revision, saved.UpdatedAt)
}
