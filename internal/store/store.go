package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"siteCMS/internal/config"
	"siteCMS/internal/sections"
)

// HomeSlug 是首页区块文档的存储键。
const HomeSlug = "home"

// ErrRevisionConflict 表示调用方基于的版本已经被其他保存覆盖。
var ErrRevisionConflict = errors.New("document revision conflict")

// Record 是一次读取或保存后的文档状态。
// Raw 总是文档的规范序列化结果，读出后再写回会得到相同的字节。
type Record struct {
	Document  sections.Document
	Raw       []byte
	Revision  int64
	UpdatedAt time.Time
}

// Repository 持久化首页区块文档。
// expected 为 nil 时按最后写入为准；否则与当前版本不一致时返回 ErrRevisionConflict。
type Repository interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, doc sections.Document, expected *int64) (Record, error)
}

// New 根据配置选择存储后端。
func New(cfg config.SectionsConfig, db *gorm.DB) (Repository, error) {
	switch cfg.Store {
	case config.SectionsStoreFile:
		return NewFileStore(cfg.FilePath), nil
	case config.SectionsStoreDatabase, "":
		if db == nil {
			return nil, errors.New("database store requires a database connection")
		}
		return NewGormStore(db), nil
	default:
		return nil, fmt.Errorf("unknown sections store %q", cfg.Store)
	}
}

func newRecord(content []byte, revision int64, updatedAt time.Time) (Record, error) {
	doc := sections.New()
	if len(content) > 0 {
		decoded, err := sections.Decode(content)
		if err != nil {
			return Record{}, fmt.Errorf("decode stored document: %w", err)
		}
		doc = decoded
	}
	raw, err := sections.Marshal(doc)
	if err != nil {
		return Record{}, err
	}
	return Record{Document: doc, Raw: raw, Revision: revision, UpdatedAt: updatedAt}, nil
}
