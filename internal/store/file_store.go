package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"siteCMS/internal/sections"
)

// FileStore 把文档保存为单个 JSON 文件，适合没有数据库的部署。
// 文件内容为 {revision, updated_at, document}；只有 sections 的旧文件按版本 0 读取。
type FileStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

type fileEnvelope struct {
	Revision  int64           `json:"revision"`
	UpdatedAt time.Time       `json:"updated_at"`
	Document  json.RawMessage `json:"document"`
}

// NewFileStore 构造 FileStore，目录在首次保存时创建。
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path 返回文件路径。
func (s *FileStore) Path() string {
	return s.path
}

// Load 读取文件；文件不存在时返回空文档。
func (s *FileStore) Load(_ context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, err := s.read()
	if err != nil {
		return Record{}, err
	}
	return newRecord(env.Document, env.Revision, env.UpdatedAt)
}

// Save 以临时文件加 rename 的方式原子写入。
func (s *FileStore) Save(ctx context.Context, doc sections.Document, expected *int64) (Record, error) {
	raw, err := sections.Marshal(doc)
	if err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	current, err := s.read()
	if err != nil {
		return Record{}, err
	}
	if expected != nil && *expected != current.Revision {
		return Record{}, ErrRevisionConflict
	}

	next := fileEnvelope{
		Revision:  current.Revision + 1,
		UpdatedAt: s.now().UTC(),
		Document:  raw,
	}
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return Record{}, fmt.Errorf("marshal sections file: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return Record{}, err
	}
	return newRecord(next.Document, next.Revision, next.UpdatedAt)
}

func (s *FileStore) read() (fileEnvelope, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileEnvelope{}, nil
	}
	if err != nil {
		return fileEnvelope{}, fmt.Errorf("read sections file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fileEnvelope{}, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fileEnvelope{}, fmt.Errorf("read sections file: %w: %v", sections.ErrMalformed, err)
	}
	if _, ok := probe["document"]; !ok {
		// 旧格式：整个文件就是 {sections: [...]}
		return fileEnvelope{Document: data}, nil
	}

	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fileEnvelope{}, fmt.Errorf("read sections file: %w: %v", sections.ErrMalformed, err)
	}
	return env, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sections dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".sections-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename sections file: %w", err)
	}
	return nil
}
