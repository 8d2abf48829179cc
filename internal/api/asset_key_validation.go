package api

import (
	"path"
	"strings"
	"unicode/utf8"
)

const uploadsPrefix = "uploads/"

// allowedMediaTypes 是允许上传的 MIME 类型及其扩展名，按文件头嗅探结果匹配。
var allowedMediaTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
}

func mediaKind(contentType string) string {
	kind, _, _ := strings.Cut(contentType, "/")
	return kind
}

func isValidMediaObjectKey(key string) bool {
	if key == "" || !utf8.ValidString(key) {
		return false
	}
	if !strings.HasPrefix(key, uploadsPrefix) {
		return false
	}
	if strings.Contains(key, "..") || strings.Contains(key, "\\") || strings.Contains(key, "//") {
		return false
	}
	if len(key) > 200 {
		return false
	}
	ext := strings.ToLower(path.Ext(key))
	for _, allowed := range allowedMediaTypes {
		if ext == allowed {
			return true
		}
	}
	return false
}
