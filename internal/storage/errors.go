package storage

import (
	"errors"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
)

// s3Code 取出 S3 错误码（小写），不是 S3 错误时返回 ""。
func s3Code(err error) (string, int) {
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return "", 0
	}
	return strings.ToLower(strings.TrimSpace(resp.Code)), resp.StatusCode
}

// IsNoSuchKey 判断错误是否表示对象不存在。HEAD 请求的 404 没有错误码，只能看状态码。
func IsNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	code, status := s3Code(err)
	switch {
	case code == "nosuchkey" || code == "notfound":
		return true
	case code == "" && status == http.StatusNotFound:
		return true
	}
	// 部分网关把 S3 错误改写成纯文本。
	return strings.Contains(strings.ToLower(err.Error()), "specified key does not exist")
}

// IsBucketAlreadyOwned 判断 MakeBucket 是否因为 Bucket 已被本账号创建而失败。
// api 与 worker 同时启动时两边都可能尝试创建。
func IsBucketAlreadyOwned(err error) bool {
	code, _ := s3Code(err)
	return code == "bucketalreadyownedbyyou" || code == "bucketalreadyexists"
}
