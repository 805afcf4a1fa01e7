package storage

import (
	"errors"
	"strings"

	"github.com/minio/minio-go/v7"
)

// IsNoSuchKey 判断错误是否表示对象不存在。
func IsNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchKey", "NotFound":
			return true
		}
		return resp.StatusCode == 404
	}
	// 部分网关只返回文本
	return strings.Contains(strings.ToLower(err.Error()), "specified key does not exist")
}
