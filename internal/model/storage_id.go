package model

import (
	"fmt"
	"strings"
)

// StorageID 是存储标识符字符串解析后的带标签变体。
// 解析一次后按变体分派，避免在业务代码里到处做前缀匹配。
type StorageID interface {
	// Identifier 还原为目录库中的字符串形式。
	Identifier() string
}

// LocalStorage 表示本地文件系统根目录，scheme 为 local::<path>。
type LocalStorage struct {
	Root string
}

func (s LocalStorage) Identifier() string { return "local::" + s.Root }

// HomeStorage 表示用户家目录挂载，scheme 为 home::<user>。
type HomeStorage struct {
	User string
}

func (s HomeStorage) Identifier() string { return "home::" + s.User }

// ObjectUserStorage 表示已迁移到对象存储的用户家目录，scheme 为 object::user:<user>。
type ObjectUserStorage struct {
	User string
}

func (s ObjectUserStorage) Identifier() string { return "object::user:" + s.User }

// ObjectBucketStorage 表示对象存储桶，scheme 为 object::store:<provider>::<bucket>。
type ObjectBucketStorage struct {
	Provider string
	Bucket   string
}

func (s ObjectBucketStorage) Identifier() string {
	return fmt.Sprintf("object::store:%s::%s", s.Provider, s.Bucket)
}

// ParseStorageID 解析目录库中的存储标识符字符串。
// 无法识别的 scheme 返回错误，调用方据此拒绝而不是猜测。
func ParseStorageID(identifier string) (StorageID, error) {
	switch {
	case strings.HasPrefix(identifier, "local::"):
		root := strings.TrimPrefix(identifier, "local::")
		if root == "" {
			return nil, fmt.Errorf("本地存储标识符缺少路径: %q", identifier)
		}
		return LocalStorage{Root: root}, nil

	case strings.HasPrefix(identifier, "home::"):
		user := strings.TrimPrefix(identifier, "home::")
		if user == "" {
			return nil, fmt.Errorf("家目录存储标识符缺少用户名: %q", identifier)
		}
		return HomeStorage{User: user}, nil

	case strings.HasPrefix(identifier, "object::user:"):
		user := strings.TrimPrefix(identifier, "object::user:")
		if user == "" {
			return nil, fmt.Errorf("对象用户存储标识符缺少用户名: %q", identifier)
		}
		return ObjectUserStorage{User: user}, nil

	case strings.HasPrefix(identifier, "object::store:"):
		rest := strings.TrimPrefix(identifier, "object::store:")
		parts := strings.SplitN(rest, "::", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("对象桶存储标识符格式错误: %q", identifier)
		}
		return ObjectBucketStorage{Provider: parts[0], Bucket: parts[1]}, nil
	}
	return nil, fmt.Errorf("无法识别的存储标识符 scheme: %q", identifier)
}
