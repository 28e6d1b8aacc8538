// Package service 包含了迁移引擎的业务逻辑层。
package service

import (
	"context"
	"errors"
)

// ErrObjectNotFound 表示对象存储中不存在给定键的对象。
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore 定义了迁移引擎对对象存储的全部依赖。
// 底层 SDK（分片上传、寻址方式等）由适配器封装，这里只约定语义：
// 每次调用至少一次送达，不提供跨对象事务。
type ObjectStore interface {
	// Upload 将本地文件上传到给定键，返回写入的字节数。
	Upload(ctx context.Context, key, localPath string) (int64, error)
	// Delete 删除给定键的对象，对象不存在不视为错误。
	Delete(ctx context.Context, key string) error
	// Stat 返回给定键对象的大小，不存在时返回 ErrObjectNotFound。
	Stat(ctx context.Context, key string) (int64, error)
	// List 返回指定前缀下的所有对象键。
	List(ctx context.Context, prefix string) ([]string, error)
	// Probe 对配置的存储桶做一次轻量的存在性探测，用于预检。
	Probe(ctx context.Context) error
}
