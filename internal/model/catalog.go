// Package model 定义了与目录库表对应的 Go 结构体。
package model

import "fmt"

// DirectoryMimetype 是目录类记录在目录库中的哨兵 mimetype，迁移时跳过。
const DirectoryMimetype = "httpd/unix-directory"

// FileEntry 定义了 file_entry 表的 ORM 模型。
// 每行对应一个受管文件的元数据，storage_id 指向其当前所在的存储后端。
type FileEntry struct {
	FileID    int64  `gorm:"column:file_id;primaryKey;autoIncrement" json:"fileId"`
	Path      string `gorm:"type:varchar(4000);not null" json:"path"`
	Size      int64  `gorm:"not null" json:"size"`
	Mimetype  string `gorm:"type:varchar(255)" json:"mimetype"`
	StorageID int64  `gorm:"column:storage_id;not null;index" json:"storageId"`
	Mtime     int64  `gorm:"not null;default:0" json:"mtime"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (FileEntry) TableName() string {
	return "file_entry"
}

// ObjectKey 根据 FileID 派生出稳定的对象键。键只依赖数字标识，
// 与文件路径无关，重试上传总是命中同一个键。
func (f *FileEntry) ObjectKey() string {
	return ObjectKeyFor(f.FileID)
}

// ObjectKeyFor 返回给定文件 ID 的对象键，格式为 urn:oid:<fileId>。
func ObjectKeyFor(fileID int64) string {
	return fmt.Sprintf("urn:oid:%d", fileID)
}

// StorageLocation 定义了 storage_location 表的 ORM 模型。
// identifier 编码了后端类型与物理位置，参见 storage_id.go 中的各 scheme。
type StorageLocation struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Identifier string `gorm:"type:varchar(512);not null;uniqueIndex" json:"identifier"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (StorageLocation) TableName() string {
	return "storage_location"
}

// MountProvider 定义了 mount_provider 表的 ORM 模型。
// 记录各存储所使用的挂载提供者类名，家目录挂载在迁移完成时整体改写。
type MountProvider struct {
	ID            int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	StorageID     int64  `gorm:"column:storage_id;not null" json:"storageId"`
	ProviderClass string `gorm:"type:varchar(255);not null" json:"providerClass"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (MountProvider) TableName() string {
	return "mount_provider"
}

// 家目录挂载提供者类名，finalize 阶段由本地改写为对象存储。
const (
	LocalHomeMountProvider  = "LocalHomeMountProvider"
	ObjectHomeMountProvider = "ObjectHomeMountProvider"
)
