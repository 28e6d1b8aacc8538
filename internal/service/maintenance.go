package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MaintenanceStore 定义了维护模式开关。实现方拥有实际的文件格式，
// 状态机只调用 SetMaintenance。
type MaintenanceStore interface {
	SetMaintenance(on bool) error
	IsMaintenance() (bool, error)
}

// maintenanceFlag 是维护标记文件的内容。
type maintenanceFlag struct {
	Maintenance bool `json:"maintenance"`
}

// FileMaintenanceStore 以 JSON 标记文件实现 MaintenanceStore。
// 写入走临时文件加原子改名，读取方永远不会看到半写状态。
type FileMaintenanceStore struct {
	path string
}

// NewFileMaintenanceStore 创建一个新的 FileMaintenanceStore 实例。
func NewFileMaintenanceStore(path string) *FileMaintenanceStore {
	return &FileMaintenanceStore{path: path}
}

// SetMaintenance 原子地写入维护模式开关。
func (s *FileMaintenanceStore) SetMaintenance(on bool) error {
	data, err := json.Marshal(maintenanceFlag{Maintenance: on})
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("创建维护标记目录失败: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("写入维护标记临时文件失败: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("原子替换维护标记文件失败: %w", err)
	}
	return nil
}

// IsMaintenance 读取当前维护模式状态，文件不存在视为关闭。
func (s *FileMaintenanceStore) IsMaintenance() (bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	var flag maintenanceFlag
	if err := json.Unmarshal(data, &flag); err != nil {
		return false, err
	}
	return flag.Maintenance, nil
}
