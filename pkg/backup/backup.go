// Package backup 提供了迁移前对本地数据目录做快照备份的功能。
package backup

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"s3shift-go/pkg/log"
)

// Backupper 定义了迁移开始前由状态机调用的备份钩子。
type Backupper interface {
	// Backup 执行一次备份，返回备份位置。
	Backup() (string, error)
}

// DirBackupper 将数据根目录复制到备份目录下带时间戳的子目录。
type DirBackupper struct {
	dataRoot  string
	backupDir string
}

// NewDirBackupper 创建一个新的 DirBackupper 实例。
func NewDirBackupper(dataRoot, backupDir string) *DirBackupper {
	return &DirBackupper{dataRoot: dataRoot, backupDir: backupDir}
}

// Backup 遍历数据根目录并逐文件复制到目标快照目录。
func (b *DirBackupper) Backup() (string, error) {
	target := filepath.Join(b.backupDir, "snapshot-"+time.Now().Format("20060102-150405"))
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("创建备份目录失败: %w", err)
	}

	var files, bytes int64
	err := filepath.WalkDir(b.dataRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, rerr := filepath.Rel(b.dataRoot, path)
		if rerr != nil {
			return rerr
		}
		dest := filepath.Join(target, rel)
		if d.IsDir() {
			return os.MkdirAll(dest, 0o755)
		}
		n, cerr := copyFile(path, dest)
		if cerr != nil {
			return cerr
		}
		files++
		bytes += n
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("备份数据目录失败: %w", err)
	}

	log.Infof("备份完成: %s (文件数=%d, 字节数=%d)", target, files, bytes)
	return target, nil
}

func copyFile(src, dest string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return 0, err
	}
	return n, out.Close()
}
