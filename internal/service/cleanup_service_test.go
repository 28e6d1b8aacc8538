package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"s3shift-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupZeroMaxAgeIsNoOp(t *testing.T) {
	catalog := newFakeCatalog()
	store := newFakeStore()
	svc := NewCleanupService(catalog, store, t.TempDir(), false)

	result, err := svc.Cleanup(context.Background(), 0, 100)
	require.NoError(t, err)

	assert.Equal(t, model.CleanupResult{}, result)
	// 禁用时连候选查询都不会发出
	assert.Equal(t, 0, catalog.previewQueries)
}

func TestCleanupDeletesExpiredPreviews(t *testing.T) {
	dataRoot := t.TempDir()
	catalog := newFakeCatalog()
	store := newFakeStore()

	old := time.Now().AddDate(0, 0, -60).Unix()
	for i, size := range []int64{10, 20} {
		fileID := int64(300 + i)
		rel := filepath.Join("appdata_abc", "preview", string(rune('a'+i))+".png")
		require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dataRoot, rel)), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dataRoot, rel), make([]byte, size), 0o644))

		catalog.addFile(fileID, rel, size, 1)
		catalog.files[fileID].Mtime = old
		catalog.previews = append(catalog.previews, *catalog.files[fileID])
		store.objects[model.ObjectKeyFor(fileID)] = size
	}

	svc := NewCleanupService(catalog, store, dataRoot, false)
	result, err := svc.Cleanup(context.Background(), 30, 100)
	require.NoError(t, err)

	assert.Equal(t, 2, result.DeletedCount)
	assert.Equal(t, int64(30), result.BytesFreed)
	assert.ElementsMatch(t, []string{"urn:oid:300", "urn:oid:301"}, store.deleted)

	// 目录库行与本地文件都被移除
	_, ok := catalog.files[300]
	assert.False(t, ok)
	_, statErr := os.Stat(filepath.Join(dataRoot, "appdata_abc", "preview", "a.png"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCleanupRespectsMaxCount(t *testing.T) {
	catalog := newFakeCatalog()
	store := newFakeStore()
	for i := int64(0); i < 5; i++ {
		catalog.previews = append(catalog.previews, model.FileEntry{
			FileID: 400 + i, Path: "thumbnails/t.png", Size: 1, Mtime: 1,
		})
	}

	svc := NewCleanupService(catalog, store, t.TempDir(), false)
	result, err := svc.Cleanup(context.Background(), 30, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, result.DeletedCount)
}

func TestCleanupDryRunDeletesNothing(t *testing.T) {
	catalog := newFakeCatalog()
	store := newFakeStore()
	catalog.addFile(500, "thumbnails/x.png", 7, 1)
	catalog.previews = []model.FileEntry{*catalog.files[500]}
	store.objects["urn:oid:500"] = 7

	svc := NewCleanupService(catalog, store, t.TempDir(), true)
	result, err := svc.Cleanup(context.Background(), 30, 100)
	require.NoError(t, err)

	// 演练模式只统计将被释放的空间，不做任何删除
	assert.Equal(t, 1, result.DeletedCount)
	assert.Equal(t, int64(7), result.BytesFreed)
	assert.Empty(t, store.deleted)
	_, ok := catalog.files[500]
	assert.True(t, ok)
}
