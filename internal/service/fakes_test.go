package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"s3shift-go/internal/model"
	"s3shift-go/internal/repository"
)

// -------- test fakes --------

// fakeCatalog 以内存表实现 CatalogRepository 与 CatalogTx。
// 写入立即生效，Commit/Rollback 仅计数，足以驱动状态机的控制流。
type fakeCatalog struct {
	mu            sync.Mutex
	files         map[int64]*model.FileEntry
	storages      map[int64]*model.StorageLocation
	providers     []model.MountProvider
	nextStorageID int64

	ensureCalls    int
	commits        int
	rollbacks      int
	previewQueries int
	previews       []model.FileEntry

	pingErr    error
	repointErr error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		files:         make(map[int64]*model.FileEntry),
		storages:      make(map[int64]*model.StorageLocation),
		nextStorageID: 1,
	}
}

func (c *fakeCatalog) addStorage(identifier string) *model.StorageLocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &model.StorageLocation{ID: c.nextStorageID, Identifier: identifier}
	c.nextStorageID++
	c.storages[s.ID] = s
	return s
}

func (c *fakeCatalog) addFile(fileID int64, path string, size, storageID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[fileID] = &model.FileEntry{
		FileID: fileID, Path: path, Size: size, Mimetype: "application/octet-stream", StorageID: storageID,
	}
}

func (c *fakeCatalog) storageOf(fileID int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.files[fileID].StorageID
}

func (c *fakeCatalog) storagesWithIdentifier(identifier string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.storages {
		if s.Identifier == identifier {
			n++
		}
	}
	return n
}

func (c *fakeCatalog) Ping(ctx context.Context) error { return c.pingErr }

func (c *fakeCatalog) Begin() (repository.CatalogTx, error) { return &fakeTx{c: c}, nil }

func (c *fakeCatalog) GetStorageByIdentifier(identifier string) (*model.StorageLocation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.storages {
		if s.Identifier == identifier {
			return s, nil
		}
	}
	return nil, nil
}

func (c *fakeCatalog) CountFilesOnStorage(storageID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, f := range c.files {
		if f.StorageID == storageID {
			n++
		}
	}
	return n, nil
}

func (c *fakeCatalog) CountCandidates(storageID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, f := range c.files {
		if f.StorageID == storageID && f.Mimetype != model.DirectoryMimetype && f.Path != "" {
			n++
		}
	}
	return n, nil
}

func (c *fakeCatalog) CountStoragesWithPrefix(prefix string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, s := range c.storages {
		if strings.HasPrefix(s.Identifier, prefix) {
			n++
		}
	}
	return n, nil
}

func (c *fakeCatalog) FindExpiredPreviews(cutoff time.Time, limit int) ([]model.FileEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.previewQueries++
	if len(c.previews) > limit {
		return c.previews[:limit], nil
	}
	return c.previews, nil
}

func (c *fakeCatalog) DeleteFileEntry(fileID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.files, fileID)
	return nil
}

// fakeTx 把事务写入直接落到 fakeCatalog 上。
type fakeTx struct {
	c *fakeCatalog
}

func (t *fakeTx) NextBatch(sourceStorageID, afterFileID int64, limit int) ([]model.FileEntry, error) {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	var out []model.FileEntry
	for _, f := range t.c.files {
		if f.StorageID == sourceStorageID && f.FileID > afterFileID &&
			f.Mimetype != model.DirectoryMimetype && f.Path != "" {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *fakeTx) EnsureStorage(identifier string) (*model.StorageLocation, error) {
	t.c.mu.Lock()
	t.c.ensureCalls++
	for _, s := range t.c.storages {
		if s.Identifier == identifier {
			t.c.mu.Unlock()
			return s, nil
		}
	}
	t.c.mu.Unlock()
	return t.c.addStorage(identifier), nil
}

func (t *fakeTx) RepointFile(fileID, storageID int64) error {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.c.repointErr != nil {
		return t.c.repointErr
	}
	f, ok := t.c.files[fileID]
	if !ok {
		return fmt.Errorf("no such file %d", fileID)
	}
	f.StorageID = storageID
	return nil
}

func (t *fakeTx) DeleteFileEntry(fileID int64) error {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	delete(t.c.files, fileID)
	return nil
}

func (t *fakeTx) RemapMountProviders() (int64, error) {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	var n int64
	for i := range t.c.providers {
		if t.c.providers[i].ProviderClass == model.LocalHomeMountProvider {
			t.c.providers[i].ProviderClass = model.ObjectHomeMountProvider
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) RemapHomeStorages() (int64, error) {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	var n int64
	for _, s := range t.c.storages {
		if strings.HasPrefix(s.Identifier, "home::") {
			s.Identifier = "object::user:" + strings.TrimPrefix(s.Identifier, "home::")
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) Commit() error {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	t.c.commits++
	return nil
}

func (t *fakeTx) Rollback() error {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	t.c.rollbacks++
	return nil
}

// fakeStore 以内存 map 实现 ObjectStore。上传大小取自真实的本地文件。
type fakeStore struct {
	mu          sync.Mutex
	objects     map[string]int64
	uploadCalls []string
	deleted     []string

	statOverride map[string]int64
	uploadErr    error
	probeErr     error

	// uploadGate 非空时每次上传前先收一个信号，用于制造停顿
	uploadGate   chan struct{}
	gateArrivals int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]int64)}
}

func (s *fakeStore) Upload(ctx context.Context, key, localPath string) (int64, error) {
	if s.uploadGate != nil {
		s.mu.Lock()
		s.gateArrivals++
		s.mu.Unlock()
		<-s.uploadGate
	}
	if s.uploadErr != nil {
		return 0, s.uploadErr
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = info.Size()
	s.uploadCalls = append(s.uploadCalls, key)
	return info.Size(), nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *fakeStore) Stat(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if size, ok := s.statOverride[key]; ok {
		return size, nil
	}
	size, ok := s.objects[key]
	if !ok {
		return 0, ErrObjectNotFound
	}
	return size, nil
}

func (s *fakeStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *fakeStore) Probe(ctx context.Context) error { return s.probeErr }

func (s *fakeStore) uploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploadCalls)
}

func (s *fakeStore) arrivals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gateArrivals
}

// fakeRunState 以进程内状态实现 RunStateRepository。
type fakeRunState struct {
	mu       sync.Mutex
	holder   string
	snapshot *model.StateSnapshot
}

func (r *fakeRunState) AcquireLock(ctx context.Context, runID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.holder != "" {
		return false, nil
	}
	r.holder = runID
	return true, nil
}

func (r *fakeRunState) ReleaseLock(ctx context.Context, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.holder == runID {
		r.holder = ""
	}
	return nil
}

func (r *fakeRunState) SaveSnapshot(ctx context.Context, snapshot model.StateSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = &snapshot
	return nil
}

func (r *fakeRunState) GetSnapshot(ctx context.Context) (*model.StateSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot, nil
}

// fakeMaint 记录维护模式开关的调用序列。
type fakeMaint struct {
	mu    sync.Mutex
	on    bool
	calls []bool
}

func (m *fakeMaint) SetMaintenance(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.on = on
	m.calls = append(m.calls, on)
	return nil
}

func (m *fakeMaint) IsMaintenance() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on, nil
}

// fakeBackupper 记录备份次数。
type fakeBackupper struct {
	mu    sync.Mutex
	count int
	err   error
}

func (b *fakeBackupper) Backup() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	b.count++
	return "/tmp/backup", nil
}

// collectSink 收集所有发布的进度快照。
type collectSink struct {
	mu        sync.Mutex
	snapshots []model.StateSnapshot
}

func (s *collectSink) Publish(snapshot model.StateSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot)
}

func (s *collectSink) all() []model.StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.StateSnapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

var errBoom = errors.New("boom")
