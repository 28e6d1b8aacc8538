package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"s3shift-go/internal/config"
	"s3shift-go/internal/model"
	"s3shift-go/internal/repository"
	"s3shift-go/pkg/backup"
	"s3shift-go/pkg/kafka"
	"s3shift-go/pkg/log"

	"github.com/google/uuid"
)

// ErrRunInProgress 表示已有一次迁移运行持有运行锁。
var ErrRunInProgress = errors.New("已有迁移运行在进行中")

// EventPublisher 发布迁移生命周期事件，供外部审计系统消费。
type EventPublisher interface {
	Publish(eventType string, snapshot model.StateSnapshot)
}

// KafkaEventPublisher 把生命周期事件转发到 Kafka 生产者。
type KafkaEventPublisher struct{}

// Publish 实现 EventPublisher。
func (KafkaEventPublisher) Publish(eventType string, snapshot model.StateSnapshot) {
	kafka.ProduceMigrationEvent(kafka.MigrationEvent{
		RunID:    snapshot.RunID,
		Type:     eventType,
		Migrated: snapshot.Migrated,
		Failed:   snapshot.Failed,
		Bytes:    snapshot.Bytes,
	})
}

// MigrationService 是迁移状态机的实现：预检、备份、维护模式包夹、
// 批次循环、进度发布与失败回滚处理。
//
// 批次循环单线程同步执行：每个文件先上传再校验，然后才改写目录库。
// 写入顺序固定为先上传后改写——两步之间崩溃只会留下孤立对象和
// 未迁移的目录库行，续传时会以同一确定性键重新上传覆盖。
type MigrationService struct {
	catalog   repository.CatalogRepository
	store     ObjectStore
	runState  repository.RunStateRepository
	preflight *PreflightService
	backupper backup.Backupper
	maint     MaintenanceStore
	cfg       config.MigrationConfig
	bucket    string
	sinks     []ProgressSink
	events    EventPublisher

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	snapshot model.StateSnapshot
}

// NewMigrationService 创建一个新的 MigrationService 实例。
// backupper 与 events 可为 nil，分别表示不做备份、不发布事件。
func NewMigrationService(
	catalog repository.CatalogRepository,
	store ObjectStore,
	runState repository.RunStateRepository,
	preflight *PreflightService,
	backupper backup.Backupper,
	maint MaintenanceStore,
	cfg config.MigrationConfig,
	bucket string,
	sinks []ProgressSink,
	events EventPublisher,
) *MigrationService {
	return &MigrationService{
		catalog:   catalog,
		store:     store,
		runState:  runState,
		preflight: preflight,
		backupper: backupper,
		maint:     maint,
		cfg:       cfg,
		bucket:    bucket,
		sinks:     sinks,
		events:    events,
		snapshot:  model.StateSnapshot{Status: model.RunIdle, Phase: model.PhaseIdle},
	}
}

// Start 启动一次迁移运行并立即返回运行 ID，状态机在后台执行。
// 运行锁保证同一目录库同时只有一次运行。
func (s *MigrationService) Start(level DryRunLevel) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return "", ErrRunInProgress
	}

	runID := uuid.NewString()
	acquired, err := s.runState.AcquireLock(context.Background(), runID)
	if err != nil {
		return "", fmt.Errorf("获取运行锁失败: %w", err)
	}
	if !acquired {
		return "", ErrRunInProgress
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.snapshot = model.StateSnapshot{
		RunID:  runID,
		Status: model.RunRunning,
		Phase:  model.PhasePreflight,
	}

	go s.run(ctx, runID, level)
	return runID, nil
}

// Stop 发出协作式停止信号。信号在记录之间检查，不会打断正在进行的上传。
// 返回是否有运行被通知停止。
func (s *MigrationService) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.cancel()
	return true
}

// Status 返回当前进度快照。本进程没有运行时回退到 Redis 中发布的快照，
// 因此重启或另一实例上的运行也能被查询到。
func (s *MigrationService) Status(ctx context.Context) model.StateSnapshot {
	s.mu.Lock()
	if s.running || s.snapshot.RunID != "" {
		snap := s.snapshot
		s.mu.Unlock()
		return snap
	}
	s.mu.Unlock()

	if published, err := s.runState.GetSnapshot(ctx); err == nil && published != nil {
		return *published
	}
	return model.StateSnapshot{Status: model.RunIdle, Phase: model.PhaseIdle}
}

// update 在锁内更新快照，然后把完整副本串行发布给所有接收方。
// 接收方永远拿到所有计数器都已更新的一致视图。
func (s *MigrationService) update(mutate func(*model.StateSnapshot)) model.StateSnapshot {
	s.mu.Lock()
	mutate(&s.snapshot)
	snap := s.snapshot
	s.mu.Unlock()

	for _, sink := range s.sinks {
		sink.Publish(snap)
	}
	return snap
}

func (s *MigrationService) setPhase(phase model.RunPhase) {
	s.update(func(snap *model.StateSnapshot) { snap.Phase = phase })
}

func (s *MigrationService) publishEvent(eventType string, snap model.StateSnapshot) {
	if s.events != nil {
		s.events.Publish(eventType, snap)
	}
}

// run 执行完整的状态机。terminal 状态总是带着已提交的计数器发布，
// 部分进度不会被静默吞掉。
func (s *MigrationService) run(ctx context.Context, runID string, level DryRunLevel) {
	maintOn := false

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		if err := s.runState.ReleaseLock(context.Background(), runID); err != nil {
			log.Warnf("释放运行锁失败: %v", err)
		}
	}()

	// abort 统一处理致命失败：恢复可用性优先于失败本身。
	abort := func(reason string) {
		log.Errorf("迁移运行中止: runId=%s, 原因: %s", runID, reason)
		if maintOn {
			s.setPhase(model.PhaseMaintenanceOff)
			if err := s.maint.SetMaintenance(false); err != nil {
				log.Errorf("中止后关闭维护模式失败: %v", err)
			}
		}
		snap := s.update(func(snap *model.StateSnapshot) {
			snap.Phase = model.PhaseAborted
			snap.Status = model.RunFailed
			snap.CurrentFile = ""
		})
		s.publishEvent(kafka.EventRunAborted, snap)
	}

	// 阶段: preflight
	report := s.preflight.Run(ctx)
	for _, check := range report.Checks {
		log.Infof("预检 [%s] %s: %s", check.Status, check.Name, check.Message)
	}
	if !report.Ok {
		abort("预检未通过")
		return
	}

	// 解析源存储，确定本地根目录
	source, err := s.catalog.GetStorageByIdentifier(s.cfg.SourceIdentifier)
	if err != nil || source == nil {
		abort(fmt.Sprintf("解析源存储失败: %v", err))
		return
	}
	sourceRoot, err := s.resolveSourceRoot(source.Identifier)
	if err != nil {
		abort(err.Error())
		return
	}

	total, err := s.catalog.CountCandidates(source.ID)
	if err != nil {
		abort(fmt.Sprintf("统计候选记录失败: %v", err))
		return
	}
	snap := s.update(func(snap *model.StateSnapshot) { snap.Total = total })
	s.publishEvent(kafka.EventRunStarted, snap)
	log.Infof("迁移运行开始: runId=%s, 候选记录=%d, 演练级别=%s", runID, total, level)

	// 阶段: backingUp / maintenanceOn（演练模式完全跳过）
	if level == DryRunOff {
		if s.backupper != nil {
			s.setPhase(model.PhaseBackingUp)
			location, berr := s.backupper.Backup()
			if berr != nil {
				abort(fmt.Sprintf("备份失败: %v", berr))
				return
			}
			log.Infof("迁移前备份完成: %s", location)
		}
		if s.cfg.UseMaintenance {
			s.setPhase(model.PhaseMaintenanceOn)
			if merr := s.maint.SetMaintenance(true); merr != nil {
				abort(fmt.Sprintf("开启维护模式失败: %v", merr))
				return
			}
			maintOn = true
		}
	}

	// 阶段: migrating — 批次循环，每个批次一个目录库事务
	s.setPhase(model.PhaseMigrating)
	var afterFileID int64
	var dest *model.StorageLocation
	stopped := false

	for {
		tx, terr := s.catalog.Begin()
		if terr != nil {
			abort(terr.Error())
			return
		}

		batch, berr := tx.NextBatch(source.ID, afterFileID, s.cfg.BatchSize)
		if berr != nil {
			_ = tx.Rollback()
			abort(fmt.Sprintf("批次游标查询失败: %v", berr))
			return
		}
		if len(batch) == 0 {
			_ = tx.Commit()
			break
		}

		for i := range batch {
			// 协作式停止只在记录之间检查
			if ctx.Err() != nil {
				stopped = true
				break
			}
			entry := &batch[i]
			outcome := s.migrateOne(ctx, tx, entry, sourceRoot, &dest, level)
			if outcome.fatal != nil {
				// 目录库写入失败：回滚当前块并中止，之前提交的块保持有效
				_ = tx.Rollback()
				abort(fmt.Sprintf("目录库写入失败: %v", outcome.fatal))
				return
			}

			afterFileID = entry.FileID
			s.update(func(snap *model.StateSnapshot) {
				if outcome.ok {
					snap.Migrated++
					snap.Bytes += outcome.bytes
				} else {
					snap.Failed++
				}
				snap.CurrentFile = entry.Path
			})
			if !outcome.ok {
				log.Warnf("文件迁移失败: fileId=%d, path=%s, 原因: %s", entry.FileID, entry.Path, outcome.reason)
			}
		}

		// 停止时同样提交而不是回滚，保留已完成的工作
		if cerr := tx.Commit(); cerr != nil {
			abort(fmt.Sprintf("提交批次事务失败: %v", cerr))
			return
		}
		s.publishEvent(kafka.EventBlockCommitted, s.Status(ctx))

		if stopped || len(batch) < s.cfg.BatchSize {
			break
		}
	}

	if stopped {
		abort("收到停止信号，已提交的工作保留")
		return
	}

	// 阶段: remapping — 只有批次循环无致命中止才执行，演练模式跳过
	if level == DryRunOff {
		s.setPhase(model.PhaseRemapping)
		if rerr := s.finalizeRemap(); rerr != nil {
			abort(rerr.Error())
			return
		}
	}

	// 阶段: maintenanceOff
	if maintOn {
		s.setPhase(model.PhaseMaintenanceOff)
		if merr := s.maint.SetMaintenance(false); merr != nil {
			abort(fmt.Sprintf("关闭维护模式失败: %v", merr))
			return
		}
		maintOn = false
	}

	snap = s.update(func(snap *model.StateSnapshot) {
		snap.Phase = model.PhaseComplete
		snap.Status = model.RunComplete
		snap.CurrentFile = ""
	})
	s.publishEvent(kafka.EventRunCompleted, snap)
	log.Infof("迁移运行完成: runId=%s, 成功=%d, 失败=%d, 字节=%d", runID, snap.Migrated, snap.Failed, snap.Bytes)
}

// migrateOutcome 是单个文件迁移的结果。fatal 非空表示整个运行必须中止，
// 其余失败折叠进计数器，不影响批次继续。
type migrateOutcome struct {
	ok     bool
	bytes  int64
	reason string
	fatal  error
}

// migrateOne 迁移单条文件记录：本地存在性检查、上传、校验、目录库改写。
func (s *MigrationService) migrateOne(ctx context.Context, tx repository.CatalogTx, entry *model.FileEntry, sourceRoot string, dest **model.StorageLocation, level DryRunLevel) migrateOutcome {
	// 1. 本地路径解析与存在性检查。文件缺失不是瞬时错误，不重试。
	localPath := filepath.Join(sourceRoot, filepath.FromSlash(entry.Path))
	info, err := os.Stat(localPath)
	if err != nil || info.IsDir() {
		if s.cfg.DeleteMissing && level == DryRunOff {
			if derr := tx.DeleteFileEntry(entry.FileID); derr != nil {
				return migrateOutcome{fatal: derr}
			}
			log.Infof("已删除缺失文件的目录库记录: fileId=%d, path=%s", entry.FileID, entry.Path)
		}
		return migrateOutcome{reason: "local file not found"}
	}
	localSize := info.Size()

	// 2. 演练模式：full 到此为止；no-transfer 还要完整读一遍本地文件
	switch level {
	case DryRunFull:
		return migrateOutcome{ok: true, bytes: localSize}
	case DryRunNoTransfer:
		if rerr := readAll(localPath); rerr != nil {
			return migrateOutcome{reason: fmt.Sprintf("读取本地文件失败: %v", rerr)}
		}
		return migrateOutcome{ok: true, bytes: localSize}
	}

	// 进行中的上传不被停止信号打断，停止只在记录之间生效;
	// 适配器自身的超时保证调用有界。
	storeCtx := context.WithoutCancel(ctx)

	// 3. 上传到确定性键
	key := entry.ObjectKey()
	written, err := s.store.Upload(storeCtx, key, localPath)
	if err != nil {
		return migrateOutcome{reason: fmt.Sprintf("上传失败: %v", err)}
	}

	// 4. 大小校验：传输成功但长度不符同样按上传失败处理，捕获静默截断
	if s.cfg.VerifyUploads {
		stored, serr := s.store.Stat(storeCtx, key)
		if serr != nil {
			return migrateOutcome{reason: fmt.Sprintf("校验失败: %v", serr)}
		}
		if stored != localSize {
			return migrateOutcome{reason: fmt.Sprintf("大小不符: 本地 %d 字节, 对象 %d 字节", localSize, stored)}
		}
	}

	// 5. 改写目录库。目标存储懒创建，查找加插入保证恰好一行。
	if *dest == nil {
		created, eerr := tx.EnsureStorage(DestinationIdentifier(s.bucket))
		if eerr != nil {
			return migrateOutcome{fatal: eerr}
		}
		*dest = created
	}
	if rerr := tx.RepointFile(entry.FileID, (*dest).ID); rerr != nil {
		return migrateOutcome{fatal: rerr}
	}

	return migrateOutcome{ok: true, bytes: written}
}

// finalizeRemap 在所有单文件处理完成后执行两条集合式、幂等的收尾改写。
func (s *MigrationService) finalizeRemap() error {
	tx, err := s.catalog.Begin()
	if err != nil {
		return err
	}

	providers, err := tx.RemapMountProviders()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("改写挂载提供者失败: %w", err)
	}
	storages, err := tx.RemapHomeStorages()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("改写家目录存储标识符失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交收尾改写失败: %w", err)
	}
	log.Infof("收尾改写完成: 挂载提供者 %d 行, 存储标识符 %d 行", providers, storages)

	// 收尾审计：此时不应再有 home:: scheme 的存储
	if leftover, cerr := s.catalog.CountStoragesWithPrefix("home::"); cerr == nil && leftover > 0 {
		log.Warnf("收尾后仍有 %d 个 home:: scheme 的存储未被转换，请人工核对", leftover)
	}
	return nil
}

// resolveSourceRoot 把源存储标识符解析为本地根目录。
func (s *MigrationService) resolveSourceRoot(identifier string) (string, error) {
	parsed, err := model.ParseStorageID(identifier)
	if err != nil {
		return "", err
	}
	switch sid := parsed.(type) {
	case model.LocalStorage:
		return sid.Root, nil
	case model.HomeStorage:
		return filepath.Join(s.cfg.DataRoot, sid.User), nil
	}
	return "", fmt.Errorf("源存储 '%s' 不是本地类型，无法迁移", identifier)
}

// readAll 完整读取一个本地文件并丢弃内容，用于演练时测量吞吐。
func readAll(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(io.Discard, f)
	return err
}
