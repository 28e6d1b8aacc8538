package model

// RunStatus 是对外轮询接口暴露的迁移运行状态。
type RunStatus string

const (
	RunIdle     RunStatus = "idle"
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunFailed   RunStatus = "failed"
)

// RunPhase 是迁移状态机的内部阶段。
type RunPhase string

const (
	PhaseIdle           RunPhase = "idle"
	PhasePreflight      RunPhase = "preflight"
	PhaseBackingUp      RunPhase = "backingUp"
	PhaseMaintenanceOn  RunPhase = "maintenanceOn"
	PhaseMigrating      RunPhase = "migrating"
	PhaseRemapping      RunPhase = "remapping"
	PhaseMaintenanceOff RunPhase = "maintenanceOff"
	PhaseComplete       RunPhase = "complete"
	PhaseAborted        RunPhase = "aborted"
)

// StateSnapshot 是单次迁移运行进度的完整快照。
// 进度接收方拿到的永远是整体一致的副本，不会看到只更新了一半计数器的状态。
type StateSnapshot struct {
	RunID       string    `json:"runId"`
	Status      RunStatus `json:"status"`
	Phase       RunPhase  `json:"phase"`
	Total       int64     `json:"total"`
	Migrated    int64     `json:"migrated"`
	Failed      int64     `json:"failed"`
	Bytes       int64     `json:"bytes"`
	CurrentFile string    `json:"current_file"`
}

// CleanupResult 是预览缓存清理任务的结果。
type CleanupResult struct {
	DeletedCount int   `json:"deletedCount"`
	BytesFreed   int64 `json:"bytesFreed"`
}
