package engine

import (
	"sync/atomic"

	"github.com/fanzha/logquery/internal/scan"
)

// TaskState is the lifecycle state of one FileTask.
// TaskState 是单个文件任务的生命周期状态。
type TaskState int32

const (
	TaskPending TaskState = iota
	TaskRunning
	TaskCompleted
	TaskFailedSkipped
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskFailedSkipped:
		return "failed_skipped"
	}
	return "unknown"
}

// FileTask binds one enumerated file to the scan chain. Each task is pulled
// by exactly one worker; only the state field is observed concurrently (by
// the progress reporter), hence the atomic.
// FileTask 将一个已枚举文件绑定到扫描链上。每个任务仅由一个 worker 消费；
// 只有状态字段会被并发读取（进度上报），因此使用原子操作。
type FileTask struct {
	Handle scan.FileHandle
	state  atomic.Int32
}

// State returns the current lifecycle state.
func (t *FileTask) State() TaskState {
	return TaskState(t.state.Load())
}

func (t *FileTask) setState(s TaskState) {
	t.state.Store(int32(s))
}
