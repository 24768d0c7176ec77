package engine

import (
	"sort"
	"time"

	"github.com/fanzha/logquery/internal/query"
	"github.com/fanzha/logquery/internal/schema"
)

// Match is one matching record in enumerate mode.
// Match 是 enumerate 模式下的一条匹配记录。
type Match struct {
	File   string
	Offset int64
	Line   string
	// Key is the sort-key value, captured at evaluation time when the
	// query requested ordered output.
	Key schema.Value
}

// FileError is one per-file failure surfaced in the final report.
// FileError 是最终报告中的单个文件级错误。
type FileError struct {
	Path    string
	Kind    string
	Message string
}

// PartialResult is one task's accumulated output. It is owned exclusively by
// the producing worker until it is handed to the merger, so no locking is
// needed on the per-record path.
// PartialResult 是单个任务累积的输出。在交给合并器之前由生产它的 worker
// 独占，因此逐记录路径上无需加锁。
type PartialResult struct {
	Path             string
	Records          uint64
	Matched          uint64
	SkippedRecords   uint64
	CoercionFailures uint64
	Matches          []Match
	Groups           map[string]uint64
	Err              *FileError
}

// FinalResult is the merged outcome of the whole run.
// FinalResult 是整次运行合并后的结果。
type FinalResult struct {
	Matches          []Match
	MatchCount       uint64
	Groups           map[string]uint64
	Records          uint64
	SkippedRecords   uint64
	CoercionFailures uint64
	FilesTotal       int
	FilesCompleted   int
	FilesFailed      int
	Errors           []FileError
	// Incomplete is set when the run was canceled before every task
	// reached a terminal state; no FinalResult semantics are guaranteed
	// beyond the error list in that case.
	Incomplete bool
	Elapsed    time.Duration
}

// Aggregator folds partial results into the final one. It is driven by a
// single consumer, so the merge itself needs no locking; because merge is
// associative and commutative, the outcome is independent of task completion
// order.
// Aggregator 将部分结果折叠为最终结果。由单一消费者驱动，合并本身无需加锁；
// 合并满足结合律与交换律，结果与任务完成顺序无关。
type Aggregator struct {
	spec  *query.Spec
	final FinalResult
}

// NewAggregator creates an Aggregator for the compiled query.
func NewAggregator(spec *query.Spec, filesTotal int) *Aggregator {
	a := &Aggregator{spec: spec}
	a.final.FilesTotal = filesTotal
	if spec.Mode() == query.ModeGroup {
		a.final.Groups = make(map[string]uint64)
	}
	return a
}

// Merge folds one partial result in.
func (a *Aggregator) Merge(p *PartialResult) {
	if p.Err != nil {
		a.final.FilesFailed++
		a.final.Errors = append(a.final.Errors, *p.Err)
		return
	}
	a.final.FilesCompleted++
	a.final.Records += p.Records
	a.final.MatchCount += p.Matched
	a.final.SkippedRecords += p.SkippedRecords
	a.final.CoercionFailures += p.CoercionFailures

	switch a.spec.Mode() {
	case query.ModeEnumerate:
		// Without a requested ordering the concatenation order follows
		// task completion, which is explicitly unspecified.
		if limit := a.spec.Limit(); limit > 0 && a.spec.SortIdx() < 0 && len(a.final.Matches) >= limit {
			return
		}
		a.final.Matches = append(a.final.Matches, p.Matches...)
	case query.ModeGroup:
		for k, n := range p.Groups {
			a.final.Groups[k] += n
		}
	}
}

// Finalize applies the requested ordering and limit and seals the result.
// Finalize 应用请求的排序与上限并封存结果。
func (a *Aggregator) Finalize(incomplete bool, elapsed time.Duration) *FinalResult {
	a.final.Incomplete = incomplete
	a.final.Elapsed = elapsed

	if a.spec.Mode() == query.ModeEnumerate && a.spec.SortIdx() >= 0 {
		less := func(i, j int) bool {
			return a.spec.ValueLess(a.final.Matches[i].Key, a.final.Matches[j].Key)
		}
		if a.spec.SortDesc() {
			orig := less
			less = func(i, j int) bool { return orig(j, i) }
		}
		sort.SliceStable(a.final.Matches, less)
	}
	if limit := a.spec.Limit(); limit > 0 && len(a.final.Matches) > limit {
		a.final.Matches = a.final.Matches[:limit]
	}
	return &a.final
}
