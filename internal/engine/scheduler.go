package engine

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fanzha/logquery/internal/config"
	"github.com/fanzha/logquery/internal/metrics"
	"github.com/fanzha/logquery/internal/query"
	"github.com/fanzha/logquery/internal/scan"
	"github.com/fanzha/logquery/internal/schema"
	"github.com/fanzha/logquery/internal/utils/logger"
	lqerrors "github.com/fanzha/logquery/pkg/errors"
)

// cancelCheckInterval is how many records a worker processes between
// context checks. A canceled task is abandoned after its current chunk.
const cancelCheckInterval = 4096

// Scheduler enumerates the file snapshot and drives FileTasks across a
// bounded worker pool. Shared state (config, schema, query) is read-only;
// each task's scan chain and partial result are owned by one worker.
// Scheduler 枚举文件快照并在有界 worker 池上驱动文件任务。
// 共享状态（配置、模式、查询）只读；每个任务的扫描链和部分结果由单个 worker 独占。
type Scheduler struct {
	cfg              *config.Config
	schema           *schema.Schema
	spec             *query.Spec
	workers          int
	progressInterval time.Duration
}

// NewScheduler builds a Scheduler. Worker count defaults to the number of
// available CPU cores when no override is configured.
// NewScheduler 构建调度器。未配置覆盖值时 worker 数默认为可用 CPU 核数。
func NewScheduler(cfg *config.Config, sc *schema.Schema, spec *query.Spec) *Scheduler {
	workers := cfg.WorkerPoolSize
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	interval := 30 * time.Second
	if cfg.ProgressInterval != "" {
		if d, err := time.ParseDuration(cfg.ProgressInterval); err == nil {
			interval = d
		}
	}
	return &Scheduler{
		cfg:              cfg,
		schema:           sc,
		spec:             spec,
		workers:          workers,
		progressInterval: interval,
	}
}

// Workers returns the effective pool size.
func (s *Scheduler) Workers() int {
	return s.workers
}

// Enumerate lists the files under the configured root. The returned slice is
// the fixed snapshot for the run; files appearing later are not picked up.
// An unreadable or missing root is fatal, unreadable entries below it are
// skipped.
// Enumerate 列出根目录下的文件，返回本次运行的固定快照；
// 之后新增的文件不会被纳入。根目录不可读为致命错误，其下条目不可读则跳过。
func (s *Scheduler) Enumerate() ([]scan.FileHandle, error) {
	root := s.cfg.LogDirectory
	info, err := os.Stat(root)
	if err != nil {
		return nil, lqerrors.NewEnumerationError(root, err)
	}
	if !info.IsDir() {
		return nil, lqerrors.NewEnumerationError(root, os.ErrInvalid)
	}

	var handles []scan.FileHandle
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if !s.cfg.IsRecursive() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		name := d.Name()
		if !s.nameMatches(name) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		handles = append(handles, scan.FileHandle{
			Path:    path,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
			Hint:    scan.HintFromName(name),
		})
		return nil
	})
	if walkErr != nil {
		return nil, lqerrors.NewEnumerationError(root, walkErr)
	}
	return handles, nil
}

// nameMatches applies the filename substring filters (e.g. day/hour shards).
func (s *Scheduler) nameMatches(name string) bool {
	if len(s.cfg.FileNameFilters) == 0 {
		return true
	}
	for _, f := range s.cfg.FileNameFilters {
		if strings.Contains(name, f) {
			return true
		}
	}
	return false
}

// Run executes the whole scan: enumerate, dispatch, merge. Per-file failures
// never abort the run; only an enumeration failure does. On cancellation
// in-flight tasks are abandoned, their partials discarded, and the result is
// reported incomplete.
// Run 执行整次扫描：枚举、分发、合并。文件级失败不会中止运行，
// 只有枚举失败才会。取消时在途任务被放弃，其部分结果被丢弃，结果标记为不完整。
func (s *Scheduler) Run(ctx context.Context) (*FinalResult, error) {
	log := logger.Get(ctx)
	start := time.Now()

	files, err := s.Enumerate()
	if err != nil {
		return nil, err
	}
	metrics.FilesEnumerated.Set(float64(len(files)))
	log.Infof("🚀 scanning %d files with %d workers", len(files), s.workers)

	tasks := make([]*FileTask, len(files))
	for i, h := range files {
		tasks[i] = &FileTask{Handle: h}
	}

	agg := NewAggregator(s.spec, len(files))

	var writer *matchWriter
	if s.spec.Mode() == query.ModeEnumerate && s.cfg.Query.OutputFile != "" {
		writer, err = newMatchWriter(s.cfg.Query.OutputFile)
		if err != nil {
			return nil, err
		}
	}

	prog := newProgressReporter(len(files), s.progressInterval, log)
	prog.Start()
	defer prog.Stop()

	taskCh := make(chan *FileTask)
	results := make(chan *PartialResult, s.workers)

	// Single-consumer reduction: the merge structure is never shared
	// between workers, so no lock is held during accumulation.
	mergeDone := make(chan struct{})
	go func() {
		defer close(mergeDone)
		for p := range results {
			agg.Merge(p)
			prog.Inc()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(taskCh)
		for _, t := range tasks {
			select {
			case taskCh <- t:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			for t := range taskCh {
				metrics.WorkersBusy.Inc()
				p := s.processTask(gctx, t, writer)
				metrics.WorkersBusy.Dec()
				results <- p
			}
			return nil
		})
	}

	runErr := g.Wait()
	close(results)
	<-mergeDone

	if writer != nil {
		if err := writer.Close(); err != nil {
			log.Warnf("failed to flush match output: %v", err)
		}
	}

	incomplete := runErr != nil || ctx.Err() != nil
	final := agg.Finalize(incomplete, time.Since(start))
	if incomplete {
		log.Warnf("🛑 run canceled after %s: %d/%d files reached a terminal state",
			final.Elapsed.Round(time.Millisecond), final.FilesCompleted+final.FilesFailed, final.FilesTotal)
	} else {
		log.Infof("scan finished in %s: %d records, %d matched, %d files failed",
			final.Elapsed.Round(time.Millisecond), final.Records, final.MatchCount, final.FilesFailed)
	}
	return final, nil
}

// processTask drives one file through the scan chain and returns its partial
// result. Any mid-stream failure discards what was parsed for this file.
// processTask 驱动一个文件完成扫描链并返回其部分结果。
// 流中途失败会丢弃该文件已解析的内容。
func (s *Scheduler) processTask(ctx context.Context, t *FileTask, writer *matchWriter) *PartialResult {
	t.setState(TaskRunning)

	fail := func(err error) *PartialResult {
		t.setState(TaskFailedSkipped)
		metrics.FilesProcessedTotal.WithLabelValues("failed").Inc()
		return &PartialResult{
			Path: t.Handle.Path,
			Err: &FileError{
				Path:    t.Handle.Path,
				Kind:    lqerrors.Kind(err),
				Message: err.Error(),
			},
		}
	}

	src, err := scan.Open(t.Handle)
	if err != nil {
		return fail(err)
	}
	defer src.Close()

	var opts []scan.SplitterOption
	if s.cfg.Schema.KeepEmptyRecords {
		opts = append(opts, scan.KeepEmptyRecords())
	}
	sp := scan.NewSplitter(src, []byte(s.cfg.Schema.RecordDelimiter), opts...)
	fset := s.schema.NewFieldSet()

	p := &PartialResult{Path: t.Handle.Path}
	if s.spec.Mode() == query.ModeGroup {
		p.Groups = make(map[string]uint64)
	}

	var local []byte
	if writer != nil {
		local = make([]byte, 0, matchWriterFlushSize)
	}

	var bytesRead uint64
	for n := uint64(0); ; n++ {
		if n%cancelCheckInterval == 0 && ctx.Err() != nil {
			return fail(lqerrors.ErrCanceled)
		}
		rec, err := sp.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(err)
		}
		p.Records++
		bytesRead += uint64(len(rec.Data))

		if err := fset.Extract(rec.Data); err != nil {
			p.SkippedRecords++
			continue
		}
		p.CoercionFailures += uint64(fset.CoercionFailures())

		if !s.spec.Match(fset) {
			continue
		}
		p.Matched++

		switch s.spec.Mode() {
		case query.ModeEnumerate:
			m := Match{File: t.Handle.Path, Offset: rec.Offset, Line: string(rec.Data)}
			if idx := s.spec.SortIdx(); idx >= 0 {
				m.Key = fset.Index(idx)
			}
			p.Matches = append(p.Matches, m)
			if writer != nil {
				local = append(local, rec.Data...)
				local = append(local, '\n')
				if len(local) >= matchWriterFlushSize {
					if err := writer.writeBatch(local); err != nil {
						logger.Get(ctx).Warnf("match output write failed, disabling: %v", err)
						writer = nil
						local = nil
					} else {
						local = local[:0]
					}
				}
			}
		case query.ModeGroup:
			p.Groups[fset.Index(s.spec.GroupIdx()).Render()]++
		}
	}

	if writer != nil && len(local) > 0 {
		if err := writer.writeBatch(local); err != nil {
			logger.Get(ctx).Warnf("match output write failed: %v", err)
		}
	}

	t.setState(TaskCompleted)
	metrics.FilesProcessedTotal.WithLabelValues("completed").Inc()
	metrics.RecordsScannedTotal.Add(float64(p.Records))
	metrics.RecordsMatchedTotal.Add(float64(p.Matched))
	metrics.BytesReadTotal.Add(float64(bytesRead))
	if p.SkippedRecords > 0 {
		metrics.RecordsSkippedTotal.WithLabelValues("schema_mismatch").Add(float64(p.SkippedRecords))
	}
	return p
}
