package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// progressReporter logs scan progress at a fixed interval while the worker
// pool runs: processed/total, percent and throughput in files per second.
// progressReporter 在扫描期间按固定间隔输出进度：
// 已处理/总数、百分比以及每秒处理的文件数。
type progressReporter struct {
	total     int
	processed atomic.Uint64
	interval  time.Duration
	start     time.Time
	log       *zap.SugaredLogger
	stop      chan struct{}
	wg        sync.WaitGroup
}

func newProgressReporter(total int, interval time.Duration, log *zap.SugaredLogger) *progressReporter {
	return &progressReporter{
		total:    total,
		interval: interval,
		start:    time.Now(),
		log:      log,
		stop:     make(chan struct{}),
	}
}

func (p *progressReporter) Start() {
	if p.interval <= 0 || p.total == 0 {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.report()
			}
		}
	}()
}

func (p *progressReporter) report() {
	done := p.processed.Load()
	elapsed := time.Since(p.start)
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(done) / secs
	}
	p.log.Infof("progress: %d/%d (%d%%) | %.2f files/sec | elapsed %s",
		done, p.total, done*100/uint64(p.total), rate, elapsed.Round(time.Second))
}

// Inc records one file driven to a terminal state.
func (p *progressReporter) Inc() {
	p.processed.Add(1)
}

func (p *progressReporter) Stop() {
	close(p.stop)
	p.wg.Wait()
}
