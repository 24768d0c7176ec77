package engine

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
)

// matchWriterFlushSize is the per-worker buffer size. Workers batch matched
// records locally and take the writer lock only once per flush, so the lock
// is never held on the per-record path.
// matchWriterFlushSize 是 worker 本地缓冲的大小。worker 在本地攒批匹配记录，
// 每次刷新才拿一次写锁，逐记录路径上从不持锁。
const matchWriterFlushSize = 64 * 1024

// matchWriter appends matched raw records to a single output file.
type matchWriter struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

func newMatchWriter(path string) (*matchWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &matchWriter{f: f, w: bufio.NewWriterSize(f, matchWriterFlushSize)}, nil
}

// writeBatch appends a worker's local buffer under the lock.
func (m *matchWriter) writeBatch(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.w.Write(b)
	return err
}

func (m *matchWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.w.Flush(); err != nil {
		m.f.Close()
		return err
	}
	return m.f.Close()
}
