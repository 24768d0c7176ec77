package scan

import (
	"bytes"
	"io"
)

// DefaultChunkSize is the read granularity of the splitter. The source
// delivers bounded chunks; records crossing a chunk boundary are carried
// over into a stable buffer.
const DefaultChunkSize = 256 * 1024

// Record is one raw record span of the decoded stream.
//
// Data aliases an internal buffer and is only valid until the next call to
// Next. The extractor consumes each record before the splitter advances, so
// no copy is taken on the hot path.
// Record 是解码流中的一条原始记录。Data 复用内部缓冲区，
// 仅在下一次调用 Next 之前有效。
type Record struct {
	Offset int64
	Data   []byte
}

// Splitter produces a lazy, finite sequence of records from a byte stream,
// splitting on a configurable (possibly multi-byte) delimiter.
// Splitter 按可配置的（可多字节）分隔符从字节流中惰性切分记录。
type Splitter struct {
	r         io.Reader
	delim     []byte
	keepEmpty bool

	buf   []byte // chunk buffer
	win   []byte // unconsumed slice of buf
	carry []byte // stable buffer holding an incomplete record head
	off   int64  // stream offset of the next record's first byte
	eof   bool
	done  bool
}

// SplitterOption configures a Splitter.
type SplitterOption func(*Splitter)

// WithChunkSize overrides the read chunk size (mainly for tests).
func WithChunkSize(n int) SplitterOption {
	return func(s *Splitter) {
		if n > 0 {
			s.buf = make([]byte, n)
		}
	}
}

// KeepEmptyRecords keeps zero-length records between consecutive delimiters.
// By default they are dropped.
func KeepEmptyRecords() SplitterOption {
	return func(s *Splitter) { s.keepEmpty = true }
}

// NewSplitter creates a Splitter over r. An empty delimiter defaults to '\n'.
func NewSplitter(r io.Reader, delim []byte, opts ...SplitterOption) *Splitter {
	s := &Splitter{r: r, delim: delim}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.delim) == 0 {
		s.delim = []byte{'\n'}
	}
	if s.buf == nil {
		s.buf = make([]byte, DefaultChunkSize)
	}
	return s
}

// Next returns the next non-empty record, or io.EOF when the stream is
// exhausted. A final record without a trailing delimiter is still yielded.
// Next 返回下一条记录；流结束时返回 io.EOF。
// 末尾没有分隔符的最后一条记录同样会被产出。
func (s *Splitter) Next() (Record, error) {
	for {
		if s.done {
			return Record{}, io.EOF
		}

		// A record head sitting in carry may be terminated by a delimiter
		// straddling the chunk boundary.
		if len(s.carry) > 0 && len(s.delim) > 1 {
			if rec, ok := s.takeStraddled(); ok {
				if len(rec.Data) == 0 && !s.keepEmpty {
					continue
				}
				return rec, nil
			}
		}

		if idx := bytes.Index(s.win, s.delim); idx >= 0 {
			start := s.off
			var data []byte
			if len(s.carry) > 0 {
				// Boundary-crossing record: complete it in the stable buffer.
				s.carry = append(s.carry, s.win[:idx]...)
				data = s.carry
				s.carry = s.carry[:0]
			} else {
				data = s.win[:idx:idx]
			}
			s.win = s.win[idx+len(s.delim):]
			s.off += int64(len(data)) + int64(len(s.delim))
			if len(data) == 0 && !s.keepEmpty {
				continue
			}
			return Record{Offset: start, Data: data}, nil
		}

		// No delimiter left in the window: stash the tail and read on.
		if len(s.win) > 0 {
			s.carry = append(s.carry, s.win...)
			s.win = nil
		}
		if s.eof {
			s.done = true
			if len(s.carry) > 0 {
				data := s.carry
				rec := Record{Offset: s.off, Data: data}
				s.off += int64(len(data))
				s.carry = s.carry[:0]
				return rec, nil
			}
			return Record{}, io.EOF
		}
		if err := s.refill(); err != nil {
			return Record{}, err
		}
	}
}

// takeStraddled checks whether the delimiter begins in the carried tail and
// completes at the start of the current window. The longest carry-side prefix
// is tried first so the earliest delimiter in stream order wins.
func (s *Splitter) takeStraddled() (Record, bool) {
	maxK := len(s.delim) - 1
	if maxK > len(s.carry) {
		maxK = len(s.carry)
	}
	for k := maxK; k >= 1; k-- {
		if !bytes.Equal(s.carry[len(s.carry)-k:], s.delim[:k]) {
			continue
		}
		rest := s.delim[k:]
		if len(s.win) < len(rest) || !bytes.Equal(s.win[:len(rest)], rest) {
			continue
		}
		data := s.carry[:len(s.carry)-k]
		rec := Record{Offset: s.off, Data: data}
		s.win = s.win[len(rest):]
		s.off += int64(len(data)) + int64(len(s.delim))
		s.carry = s.carry[:0]
		return rec, true
	}
	return Record{}, false
}

func (s *Splitter) refill() error {
	n, err := s.r.Read(s.buf)
	if n > 0 {
		s.win = s.buf[:n]
	}
	if err == io.EOF {
		s.eof = true
		return nil
	}
	return err
}
