package scan

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	lqerrors "github.com/fanzha/logquery/pkg/errors"
)

// Kind is the compression kind of an input file.
// Kind 表示输入文件的压缩类型。
type Kind int

const (
	KindPlain Kind = iota
	KindGzip
)

// readBufferSize mirrors the large read-side buffer the scan is tuned for.
const readBufferSize = 1 << 20

var gzipMagic = []byte{0x1f, 0x8b}

// FileHandle identifies one discoverable file. It is created during
// enumeration and consumed exactly once by exactly one file task.
// FileHandle 标识一个已枚举的文件，由且仅由一个任务消费一次。
type FileHandle struct {
	Path    string
	Size    int64
	ModTime time.Time
	// Hint is derived from the file extension only. The authoritative
	// detection happens at Open time by sniffing the magic prefix.
	// Hint 仅由扩展名推断，打开时以魔数嗅探为准。
	Hint Kind
}

// HintFromName infers the compression kind from the file name.
// HintFromName 根据文件名推断压缩类型。
func HintFromName(name string) Kind {
	if strings.EqualFold(filepath.Ext(name), ".gz") {
		return KindGzip
	}
	return KindPlain
}

// Source yields the decompressed byte stream of a single file. Decompression
// is streaming: memory use is bounded regardless of file size.
// Source 提供单个文件解压后的顺序字节流。解压为流式，内存占用与文件大小无关。
type Source struct {
	handle FileHandle
	file   *os.File
	br     *bufio.Reader
	gz     *gzip.Reader
	r      io.Reader
	kind   Kind
}

// Open opens the file and sniffs the gzip magic prefix to decide whether the
// stream needs decompression. A misnamed file is therefore still handled
// correctly; a corrupt gzip header surfaces as a DecompressionError.
// Open 打开文件并嗅探 gzip 魔数决定是否解压。
// 扩展名错误的文件仍会被正确处理；gzip 头损坏会返回 DecompressionError。
func Open(h FileHandle) (*Source, error) {
	f, err := os.Open(h.Path)
	if err != nil {
		return nil, lqerrors.NewReadError(h.Path, err)
	}

	s := &Source{
		handle: h,
		file:   f,
		br:     bufio.NewReaderSize(f, readBufferSize),
		kind:   KindPlain,
	}

	head, err := s.br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		f.Close()
		return nil, lqerrors.NewReadError(h.Path, err)
	}

	if bytes.Equal(head, gzipMagic) {
		gz, err := gzip.NewReader(s.br)
		if err != nil {
			f.Close()
			return nil, lqerrors.NewDecompressionError(h.Path, err)
		}
		s.gz = gz
		s.r = gz
		s.kind = KindGzip
	} else {
		s.r = s.br
	}

	return s, nil
}

// Read implements io.Reader over the decompressed content. Mid-stream
// failures are classified: a broken compressed stream (including truncation)
// is a DecompressionError, anything else a ReadError.
func (s *Source) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		if s.gz != nil {
			return n, lqerrors.NewDecompressionError(s.handle.Path, err)
		}
		return n, lqerrors.NewReadError(s.handle.Path, err)
	}
	return n, err
}

// Kind reports the detected compression kind.
func (s *Source) Kind() Kind {
	return s.kind
}

// Close releases the underlying file.
func (s *Source) Close() error {
	if s.gz != nil {
		// A checksum error at close time is still a per-file problem, not
		// a reason to fail the close of the descriptor below.
		_ = s.gz.Close()
	}
	return s.file.Close()
}
